package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LegQuote is the expected outcome of one leg.
type LegQuote struct {
	LegPlan
	// Price is the depth-weighted price, LimitPrice the worst level touched.
	Price      decimal.Decimal
	LimitPrice decimal.Decimal
	Amount     decimal.Decimal // base units
	Cost       decimal.Decimal // quote units
	Input      decimal.Decimal // spent, in LegPlan.InputAsset
	Output     decimal.Decimal // received after fee, in LegPlan.OutputAsset
	Fee        decimal.Decimal
}

// Evaluation is the expected result of trading a cycle in one direction.
type Evaluation struct {
	Cycle       Cycle
	Direction   Direction
	Legs        [3]LegQuote
	Investment  decimal.Decimal // cap the caller offered
	Profit      ProfitResult
	Refinements int // back-propagation passes needed
	Timestamp   time.Time
	Duration    time.Duration
}

// CycleID returns the evaluated cycle id.
func (e *Evaluation) CycleID() string { return e.Cycle.ID() }

// Invested returns leg 1's cost.
func (e *Evaluation) Invested() decimal.Decimal { return e.Profit.Invested }

// Return returns the base amount expected back after fees.
func (e *Evaluation) Return() decimal.Decimal { return e.Profit.Return }

// IsProfitable returns true if the evaluation cleared the profit threshold.
func (e *Evaluation) IsProfitable() bool {
	return e.Profit.IsProfitable
}

// EvaluationRecord is what one evaluate-and-maybe-execute step produced.
type EvaluationRecord struct {
	CycleID   string
	Direction Direction
	Timestamp time.Time

	// Evaluation is nil when the cycle had no opportunity.
	Evaluation    *Evaluation
	NoOpportunity string

	Executed       bool
	OperationID    string
	ExecutedReturn decimal.Decimal
}

// Profitable reports whether the evaluation cleared the threshold.
func (r *EvaluationRecord) Profitable() bool {
	return r.Evaluation != nil && r.Evaluation.IsProfitable()
}
