package domain

import (
	"time"

	"github.com/shopspring/decimal"

	exchangeDomain "github.com/fd1az/triarb-bot/business/exchange/domain"
)

// LegState is the execution state of one leg order.
type LegState string

const (
	LegPending  LegState = "pending"
	LegPlaced   LegState = "placed"
	LegPolling  LegState = "polling"
	LegFilled   LegState = "filled"
	LegCanceled LegState = "canceled"
	// LegSkipped means no order was sent: nothing to trade, a limit
	// violation or a placement failure.
	LegSkipped LegState = "skipped"
)

// Terminal returns true for states a leg never leaves.
func (s LegState) Terminal() bool {
	return s == LegFilled || s == LegCanceled || s == LegSkipped
}

// LegResult is one leg as executed.
type LegResult struct {
	Index   int // 0..2 for cycle legs, 3 and up for unwind orders
	OrderID string
	Symbol  exchangeDomain.Symbol
	Side    exchangeDomain.Side
	State   LegState
	Status  exchangeDomain.OrderStatus

	Price    decimal.Decimal // limit price sent
	Amount   decimal.Decimal // amount requested
	Filled   decimal.Decimal
	Cost     decimal.Decimal
	Fee      decimal.Decimal
	FeeAsset string
	Average  decimal.Decimal
	Received decimal.Decimal // output net of fee

	Error     string
	UpdatedAt time.Time
}

// Apply copies an order snapshot into the leg.
func (l *LegResult) Apply(o *exchangeDomain.Order) {
	l.OrderID = o.ID
	l.Status = o.Status
	l.Filled = o.Filled
	l.Cost = o.Cost
	l.Fee = o.Fee.Cost
	l.FeeAsset = o.Fee.Currency
	l.Average = o.Average()
	l.Received = o.Received()
}

// OperationRecord summarises one executed cycle. It is written once.
type OperationRecord struct {
	ID        string
	CycleID   string
	Direction Direction
	StartedAt time.Time
	Duration  time.Duration

	Legs [3]LegResult
	// Unwinds are the orders that sold stranded assets back to base.
	Unwinds []LegResult

	Invested decimal.Decimal // leg 1 cost
	Returned decimal.Decimal // leg 3 cost plus unwind proceeds
	PnL      decimal.Decimal
}

// Completed reports whether all three legs filled.
func (r *OperationRecord) Completed() bool {
	for _, l := range r.Legs {
		if l.State != LegFilled {
			return false
		}
	}
	return true
}

// Finalize computes the realized PnL: what came back in base minus what
// leg 1 spent.
func (r *OperationRecord) Finalize(end time.Time) {
	r.Invested = r.Legs[0].Cost
	r.Returned = r.Legs[2].Cost
	for _, u := range r.Unwinds {
		r.Returned = r.Returned.Add(u.Cost)
	}
	r.PnL = r.Returned.Sub(r.Invested)
	r.Duration = end.Sub(r.StartedAt)
}
