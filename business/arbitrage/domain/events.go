package domain

import (
	"time"

	"github.com/shopspring/decimal"

	exchangeDomain "github.com/fd1az/triarb-bot/business/exchange/domain"
)

// Event is emitted by the engine for sinks to log, count or display.
type Event interface {
	event()
}

// EvaluatedEvent follows every evaluation, with or without opportunity.
type EvaluatedEvent struct {
	Record EvaluationRecord
	Score  int
}

// LegEvent follows every leg state transition.
type LegEvent struct {
	OperationID string
	CycleID     string
	Leg         LegResult
}

// OperationEvent follows a finished execution.
type OperationEvent struct {
	Record OperationRecord
}

// ErrorEvent reports a network or exchange error and the pause it caused.
type ErrorEvent struct {
	CycleID string
	Class   string
	Err     error
	Sleep   time.Duration
	// Consecutive is the count of this class since the last success.
	Consecutive int
	Fatal       bool
}

// BalanceEvent reports a balance refresh.
type BalanceEvent struct {
	Balances  exchangeDomain.Balances
	Timestamp time.Time
}

// SummaryEvent carries the run totals.
type SummaryEvent struct {
	Summary Summary
}

// ConnectionEvent reports the market data stream state.
type ConnectionEvent struct {
	Name      string
	Connected bool
	Latency   time.Duration
}

func (EvaluatedEvent) event()  {}
func (LegEvent) event()        {}
func (OperationEvent) event()  {}
func (ErrorEvent) event()      {}
func (BalanceEvent) event()    {}
func (SummaryEvent) event()    {}
func (ConnectionEvent) event() {}

// Summary holds run totals.
type Summary struct {
	StartedAt   time.Time
	Checks      int
	Profitable  int
	Operations  int
	Failed      int // operations that did not fill all three legs
	Errors      int
	PnL         decimal.Decimal
	LastCycleID string
}

// Record adds an evaluation to the totals.
func (s *Summary) Record(r EvaluationRecord) {
	s.Checks++
	s.LastCycleID = r.CycleID
	if r.Profitable() {
		s.Profitable++
	}
}

// RecordOperation adds an execution to the totals.
func (s *Summary) RecordOperation(op OperationRecord) {
	s.Operations++
	if !op.Completed() {
		s.Failed++
	}
	s.PnL = s.PnL.Add(op.PnL)
}
