// Package ui provides the Bubble Tea TUI for the arbitrage bot.
package ui

import (
	"time"

	"github.com/fd1az/triarb-bot/business/arbitrage/domain"
	exchangeDomain "github.com/fd1az/triarb-bot/business/exchange/domain"
)

// Message types for TUI updates

// EvaluationMsg is sent after every cycle evaluation.
type EvaluationMsg struct {
	Record domain.EvaluationRecord
	Score  int
}

// LegMsg is sent on every leg state transition.
type LegMsg struct {
	OperationID string
	Leg         domain.LegResult
}

// OperationMsg is sent when an execution finishes.
type OperationMsg struct {
	Record domain.OperationRecord
}

// BalanceMsg is sent after a balance refresh.
type BalanceMsg struct {
	Balances exchangeDomain.Balances
}

// SummaryMsg carries the run totals.
type SummaryMsg struct {
	Summary domain.Summary
}

// ConnectionStatusMsg is sent when connection status changes.
type ConnectionStatusMsg struct {
	Name      string
	Connected bool
	Latency   time.Duration
}

// ErrorMsg is sent when an error occurs. Sleep is the backoff pause it
// caused, Fatal marks the error that stopped the run.
type ErrorMsg struct {
	Error error
	Class string
	Sleep time.Duration
	Fatal bool
}

// TickMsg is sent periodically for UI updates.
type TickMsg struct{}

// StartModulesMsg signals that modules should start loading.
type StartModulesMsg struct{}

// LogMsg is sent to display a log message in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}

// StartupMsg is sent during application startup to show progress.
type StartupMsg struct {
	Step    string // "config", "markets", "stream", "engine"
	Status  string // "connecting", "connected", "done", "failed"
	Message string
}
