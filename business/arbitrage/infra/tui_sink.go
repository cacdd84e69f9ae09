package infra

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fd1az/triarb-bot/business/arbitrage/domain"
	"github.com/fd1az/triarb-bot/pkg/ui"
)

// TUISink forwards engine events to the Bubble Tea program.
type TUISink struct {
	send func(tea.Msg)
}

// NewTUISink creates a sink that delivers messages through send, usually
// ui.Send.
func NewTUISink(send func(tea.Msg)) *TUISink {
	return &TUISink{send: send}
}

// Emit implements app.EventSink.
func (s *TUISink) Emit(_ context.Context, ev domain.Event) {
	if msg := tuiMessage(ev); msg != nil {
		s.send(msg)
	}
}

func tuiMessage(ev domain.Event) tea.Msg {
	switch ev := ev.(type) {
	case domain.EvaluatedEvent:
		return ui.EvaluationMsg{Record: ev.Record, Score: ev.Score}
	case domain.LegEvent:
		return ui.LegMsg{OperationID: ev.OperationID, Leg: ev.Leg}
	case domain.OperationEvent:
		return ui.OperationMsg{Record: ev.Record}
	case domain.BalanceEvent:
		return ui.BalanceMsg{Balances: ev.Balances}
	case domain.SummaryEvent:
		return ui.SummaryMsg{Summary: ev.Summary}
	case domain.ConnectionEvent:
		return ui.ConnectionStatusMsg{Name: ev.Name, Connected: ev.Connected, Latency: ev.Latency}
	case domain.ErrorEvent:
		return ui.ErrorMsg{Error: ev.Err, Class: ev.Class, Sleep: ev.Sleep, Fatal: ev.Fatal}
	}
	return nil
}
