// Package infra contains infrastructure adapters for the arbitrage context.
package infra

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/fd1az/triarb-bot/business/arbitrage/domain"
)

// ConsoleReporter prints profitable evaluations, executed operations and
// run summaries as tables. It is an app.EventSink for CLI mode.
type ConsoleReporter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleReporter creates a new ConsoleReporter.
func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out}
}

// Emit implements app.EventSink.
func (r *ConsoleReporter) Emit(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev := ev.(type) {
	case domain.EvaluatedEvent:
		if ev.Record.Profitable() {
			r.printEvaluation(ev.Record)
		}
	case domain.OperationEvent:
		r.printOperation(ev.Record)
	case domain.SummaryEvent:
		r.printSummary(ev.Summary)
	case domain.ErrorEvent:
		if ev.Fatal {
			fmt.Fprintf(r.out, "\n[%s] run aborted after %d consecutive %s errors: %v\n",
				time.Now().Format("15:04:05"), ev.Consecutive, ev.Class, ev.Err)
		}
	}
}

func (r *ConsoleReporter) printEvaluation(rec domain.EvaluationRecord) {
	ev := rec.Evaluation
	status := "dry run"
	if rec.Executed {
		status = "executed " + rec.OperationID
	}
	fmt.Fprintf(r.out, "\n[%s] OPPORTUNITY %s %s: invest %s -> %s (%s%%), %s\n",
		rec.Timestamp.Format("15:04:05"), rec.CycleID, rec.Direction,
		ev.Invested().String(), ev.Return().String(), ev.Profit.NetProfitPct.StringFixed(4), status)

	table := tablewriter.NewWriter(r.out)
	table.Header("Leg", "Symbol", "Side", "Price", "Limit", "Amount", "Cost")
	for i, q := range ev.Legs {
		table.Append(
			fmt.Sprintf("%d", i+1),
			q.Symbol.String(),
			string(q.Side),
			q.Price.String(),
			q.LimitPrice.String(),
			q.Amount.String(),
			q.Cost.String(),
		)
	}
	table.Render()
}

func (r *ConsoleReporter) printOperation(op domain.OperationRecord) {
	fmt.Fprintf(r.out, "\n[%s] OPERATION %s %s %s: pnl %s in %s\n",
		op.StartedAt.Format("15:04:05"), op.ID, op.CycleID, op.Direction,
		op.PnL.String(), op.Duration.Round(time.Millisecond))

	table := tablewriter.NewWriter(r.out)
	table.Header("Leg", "Symbol", "Side", "State", "Price", "Amount", "Filled", "Cost", "Fee", "Average")
	legs := append(op.Legs[:], op.Unwinds...)
	for _, l := range legs {
		label := fmt.Sprintf("%d", l.Index+1)
		if l.Index >= len(op.Legs) {
			label = "unwind"
		}
		table.Append(
			label,
			l.Symbol.String(),
			string(l.Side),
			string(l.State),
			l.Price.String(),
			l.Amount.String(),
			l.Filled.String(),
			l.Cost.String(),
			l.Fee.String()+" "+l.FeeAsset,
			l.Average.String(),
		)
	}
	table.Render()
}

func (r *ConsoleReporter) printSummary(s domain.Summary) {
	table := tablewriter.NewWriter(r.out)
	table.Header("Started", "Uptime", "Checks", "Profitable", "Operations", "Failed", "Errors", "PnL")
	table.Append(
		s.StartedAt.Format(time.DateTime),
		time.Since(s.StartedAt).Round(time.Second).String(),
		fmt.Sprintf("%d", s.Checks),
		fmt.Sprintf("%d", s.Profitable),
		fmt.Sprintf("%d", s.Operations),
		fmt.Sprintf("%d", s.Failed),
		fmt.Sprintf("%d", s.Errors),
		s.PnL.String(),
	)
	fmt.Fprintln(r.out)
	table.Render()
}

// PrintOperations prints a history table, newest first.
func (r *ConsoleReporter) PrintOperations(ops []domain.OperationRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(ops) == 0 {
		fmt.Fprintln(r.out, "no operations recorded")
		return
	}
	table := tablewriter.NewWriter(r.out)
	table.Header("Started", "ID", "Cycle", "Direction", "Completed", "Invested", "Returned", "PnL", "Duration")
	for _, op := range ops {
		table.Append(
			op.StartedAt.Format(time.DateTime),
			op.ID,
			op.CycleID,
			string(op.Direction),
			fmt.Sprintf("%t", op.Completed()),
			op.Invested.String(),
			op.Returned.String(),
			op.PnL.String(),
			op.Duration.Round(time.Millisecond).String(),
		)
	}
	table.Render()
}
