// Package ui provides the Bubble Tea TUI for the arbitrage bot.
package ui

import (
	"strings"
	"time"

	"github.com/fd1az/triarb-bot/business/arbitrage/domain"
	"github.com/fd1az/triarb-bot/pkg/ui/components"
)

// opportunityRow converts an evaluation record for the evaluations list.
func opportunityRow(rec domain.EvaluationRecord, score int) components.OpportunityRow {
	row := components.OpportunityRow{
		Time:      rec.Timestamp.Format("15:04:05"),
		Cycle:     rec.CycleID,
		Direction: string(rec.Direction),
		Score:     score,
		Status:    recordStatus(rec),
	}
	if ev := rec.Evaluation; ev != nil {
		row.Invested = ev.Invested()
		row.Return = ev.Return()
		row.ProfitPct = ev.Profit.NetProfitPct
		row.Profitable = ev.IsProfitable()
	}
	return row
}

func recordStatus(rec domain.EvaluationRecord) string {
	switch {
	case rec.NoOpportunity != "":
		return "no liquidity"
	case rec.Executed && rec.OperationID != "":
		return "executed"
	case rec.Executed:
		return "dry run"
	case rec.Profitable():
		return "profitable"
	default:
		return "below min"
	}
}

// priceRows converts the evaluated legs for the last-evaluation panel.
func priceRows(ev *domain.Evaluation) []components.PriceRow {
	if ev == nil {
		return nil
	}
	rows := make([]components.PriceRow, 0, len(ev.Legs))
	for _, leg := range ev.Legs {
		rows = append(rows, components.PriceRow{
			Symbol: leg.Symbol.String(),
			Side:   strings.ToUpper(string(leg.Side)),
			Price:  leg.Price,
			Limit:  leg.LimitPrice,
			Amount: leg.Amount,
			Cost:   leg.Cost,
		})
	}
	return rows
}

// costBreakdown converts the evaluation figures for the last-evaluation panel.
func costBreakdown(rec domain.EvaluationRecord) components.CostBreakdown {
	ev := rec.Evaluation
	if ev == nil {
		return components.CostBreakdown{NoOpportunity: rec.NoOpportunity}
	}
	return components.CostBreakdown{
		Investment:   ev.Investment,
		Invested:     ev.Profit.Invested,
		MinReturn:    ev.Profit.MinReturn,
		Return:       ev.Profit.Return,
		NetProfit:    ev.Profit.NetProfit,
		NetProfitPct: ev.Profit.NetProfitPct,
		Refinements:  ev.Refinements,
		IsProfitable: ev.IsProfitable(),
	}
}

// statsFromSummary converts the run totals for the stats bar.
func statsFromSummary(s domain.Summary) components.Stats {
	var uptime time.Duration
	if !s.StartedAt.IsZero() {
		uptime = time.Since(s.StartedAt)
	}
	return components.Stats{
		Checks:     s.Checks,
		Profitable: s.Profitable,
		Operations: s.Operations,
		Failed:     s.Failed,
		Errors:     s.Errors,
		PnL:        s.PnL,
		Uptime:     uptime,
	}
}
