package infra

import (
	"context"

	"github.com/fd1az/triarb-bot/business/arbitrage/domain"
	"github.com/fd1az/triarb-bot/internal/logger"
)

// LogSink writes engine events as structured log lines.
type LogSink struct {
	log logger.LoggerInterface
}

// NewLogSink creates a new LogSink.
func NewLogSink(log logger.LoggerInterface) *LogSink {
	return &LogSink{log: log}
}

// Emit implements app.EventSink.
func (s *LogSink) Emit(ctx context.Context, ev domain.Event) {
	switch ev := ev.(type) {
	case domain.EvaluatedEvent:
		r := ev.Record
		if r.Evaluation == nil {
			s.log.Debug(ctx, "no opportunity",
				"cycle", r.CycleID, "direction", string(r.Direction), "reason", r.NoOpportunity, "score", ev.Score)
			return
		}
		args := []any{
			"cycle", r.CycleID,
			"direction", string(r.Direction),
			"invested", r.Evaluation.Invested().String(),
			"return", r.Evaluation.Return().String(),
			"profit_pct", r.Evaluation.Profit.NetProfitPct.StringFixed(4),
			"refinements", r.Evaluation.Refinements,
			"score", ev.Score,
		}
		if r.Profitable() {
			s.log.Info(ctx, "opportunity found", append(args, "executed", r.Executed, "operation_id", r.OperationID)...)
			return
		}
		s.log.Debug(ctx, "cycle evaluated", args...)

	case domain.LegEvent:
		s.log.Debug(ctx, "leg transition",
			"operation_id", ev.OperationID,
			"leg", ev.Leg.Index+1,
			"symbol", ev.Leg.Symbol.String(),
			"side", string(ev.Leg.Side),
			"state", string(ev.Leg.State),
			"filled", ev.Leg.Filled.String(),
			"error", ev.Leg.Error)

	case domain.OperationEvent:
		s.log.Info(ctx, "operation finished",
			"operation_id", ev.Record.ID,
			"cycle", ev.Record.CycleID,
			"completed", ev.Record.Completed(),
			"invested", ev.Record.Invested.String(),
			"returned", ev.Record.Returned.String(),
			"pnl", ev.Record.PnL.String(),
			"duration", ev.Record.Duration.String())

	case domain.ErrorEvent:
		if ev.Fatal {
			s.log.Error(ctx, "giving up", "cycle", ev.CycleID, "class", ev.Class,
				"consecutive", ev.Consecutive, "error", ev.Err)
			return
		}
		s.log.Warn(ctx, "backing off", "cycle", ev.CycleID, "class", ev.Class,
			"consecutive", ev.Consecutive, "sleep", ev.Sleep.String(), "error", ev.Err)

	case domain.BalanceEvent:
		s.log.Info(ctx, "balances refreshed", "assets", len(ev.Balances))

	case domain.SummaryEvent:
		s.log.Info(ctx, "run summary",
			"checks", ev.Summary.Checks,
			"profitable", ev.Summary.Profitable,
			"operations", ev.Summary.Operations,
			"failed", ev.Summary.Failed,
			"errors", ev.Summary.Errors,
			"pnl", ev.Summary.PnL.String())

	case domain.ConnectionEvent:
		s.log.Info(ctx, "market data stream", "name", ev.Name, "connected", ev.Connected, "latency", ev.Latency.String())
	}
}
