package infra

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/triarb-bot/business/arbitrage/domain"
)

// MetricsSink counts engine events on OpenTelemetry instruments.
type MetricsSink struct {
	evaluations metric.Int64Counter
	operations  metric.Int64Counter
	legs        metric.Int64Counter
	errors      metric.Int64Counter
	pnl         metric.Float64Histogram
	evalTime    metric.Float64Histogram
}

// NewMetricsSink creates the instruments on meter.
func NewMetricsSink(meter metric.Meter) (*MetricsSink, error) {
	var (
		s   MetricsSink
		err error
	)
	if s.evaluations, err = meter.Int64Counter("arbitrage_evaluations_total",
		metric.WithDescription("Cycle evaluations by direction and outcome")); err != nil {
		return nil, fmt.Errorf("evaluations counter: %w", err)
	}
	if s.operations, err = meter.Int64Counter("arbitrage_operations_total",
		metric.WithDescription("Executed cycles by completion")); err != nil {
		return nil, fmt.Errorf("operations counter: %w", err)
	}
	if s.legs, err = meter.Int64Counter("arbitrage_legs_total",
		metric.WithDescription("Leg orders by final state")); err != nil {
		return nil, fmt.Errorf("legs counter: %w", err)
	}
	if s.errors, err = meter.Int64Counter("arbitrage_errors_total",
		metric.WithDescription("Network and exchange errors by class")); err != nil {
		return nil, fmt.Errorf("errors counter: %w", err)
	}
	if s.pnl, err = meter.Float64Histogram("arbitrage_operation_pnl",
		metric.WithDescription("Realized PnL per operation in base asset")); err != nil {
		return nil, fmt.Errorf("pnl histogram: %w", err)
	}
	if s.evalTime, err = meter.Float64Histogram("arbitrage_evaluation_seconds",
		metric.WithDescription("Time spent evaluating one direction"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("evaluation histogram: %w", err)
	}
	return &s, nil
}

// Emit implements app.EventSink.
func (s *MetricsSink) Emit(ctx context.Context, ev domain.Event) {
	switch ev := ev.(type) {
	case domain.EvaluatedEvent:
		outcome := "unprofitable"
		switch {
		case ev.Record.Evaluation == nil:
			outcome = "no_opportunity"
		case ev.Record.Executed:
			outcome = "executed"
		case ev.Record.Profitable():
			outcome = "profitable"
		}
		s.evaluations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("direction", string(ev.Record.Direction)),
			attribute.String("outcome", outcome),
		))
		if ev.Record.Evaluation != nil {
			s.evalTime.Record(ctx, ev.Record.Evaluation.Duration.Seconds())
		}

	case domain.LegEvent:
		if ev.Leg.State.Terminal() {
			s.legs.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(ev.Leg.State))))
		}

	case domain.OperationEvent:
		s.operations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("completed", ev.Record.Completed())))
		s.pnl.Record(ctx, ev.Record.PnL.InexactFloat64(),
			metric.WithAttributes(attribute.String("cycle", ev.Record.CycleID)))

	case domain.ErrorEvent:
		s.errors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("class", ev.Class),
			attribute.Bool("fatal", ev.Fatal),
		))
	}
}
