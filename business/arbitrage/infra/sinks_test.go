package infra

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fd1az/triarb-bot/business/arbitrage/domain"
	exchangeDomain "github.com/fd1az/triarb-bot/business/exchange/domain"
	"github.com/fd1az/triarb-bot/internal/logger"
	"github.com/fd1az/triarb-bot/pkg/ui"
)

func profitableRecord() domain.EvaluationRecord {
	ev := &domain.Evaluation{
		Cycle:     domain.NewCycle("USDT", "BTC", "ETH"),
		Direction: domain.DirectionBBS,
		Profit:    domain.NewProfitResult(d("99.9999"), d("102.38085"), d("0.01")),
		Duration:  2 * time.Millisecond,
	}
	legs := domain.DirectionBBS.Legs(ev.Cycle)
	for i, plan := range legs {
		ev.Legs[i] = domain.LegQuote{LegPlan: plan, Price: d("1"), LimitPrice: d("1"), Amount: d("1"), Cost: d("1")}
	}
	return domain.EvaluationRecord{
		CycleID:    ev.CycleID(),
		Direction:  domain.DirectionBBS,
		Timestamp:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Evaluation: ev,
	}
}

func TestTUISink_MapsEvents(t *testing.T) {
	var got []tea.Msg
	sink := NewTUISink(func(msg tea.Msg) { got = append(got, msg) })
	ctx := context.Background()
	rec := profitableRecord()
	boom := errors.New("boom")

	sink.Emit(ctx, domain.EvaluatedEvent{Record: rec, Score: 10})
	sink.Emit(ctx, domain.OperationEvent{Record: sampleOperation()})
	sink.Emit(ctx, domain.ErrorEvent{Class: "network", Err: boom, Sleep: time.Minute, Fatal: true})
	sink.Emit(ctx, domain.ConnectionEvent{Name: "Binance", Connected: true})
	sink.Emit(ctx, domain.BalanceEvent{Balances: exchangeDomain.Balances{"USDT": d("10")}})

	require.Len(t, got, 5)
	assert.Equal(t, ui.EvaluationMsg{Record: rec, Score: 10}, got[0])
	assert.Equal(t, "op-1", got[1].(ui.OperationMsg).Record.ID)
	assert.Equal(t, ui.ErrorMsg{Error: boom, Class: "network", Sleep: time.Minute, Fatal: true}, got[2])
	assert.Equal(t, ui.ConnectionStatusMsg{Name: "Binance", Connected: true}, got[3])
	assert.True(t, got[4].(ui.BalanceMsg).Balances.Free("USDT").Equal(d("10")))
}

func TestConsoleReporter_Emit(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf)
	ctx := context.Background()

	unprofitable := profitableRecord()
	unprofitable.Evaluation.Profit = domain.NewProfitResult(d("100"), d("99"), d("0"))
	r.Emit(ctx, domain.EvaluatedEvent{Record: unprofitable})
	assert.Empty(t, buf.String())

	r.Emit(ctx, domain.EvaluatedEvent{Record: profitableRecord()})
	assert.Contains(t, buf.String(), "OPPORTUNITY USDT_BTC_ETH")
	assert.Contains(t, buf.String(), "dry run")
	assert.Contains(t, buf.String(), "BTC/USDT")

	buf.Reset()
	r.Emit(ctx, domain.OperationEvent{Record: sampleOperation()})
	assert.Contains(t, buf.String(), "OPERATION op-1")
	assert.Contains(t, buf.String(), "2.38095")

	buf.Reset()
	r.Emit(ctx, domain.ErrorEvent{Class: "exchange", Err: errors.New("rejected"), Consecutive: 3})
	assert.Empty(t, buf.String(), "non-fatal errors are left to the log")
	r.Emit(ctx, domain.ErrorEvent{Class: "exchange", Err: errors.New("rejected"), Consecutive: 4, Fatal: true})
	assert.Contains(t, buf.String(), "run aborted after 4 consecutive exchange errors: rejected")
}

func TestConsoleReporter_PrintOperations(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf)

	r.PrintOperations(nil)
	assert.Contains(t, buf.String(), "no operations recorded")

	buf.Reset()
	r.PrintOperations([]domain.OperationRecord{sampleOperation()})
	assert.Contains(t, buf.String(), "op-1")
	assert.Contains(t, buf.String(), "USDT_BTC_ETH")
}

func TestLogSink_Levels(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(logger.New(&buf, logger.LevelInfo, "test", nil))
	ctx := context.Background()

	sink.Emit(ctx, domain.EvaluatedEvent{Record: domain.EvaluationRecord{CycleID: "X", NoOpportunity: "thin"}})
	assert.Empty(t, buf.String(), "no-opportunity records log at debug")

	sink.Emit(ctx, domain.EvaluatedEvent{Record: profitableRecord(), Score: 10})
	assert.Contains(t, buf.String(), `"msg":"opportunity found"`)

	buf.Reset()
	sink.Emit(ctx, domain.ErrorEvent{CycleID: "X", Class: "network", Err: errors.New("reset"), Consecutive: 4, Fatal: true})
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), `"class":"network"`)
	assert.Contains(t, buf.String(), `"error":"reset"`)
}

func TestMetricsSink_Counts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	sink, err := NewMetricsSink(provider.Meter("test"))
	require.NoError(t, err)
	ctx := context.Background()

	sink.Emit(ctx, domain.EvaluatedEvent{Record: profitableRecord()})
	sink.Emit(ctx, domain.EvaluatedEvent{Record: domain.EvaluationRecord{Direction: domain.DirectionBSS, NoOpportunity: "thin"}})
	sink.Emit(ctx, domain.LegEvent{Leg: domain.LegResult{State: domain.LegPlaced}})
	sink.Emit(ctx, domain.LegEvent{Leg: domain.LegResult{State: domain.LegFilled}})
	sink.Emit(ctx, domain.OperationEvent{Record: sampleOperation()})
	sink.Emit(ctx, domain.ErrorEvent{Class: "network", Err: errors.New("x")})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]int64{}
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}

	assert.Equal(t, int64(2), sums["arbitrage_evaluations_total"])
	assert.Equal(t, int64(1), sums["arbitrage_legs_total"], "only terminal states are counted")
	assert.Equal(t, int64(1), sums["arbitrage_operations_total"])
	assert.Equal(t, int64(1), sums["arbitrage_errors_total"])
	assert.True(t, names["arbitrage_operation_pnl"])
	assert.True(t, names["arbitrage_evaluation_seconds"])
}
