package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/triarb-bot/business/arbitrage/domain"
	"github.com/fd1az/triarb-bot/internal/apperror"
)

type sinkFunc func(ctx context.Context, ev domain.Event)

func (f sinkFunc) Emit(ctx context.Context, ev domain.Event) { f(ctx, ev) }

type engineFixture struct {
	ex        *fakeExchange
	ledger    *memLedger
	events    *eventRecorder
	sleeper   *fakeSleeper
	scheduler *Scheduler
}

func newEngineFixture(ethBid string) *engineFixture {
	return &engineFixture{
		ex:        newFakeExchange(usdtBtcEthMarkets("0"), usdtBtcEthBooks(ethBid)),
		ledger:    &memLedger{},
		events:    &eventRecorder{},
		sleeper:   &fakeSleeper{},
		scheduler: NewScheduler([]domain.Cycle{usdtBtcEth}, DefaultSchedulerConfig()),
	}
}

func (f *engineFixture) engine(cfg EngineConfig, sinks ...EventSink) *Engine {
	sink := EventSinks(append([]EventSink{f.events}, sinks...))
	log := &mockLogger{}
	return NewEngine(
		f.ex,
		NewEvaluator(f.ex, DefaultMaxRefinements),
		f.scheduler,
		NewExecutor(f.ex, f.ledger, sink, DefaultExecutorConfig(), f.sleeper, log),
		NewBackoffController(DefaultBackoffConfig(), f.sleeper),
		f.ledger,
		sink,
		cfg,
		log,
	)
}

func TestEngine_EvaluateAndExecute(t *testing.T) {
	tests := []struct {
		name         string
		ethBid       string
		cfg          EngineConfig
		wantExecuted bool
		wantScore    int
		wantOrders   int
	}{
		{
			name:         "profitable_executes",
			ethBid:       "2150",
			wantExecuted: true,
			wantScore:    10,
			wantOrders:   3,
		},
		{
			name:      "unprofitable_is_penalized",
			ethBid:    "2090",
			wantScore: -1,
		},
		{
			name:      "dry_run_scores_without_orders",
			ethBid:    "2150",
			cfg:       EngineConfig{DryRun: true},
			wantScore: 10,
		},
		{
			name:         "ticker_prices",
			ethBid:       "2150",
			cfg:          EngineConfig{PriceSource: PriceSourceTicker},
			wantExecuted: true,
			wantScore:    10,
			wantOrders:   3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(tt.ethBid)
			e := f.engine(tt.cfg)

			rec, err := e.EvaluateAndExecute(context.Background(), usdtBtcEth, domain.DirectionBBS, d("100"), d("0.001"), noSlippage)
			require.NoError(t, err)
			require.NotNil(t, rec.Evaluation)

			assert.Equal(t, tt.wantExecuted, rec.Executed)
			assert.Equal(t, tt.wantScore, f.scheduler.Score(usdtBtcEth.ID()))
			assert.Len(t, f.ex.placedOrders(), tt.wantOrders)
			require.Len(t, f.ledger.evaluations, 1)
			assert.Equal(t, rec.Executed, f.ledger.evaluations[0].Executed)

			if tt.cfg.PriceSource == PriceSourceTicker {
				assert.Zero(t, f.ex.bookCalls)
			}
			if tt.wantExecuted {
				assert.NotEmpty(t, rec.OperationID)
				assert.True(t, rec.ExecutedReturn.Equal(d("102.38085")), "executed return %s", rec.ExecutedReturn)
				assert.Equal(t, 1, e.Summary().Operations)
			}
		})
	}
}

func TestEngine_EvaluateAndExecute_NoOpportunity(t *testing.T) {
	f := newEngineFixture("2150")
	f.ex.books[sym("ETH/USDT")] = book("ETH/USDT", "", "", "2200", deep)
	e := f.engine(EngineConfig{})

	rec, err := e.EvaluateAndExecute(context.Background(), usdtBtcEth, domain.DirectionBBS, d("100"), d("0.001"), noSlippage)
	require.NoError(t, err)

	assert.Nil(t, rec.Evaluation)
	assert.NotEmpty(t, rec.NoOpportunity)
	assert.Equal(t, -1, f.scheduler.Score(usdtBtcEth.ID()))
	assert.Len(t, f.ledger.evaluations, 1)
}

func TestEngine_EvaluateAndExecute_NetworkError(t *testing.T) {
	f := newEngineFixture("2150")
	f.ex.bookErrs = []error{apperror.Network("depth", errors.New("connection reset"))}
	e := f.engine(EngineConfig{})

	rec, err := e.EvaluateAndExecute(context.Background(), usdtBtcEth, domain.DirectionBBS, d("100"), d("0.001"), noSlippage)

	assert.Nil(t, rec)
	assert.True(t, apperror.IsNetwork(err))
	assert.Zero(t, f.scheduler.Score(usdtBtcEth.ID()))
	assert.Empty(t, f.ledger.evaluations)
}

func TestEngine_RunLoop_FourNetworkErrorsAbort(t *testing.T) {
	f := newEngineFixture("2150")
	for i := 0; i < 20; i++ {
		f.ex.bookErrs = append(f.ex.bookErrs, apperror.Network("depth", errors.New("timeout")))
	}
	e := f.engine(EngineConfig{})

	err := e.RunLoop(context.Background(), d("100"))

	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeBackoffExhausted))
	assert.Equal(t, []time.Duration{30 * time.Minute, 60 * time.Minute, 90 * time.Minute}, f.sleeper.recorded())

	errs := f.events.errors()
	require.Len(t, errs, 4)
	assert.False(t, errs[2].Fatal)
	assert.True(t, errs[3].Fatal)
	assert.Equal(t, "network", errs[3].Class)
	assert.Equal(t, 4, e.Summary().Errors)
}

func TestEngine_RunLoop_SuccessResetsBackoff(t *testing.T) {
	f := newEngineFixture("2090")
	// the first round fails, the next two are clean
	f.ex.bookErrs = []error{apperror.Network("depth", nil)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evaluations := 0
	stopper := sinkFunc(func(_ context.Context, ev domain.Event) {
		if _, ok := ev.(domain.EvaluatedEvent); ok {
			evaluations++
			if evaluations == 4 {
				cancel()
			}
		}
	})
	e := f.engine(EngineConfig{}, stopper)

	require.NoError(t, e.RunLoop(ctx, d("100")))

	assert.Equal(t, []time.Duration{30 * time.Minute}, f.sleeper.recorded())
	dec := e.backoff.Handle(context.Background(), apperror.Network("depth", nil))
	assert.Equal(t, 1, dec.Consecutive, "counter reset after a clean round")
}

func TestEngine_RecordsEvaluationAfterCancel(t *testing.T) {
	f := newEngineFixture("2150")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// stop the run as soon as the first order is placed
	stopper := sinkFunc(func(_ context.Context, ev domain.Event) {
		if _, ok := ev.(domain.LegEvent); ok {
			cancel()
		}
	})
	e := f.engine(EngineConfig{}, stopper)

	rec, err := e.EvaluateAndExecute(ctx, usdtBtcEth, domain.DirectionBBS, d("100"), decimal.Zero, noSlippage)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rec)
	assert.True(t, rec.Executed)

	require.Len(t, f.ledger.evaluations, 1)
	assert.Equal(t, rec.OperationID, f.ledger.evaluations[0].OperationID)
	require.Len(t, f.ledger.operations, 1)
	assert.Equal(t, []domain.LegState{domain.LegPlaced, domain.LegPolling, domain.LegCanceled}, f.ledger.legStates(0))
}

func TestEngine_RunLoop_StopsOnCancel(t *testing.T) {
	f := newEngineFixture("2090")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var summaries []domain.Summary
	stopper := sinkFunc(func(_ context.Context, ev domain.Event) {
		switch ev := ev.(type) {
		case domain.EvaluatedEvent:
			cancel()
		case domain.SummaryEvent:
			summaries = append(summaries, ev.Summary)
		}
	})
	e := f.engine(EngineConfig{}, stopper)

	require.NoError(t, e.RunLoop(ctx, d("100")))

	require.NotEmpty(t, summaries)
	last := summaries[len(summaries)-1]
	assert.GreaterOrEqual(t, last.Checks, 1)
	assert.Zero(t, last.Operations)
	assert.False(t, last.StartedAt.IsZero())
}

func TestEngine_RunLoop_NoCycles(t *testing.T) {
	f := newEngineFixture("2150")
	f.scheduler = NewScheduler(nil, DefaultSchedulerConfig())

	err := f.engine(EngineConfig{}).RunLoop(context.Background(), d("100"))

	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
}

func TestEngine_BalanceCapsInvestment(t *testing.T) {
	f := newEngineFixture("2150")
	f.ex.balances = map[string]decimal.Decimal{"USDT": d("50")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var investments []decimal.Decimal
	stopper := sinkFunc(func(_ context.Context, ev domain.Event) {
		if ev, ok := ev.(domain.EvaluatedEvent); ok && ev.Record.Evaluation != nil {
			investments = append(investments, ev.Record.Evaluation.Investment)
			cancel()
		}
	})
	e := f.engine(EngineConfig{DryRun: true, BalanceRefreshEvery: 10}, stopper)

	require.NoError(t, e.RunLoop(ctx, d("100")))

	require.NotEmpty(t, investments)
	assert.True(t, investments[0].Equal(d("50")), "investment %s", investments[0])
	assert.True(t, e.Balances().Free("USDT").Equal(d("50")))
}

func TestEngine_BalanceRefreshFailureKeepsInitial(t *testing.T) {
	f := newEngineFixture("2150")
	f.ex.balanceErr = apperror.Network("account", nil)
	e := f.engine(EngineConfig{DryRun: true, BalanceRefreshEvery: 1})

	got := e.investment(context.Background(), "USDT", d("100"))

	assert.True(t, got.Equal(d("100")))
	assert.Nil(t, e.Balances())
}
