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
	exchangeDomain "github.com/fd1az/triarb-bot/business/exchange/domain"
	"github.com/fd1az/triarb-bot/internal/apperror"
)

var noSlippage [3]decimal.Decimal

type executorFixture struct {
	ex      *fakeExchange
	ledger  *memLedger
	events  *eventRecorder
	sleeper *fakeSleeper
	ev      *domain.Evaluation
}

// newExecutorFixture evaluates 100 USDT through USDT_BTC_ETH BBS without
// fees; ETH/USDT bids 2150.
func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	markets := usdtBtcEthMarkets("0")
	books := usdtBtcEthBooks("2150")

	ev, err := NewEvaluator(staticRules(markets), DefaultMaxRefinements).
		Evaluate(usdtBtcEth, domain.DirectionBBS, booksFor(usdtBtcEth, domain.DirectionBBS, books), d("100"), decimal.Zero)
	require.NoError(t, err)

	return &executorFixture{
		ex:      newFakeExchange(markets, books),
		ledger:  &memLedger{},
		events:  &eventRecorder{},
		sleeper: &fakeSleeper{},
		ev:      ev,
	}
}

func (f *executorFixture) executor(cfg ExecutorConfig) *Executor {
	return NewExecutor(f.ex, f.ledger, f.events, cfg, f.sleeper, &mockLogger{})
}

func legStates(rec *domain.OperationRecord) [3]domain.LegState {
	return [3]domain.LegState{rec.Legs[0].State, rec.Legs[1].State, rec.Legs[2].State}
}

func TestExecutor_AllLegsFill(t *testing.T) {
	f := newExecutorFixture(t)

	rec, err := f.executor(DefaultExecutorConfig()).Execute(context.Background(), f.ev, noSlippage)
	require.NoError(t, err)

	assert.True(t, rec.Completed())
	assert.True(t, rec.Legs[0].Filled.Equal(d("0.00333333")), "leg 1 filled %s", rec.Legs[0].Filled)
	assert.True(t, rec.Legs[1].Filled.Equal(d("0.047619")), "leg 2 filled %s", rec.Legs[1].Filled)
	assert.True(t, rec.Legs[2].Filled.Equal(d("0.047619")), "leg 3 filled %s", rec.Legs[2].Filled)
	assert.True(t, rec.Invested.Equal(d("99.9999")), "invested %s", rec.Invested)
	assert.True(t, rec.Returned.Equal(d("102.38085")), "returned %s", rec.Returned)
	assert.True(t, rec.PnL.Equal(d("2.38095")), "pnl %s", rec.PnL)

	// placed, polling and filled per leg
	assert.Len(t, f.ledger.legs, 9)
	require.Len(t, f.ledger.operations, 1)
	assert.Equal(t, rec.ID, f.ledger.operations[0].ID)
	assert.Zero(t, f.ex.cancels)

	var opEvents int
	for _, ev := range f.events.events {
		if _, ok := ev.(domain.OperationEvent); ok {
			opEvents++
		}
	}
	assert.Equal(t, 1, opEvents)
}

func TestExecutor_SlippageWidensLimits(t *testing.T) {
	f := newExecutorFixture(t)
	slip := [3]decimal.Decimal{d("0.01"), d("0.01"), d("0.01")}

	_, err := f.executor(DefaultExecutorConfig()).Execute(context.Background(), f.ev, slip)
	require.NoError(t, err)

	placed := f.ex.placedOrders()
	require.Len(t, placed, 3)
	assert.True(t, placed[0].Price.Equal(d("30300")), "leg 1 price %s", placed[0].Price)
	assert.True(t, placed[0].Amount.Equal(d("0.00330033")), "leg 1 amount %s", placed[0].Amount)
	assert.True(t, placed[1].Price.Equal(d("0.0707")), "leg 2 price %s", placed[1].Price)
	assert.True(t, placed[2].Price.Equal(d("2128.5")), "leg 3 price %s", placed[2].Price)
	assert.Equal(t, exchangeDomain.SideSell, placed[2].Side)
}

func TestExecutor_UnfilledLegIsCanceled(t *testing.T) {
	f := newExecutorFixture(t)
	f.ex.modes[sym("ETH/BTC")] = fillNever
	cfg := DefaultExecutorConfig()
	cfg.PollAttempts = 3

	rec, err := f.executor(cfg).Execute(context.Background(), f.ev, noSlippage)
	require.NoError(t, err)

	assert.Equal(t, [3]domain.LegState{domain.LegFilled, domain.LegCanceled, domain.LegSkipped}, legStates(rec))
	assert.Equal(t, 1, f.ex.cancels)
	assert.Len(t, f.ex.placedOrders(), 2)
	assert.True(t, rec.PnL.Equal(d("-99.9999")), "pnl %s", rec.PnL)
	assert.Empty(t, rec.Unwinds)

	// one poll for leg 1, the whole budget for leg 2
	assert.Len(t, f.sleeper.recorded(), 4)

	// every leg reaches the ledger, including the skipped one
	seen := map[int]domain.LegState{}
	for _, leg := range f.ledger.legs {
		seen[leg.Index] = leg.State
	}
	assert.Equal(t, map[int]domain.LegState{0: domain.LegFilled, 1: domain.LegCanceled, 2: domain.LegSkipped}, seen)
}

func TestExecutor_UnwindSellsStrandedAsset(t *testing.T) {
	f := newExecutorFixture(t)
	f.ex.modes[sym("ETH/BTC")] = fillNever
	cfg := DefaultExecutorConfig()
	cfg.PollAttempts = 2
	cfg.UnwindPolicy = UnwindSell

	rec, err := f.executor(cfg).Execute(context.Background(), f.ev, noSlippage)
	require.NoError(t, err)

	require.Len(t, rec.Unwinds, 1)
	u := rec.Unwinds[0]
	assert.Equal(t, 3, u.Index)
	assert.Equal(t, "BTC/USDT", u.Symbol.String())
	assert.Equal(t, exchangeDomain.SideSell, u.Side)
	assert.Equal(t, domain.LegFilled, u.State)
	assert.True(t, u.Amount.Equal(d("0.00333333")), "unwind amount %s", u.Amount)
	assert.True(t, u.Price.Equal(d("29999")), "unwind price %s", u.Price)

	assert.True(t, rec.Returned.Equal(d("99.99656667")), "returned %s", rec.Returned)
	assert.True(t, rec.PnL.Equal(d("-0.00333333")), "pnl %s", rec.PnL)
}

func TestExecutor_PartialFillFeedsNextLeg(t *testing.T) {
	f := newExecutorFixture(t)
	f.ex.modes[sym("ETH/BTC")] = fillHalf
	cfg := DefaultExecutorConfig()
	cfg.PollAttempts = 2

	rec, err := f.executor(cfg).Execute(context.Background(), f.ev, noSlippage)
	require.NoError(t, err)

	assert.Equal(t, domain.LegCanceled, rec.Legs[1].State)
	assert.True(t, rec.Legs[1].Filled.Equal(d("0.0238095")), "leg 2 filled %s", rec.Legs[1].Filled)
	assert.Equal(t, domain.LegFilled, rec.Legs[2].State)
	assert.True(t, rec.Legs[2].Amount.Equal(d("0.0238095")), "leg 3 amount %s", rec.Legs[2].Amount)
	assert.True(t, rec.Returned.Equal(d("51.190425")), "returned %s", rec.Returned)
	assert.False(t, rec.Completed())
}

func TestExecutor_PlacementFailure(t *testing.T) {
	f := newExecutorFixture(t)
	f.ex.placeErr = apperror.Exchange("order rejected", 400, errors.New("insufficient balance"))

	rec, err := f.executor(DefaultExecutorConfig()).Execute(context.Background(), f.ev, noSlippage)
	require.Error(t, err)

	assert.True(t, apperror.HasCode(err, apperror.CodeOrderPlacementFailed))
	assert.True(t, apperror.IsExchange(err), "placement failure keeps the exchange class")
	require.NotNil(t, rec)
	assert.Equal(t, [3]domain.LegState{domain.LegSkipped, domain.LegSkipped, domain.LegSkipped}, legStates(rec))
	assert.Equal(t, "previous leg failed", rec.Legs[2].Error)
	assert.Len(t, f.ledger.operations, 1)
	assert.True(t, rec.PnL.IsZero())
}

func TestExecutor_LimitViolationSkipsLeg(t *testing.T) {
	f := newExecutorFixture(t)
	m := f.ex.markets[sym("ETH/USDT")]
	m.Cost = exchangeDomain.Limits{Min: d("1000")}
	f.ex.markets[m.Symbol] = m

	rec, err := f.executor(DefaultExecutorConfig()).Execute(context.Background(), f.ev, noSlippage)
	require.NoError(t, err)

	assert.Equal(t, [3]domain.LegState{domain.LegFilled, domain.LegFilled, domain.LegSkipped}, legStates(rec))
	assert.Len(t, f.ex.placedOrders(), 2)
	assert.NotEmpty(t, rec.Legs[2].Error)
}

func TestExecutor_ContextCanceledWhilePolling(t *testing.T) {
	f := newExecutorFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleeper := SleeperFunc(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})
	x := NewExecutor(f.ex, f.ledger, f.events, DefaultExecutorConfig(), sleeper, &mockLogger{})

	rec, err := x.Execute(ctx, f.ev, noSlippage)
	require.ErrorIs(t, err, context.Canceled)

	// the open order is canceled even though ctx is done
	assert.Equal(t, 1, f.ex.cancels)
	assert.Equal(t, [3]domain.LegState{domain.LegCanceled, domain.LegSkipped, domain.LegSkipped}, legStates(rec))

	// terminal states and the record still reach the ledger
	assert.Equal(t, []domain.LegState{domain.LegPlaced, domain.LegPolling, domain.LegCanceled}, f.ledger.legStates(0))
	assert.Equal(t, []domain.LegState{domain.LegSkipped}, f.ledger.legStates(2))
	require.Len(t, f.ledger.operations, 1)
	assert.Equal(t, rec.ID, f.ledger.operations[0].ID)
}

func TestExecutor_UnwindAfterRejectedLeg(t *testing.T) {
	f := newExecutorFixture(t)
	f.ex.rejects[sym("ETH/BTC")] = apperror.Exchange("order rejected", 400, errors.New("filter failure"))
	cfg := DefaultExecutorConfig()
	cfg.UnwindPolicy = UnwindSell

	rec, err := f.executor(cfg).Execute(context.Background(), f.ev, noSlippage)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeOrderPlacementFailed))
	assert.True(t, apperror.IsExchange(err))

	assert.Equal(t, [3]domain.LegState{domain.LegFilled, domain.LegSkipped, domain.LegSkipped}, legStates(rec))
	require.Len(t, rec.Unwinds, 1)
	u := rec.Unwinds[0]
	assert.Equal(t, "BTC/USDT", u.Symbol.String())
	assert.Equal(t, domain.LegFilled, u.State)
	assert.True(t, u.Amount.Equal(d("0.00333333")), "unwind amount %s", u.Amount)
	assert.True(t, rec.PnL.Equal(d("-0.00333333")), "pnl %s", rec.PnL)
}

func TestExecutor_NoUnwindAfterCancel(t *testing.T) {
	f := newExecutorFixture(t)
	f.ex.modes[sym("ETH/BTC")] = fillNever
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	polls := 0
	sleeper := SleeperFunc(func(ctx context.Context, _ time.Duration) error {
		polls++
		if polls == 2 {
			cancel()
		}
		return ctx.Err()
	})
	cfg := DefaultExecutorConfig()
	cfg.UnwindPolicy = UnwindSell
	x := NewExecutor(f.ex, f.ledger, f.events, cfg, sleeper, &mockLogger{})

	rec, err := x.Execute(ctx, f.ev, noSlippage)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, [3]domain.LegState{domain.LegFilled, domain.LegCanceled, domain.LegSkipped}, legStates(rec))
	assert.Empty(t, rec.Unwinds)
	assert.Len(t, f.ex.placedOrders(), 2)
	assert.Len(t, f.ledger.operations, 1)
}
