package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fd1az/triarb-bot/business/arbitrage/domain"
	exchangeDomain "github.com/fd1az/triarb-bot/business/exchange/domain"
	"github.com/fd1az/triarb-bot/internal/apperror"
	"github.com/fd1az/triarb-bot/internal/logger"
)

// Unwind policies.
const (
	// UnwindContinue carries whatever a leg filled into the next leg.
	UnwindContinue = "continue"
	// UnwindSell also sells back to base what a short leg left unspent.
	UnwindSell = "unwind"
)

// cancelTimeout bounds the cancel issued after the caller's context ended.
const cancelTimeout = 10 * time.Second

// ExecutorConfig holds the order polling policy.
type ExecutorConfig struct {
	PollInterval time.Duration
	PollAttempts int
	UnwindPolicy string
}

// DefaultExecutorConfig polls every second, ten times.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		PollInterval: time.Second,
		PollAttempts: 10,
		UnwindPolicy: UnwindContinue,
	}
}

// Executor places the three orders of an evaluation in sequence. Each leg
// goes placed -> polling -> filled | canceled, or straight to skipped when
// no order can be sent, and every transition is appended to the ledger.
type Executor struct {
	ex      Exchange
	ledger  Ledger
	sink    EventSink
	log     logger.LoggerInterface
	cfg     ExecutorConfig
	sleeper Sleeper
	now     func() time.Time
	newID   func() string
}

// NewExecutor creates a new Executor.
func NewExecutor(ex Exchange, ledger Ledger, sink EventSink, cfg ExecutorConfig, sleeper Sleeper, log logger.LoggerInterface) *Executor {
	if ledger == nil {
		ledger = NopLedger
	}
	if sink == nil {
		sink = EventSinks(nil)
	}
	if sleeper == nil {
		sleeper = ContextSleeper
	}
	if cfg.PollAttempts < 1 {
		cfg.PollAttempts = 1
	}
	return &Executor{
		ex:      ex,
		ledger:  ledger,
		sink:    sink,
		log:     log,
		cfg:     cfg,
		sleeper: sleeper,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Execute runs ev. slippage widens each leg's limit price: up for buys,
// down for sells. Each leg spends what the previous one actually received.
//
// The record is always returned with three legs, also when a network or
// exchange error stops the sequence; that error is returned alongside.
func (x *Executor) Execute(ctx context.Context, ev *domain.Evaluation, slippage [3]decimal.Decimal) (*domain.OperationRecord, error) {
	rec := &domain.OperationRecord{
		ID:        x.newID(),
		CycleID:   ev.CycleID(),
		Direction: ev.Direction,
		StartedAt: x.now(),
	}
	for i, q := range ev.Legs {
		rec.Legs[i] = domain.LegResult{Index: i, Symbol: q.Symbol, Side: q.Side, State: domain.LegPending}
	}

	x.log.Info(ctx, "executing cycle",
		"operation_id", rec.ID,
		"cycle", rec.CycleID,
		"direction", string(ev.Direction),
		"invested", ev.Invested().String(),
		"expected_return", ev.Return().String())

	var inputs [3]decimal.Decimal
	input := ev.Legs[0].Input
	var runErr error
	for i := range rec.Legs {
		leg := &rec.Legs[i]
		inputs[i] = input

		if runErr != nil {
			x.skip(ctx, rec, leg, "previous leg failed")
			input = decimal.Zero
			continue
		}
		if !input.IsPositive() {
			x.skip(ctx, rec, leg, "nothing received from previous leg")
			continue
		}

		received, err := x.runLeg(ctx, rec, leg, ev.Legs[i].LimitPrice, input, slippage[i])
		if err != nil {
			runErr = err
		}
		if leg.State == domain.LegCanceled {
			x.log.Warn(ctx, "leg canceled before fill",
				"operation_id", rec.ID, "leg", i+1, "symbol", leg.Symbol.String(),
				"filled", leg.Filled.String(), "amount", leg.Amount.String())
		}
		input = received
	}

	if x.cfg.UnwindPolicy == UnwindSell && ctx.Err() == nil {
		if err := x.unwind(ctx, rec, ev.Cycle.Base, inputs, slippage[2]); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	// The record is written even when ctx ended mid-operation.
	wctx := context.WithoutCancel(ctx)
	rec.Finalize(x.now())
	if err := x.ledger.SaveOperation(wctx, *rec); err != nil {
		x.log.Error(ctx, "ledger: save operation failed", "operation_id", rec.ID, "error", err)
	}
	x.sink.Emit(wctx, domain.OperationEvent{Record: *rec})

	x.log.Info(ctx, "cycle executed",
		"operation_id", rec.ID,
		"completed", rec.Completed(),
		"pnl", rec.PnL.String(),
		"duration", rec.Duration.String())
	return rec, runErr
}

// runLeg sends one order for input units of the leg's input asset and
// returns what it received. A limit violation skips the leg without error.
func (x *Executor) runLeg(ctx context.Context, rec *domain.OperationRecord, leg *domain.LegResult, limit, input, slip decimal.Decimal) (decimal.Decimal, error) {
	m, err := x.ex.Market(leg.Symbol)
	if err != nil {
		x.skip(ctx, rec, leg, err.Error())
		return decimal.Zero, err
	}

	one := decimal.NewFromInt(1)
	price := limit.Mul(one.Add(slip))
	if leg.Side == exchangeDomain.SideSell {
		price = limit.Mul(one.Sub(slip))
	}
	leg.Price = m.PriceToPrecision(price)
	if leg.Side == exchangeDomain.SideBuy {
		if !leg.Price.IsPositive() {
			x.skip(ctx, rec, leg, "non-positive limit price")
			return decimal.Zero, nil
		}
		leg.Amount = m.AmountToPrecision(input.Div(leg.Price))
	} else {
		leg.Amount = m.AmountToPrecision(input)
	}

	if err := m.CheckOrder(leg.Amount, leg.Price); err != nil {
		x.skip(ctx, rec, leg, err.Error())
		return decimal.Zero, nil
	}

	order, err := x.place(ctx, leg)
	if err != nil {
		x.skip(ctx, rec, leg, err.Error())
		return decimal.Zero, apperror.New(apperror.CodeOrderPlacementFailed,
			apperror.WithContext(fmt.Sprintf("leg %d %s %s", leg.Index+1, leg.Side, leg.Symbol)),
			apperror.WithCause(err))
	}
	leg.Apply(order)
	x.transition(ctx, rec, leg, domain.LegPlaced)

	x.transition(ctx, rec, leg, domain.LegPolling)
	final, err := x.poll(ctx, order)
	leg.Apply(final)
	switch final.Status {
	case exchangeDomain.OrderClosed:
		x.transition(ctx, rec, leg, domain.LegFilled)
	case exchangeDomain.OrderCanceled:
		x.transition(ctx, rec, leg, domain.LegCanceled)
	default:
		// Not terminal: the leg stays in polling and err says why.
		leg.Error = fmt.Sprint(err)
	}
	return final.Received(), err
}

func (x *Executor) place(ctx context.Context, leg *domain.LegResult) (*exchangeDomain.Order, error) {
	if leg.Side == exchangeDomain.SideBuy {
		return x.ex.CreateLimitBuyOrder(ctx, leg.Symbol, leg.Amount, leg.Price)
	}
	return x.ex.CreateLimitSellOrder(ctx, leg.Symbol, leg.Amount, leg.Price)
}

// poll fetches the order until it is terminal or the attempt budget runs
// out, then cancels it and fetches its final state. The cancel runs on a
// detached context so it is still sent after ctx ends. The returned order is
// never nil; the error is set when polling stopped early or the order could
// not be brought to a terminal state.
func (x *Executor) poll(ctx context.Context, order *exchangeDomain.Order) (*exchangeDomain.Order, error) {
	current := *order

	var stopErr error
	for attempt := 0; attempt < x.cfg.PollAttempts && !current.Status.Terminal(); attempt++ {
		if err := x.sleeper.Sleep(ctx, x.cfg.PollInterval); err != nil {
			stopErr = err
			break
		}
		next, err := x.ex.FetchOrder(ctx, current.ID, current.Symbol)
		if err != nil {
			stopErr = err
			break
		}
		current.Update(next)
	}
	if current.Status.Terminal() {
		return &current, stopErr
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()

	canceled, cancelErr := x.ex.CancelOrder(cctx, current.ID, current.Symbol)
	if canceled != nil {
		current.Update(canceled)
	}
	final, fetchErr := x.ex.FetchOrder(cctx, current.ID, current.Symbol)
	if fetchErr == nil {
		current.Update(final)
	}

	if current.Status.Terminal() || stopErr != nil {
		return &current, stopErr
	}
	switch {
	case cancelErr != nil:
		return &current, cancelErr
	case fetchErr != nil:
		return &current, fetchErr
	default:
		return &current, apperror.New(apperror.CodeExchangeError,
			apperror.WithContext("order "+current.ID+" still "+string(current.Status)+" after cancel"))
	}
}

// unwind sells back to base what each non-filled leg after the first left
// unspent, whether it was canceled, skipped or rejected.
func (x *Executor) unwind(ctx context.Context, rec *domain.OperationRecord, base string, inputs [3]decimal.Decimal, slip decimal.Decimal) error {
	for i := 1; i < len(rec.Legs); i++ {
		leg := rec.Legs[i]
		if leg.State == domain.LegFilled || !inputs[i].IsPositive() {
			continue
		}
		spent := leg.Filled
		if leg.Side == exchangeDomain.SideBuy {
			spent = leg.Cost
		}
		unspent := inputs[i].Sub(spent)
		if !unspent.IsPositive() {
			continue
		}

		asset := leg.Symbol.Base
		if leg.Side == exchangeDomain.SideBuy {
			asset = leg.Symbol.Quote
		}
		u := domain.LegResult{
			Index:  len(rec.Legs) + len(rec.Unwinds),
			Symbol: exchangeDomain.NewSymbol(asset, base),
			Side:   exchangeDomain.SideSell,
			State:  domain.LegPending,
		}

		book, err := x.ex.FetchOrderBook(ctx, u.Symbol, 5)
		if err != nil {
			x.skip(ctx, rec, &u, err.Error())
			rec.Unwinds = append(rec.Unwinds, u)
			return err
		}
		bid := book.BestBid()
		if bid == nil {
			x.skip(ctx, rec, &u, "no bids")
			rec.Unwinds = append(rec.Unwinds, u)
			continue
		}

		x.log.Warn(ctx, "unwinding stranded asset",
			"operation_id", rec.ID, "asset", asset, "amount", unspent.String())
		_, err = x.runLeg(ctx, rec, &u, bid.Price, unspent, slip)
		rec.Unwinds = append(rec.Unwinds, u)
		if err != nil {
			return err
		}
	}
	return nil
}

func (x *Executor) skip(ctx context.Context, rec *domain.OperationRecord, leg *domain.LegResult, reason string) {
	leg.Error = reason
	x.transition(ctx, rec, leg, domain.LegSkipped)
}

func (x *Executor) transition(ctx context.Context, rec *domain.OperationRecord, leg *domain.LegResult, state domain.LegState) {
	leg.State = state
	leg.UpdatedAt = x.now()
	wctx := context.WithoutCancel(ctx)
	if err := x.ledger.AppendLeg(wctx, rec.ID, rec.CycleID, *leg); err != nil {
		x.log.Error(ctx, "ledger: append leg failed", "operation_id", rec.ID, "leg", leg.Index+1, "error", err)
	}
	x.sink.Emit(wctx, domain.LegEvent{OperationID: rec.ID, CycleID: rec.CycleID, Leg: *leg})
}
