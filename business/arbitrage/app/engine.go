package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/triarb-bot/business/arbitrage/domain"
	exchangeDomain "github.com/fd1az/triarb-bot/business/exchange/domain"
	"github.com/fd1az/triarb-bot/internal/apm"
	"github.com/fd1az/triarb-bot/internal/apperror"
	"github.com/fd1az/triarb-bot/internal/logger"
)

// Price sources.
const (
	PriceSourceDepth  = "depth"
	PriceSourceTicker = "ticker"
)

// EngineConfig holds the per-run trading parameters.
type EngineConfig struct {
	MinProfit decimal.Decimal
	Slippage  [3]decimal.Decimal
	// PriceSource selects full order books or best bid/ask.
	PriceSource string
	DepthLimit  int
	// BalanceRefreshEvery is the number of checks between balance fetches;
	// zero disables balance tracking.
	BalanceRefreshEvery int
	// DryRun evaluates and scores without placing orders.
	DryRun bool
}

// Engine runs the evaluate, decide, execute and rescore loop.
type Engine struct {
	ex        Exchange
	evaluator *Evaluator
	scheduler *Scheduler
	executor  *Executor
	backoff   *BackoffController
	ledger    Ledger
	sink      EventSink
	tracer    apm.Tracer
	log       logger.LoggerInterface
	cfg       EngineConfig
	now       func() time.Time

	mu           sync.Mutex
	summary      domain.Summary
	balances     exchangeDomain.Balances
	sinceRefresh int

	// lastIteration is the unix nano time of the last finished iteration.
	lastIteration atomic.Int64
}

// NewEngine creates a new Engine.
func NewEngine(
	ex Exchange,
	evaluator *Evaluator,
	scheduler *Scheduler,
	executor *Executor,
	controller *BackoffController,
	ledger Ledger,
	sink EventSink,
	cfg EngineConfig,
	log logger.LoggerInterface,
) *Engine {
	if ledger == nil {
		ledger = NopLedger
	}
	if sink == nil {
		sink = EventSinks(nil)
	}
	if cfg.DepthLimit <= 0 {
		cfg.DepthLimit = 20
	}
	if cfg.PriceSource == "" {
		cfg.PriceSource = PriceSourceDepth
	}
	return &Engine{
		ex:        ex,
		evaluator: evaluator,
		scheduler: scheduler,
		executor:  executor,
		backoff:   controller,
		ledger:    ledger,
		sink:      sink,
		tracer:    apm.NewTracer("arbitrage.engine"),
		log:       log,
		cfg:       cfg,
		now:       time.Now,
	}
}

// EvaluateAndExecute evaluates one direction of cycle and, when it clears
// minProfit, executes it. No opportunity is not an error: the record then
// carries the reason. Network and exchange errors are returned with a nil
// record unless an execution had started.
func (e *Engine) EvaluateAndExecute(
	ctx context.Context,
	cycle domain.Cycle,
	dir domain.Direction,
	investment decimal.Decimal,
	minProfit decimal.Decimal,
	slippage [3]decimal.Decimal,
) (*domain.EvaluationRecord, error) {
	ctx, span := e.tracer.StartSpanFromContext(ctx, "arbitrage.EvaluateAndExecute")
	defer span.End()
	span.SetAttributes(
		attribute.String("cycle", cycle.ID()),
		attribute.String("direction", string(dir)),
	)

	rec := &domain.EvaluationRecord{CycleID: cycle.ID(), Direction: dir, Timestamp: e.now()}

	books, err := e.fetchBooks(ctx, cycle, dir)
	if err == nil {
		rec.Evaluation, err = e.evaluator.Evaluate(cycle, dir, books, investment, minProfit)
	}
	if err != nil {
		if !apperror.IsNoOpportunity(err) {
			span.NoticeError(err)
			return nil, err
		}
		rec.NoOpportunity = err.Error()
		e.score(rec, nil)
		e.record(ctx, rec)
		return rec, nil
	}

	if !rec.Profitable() || e.cfg.DryRun {
		e.score(rec, nil)
		e.record(ctx, rec)
		return rec, nil
	}

	op, err := e.executor.Execute(ctx, rec.Evaluation, slippage)
	rec.Executed = true
	rec.OperationID = op.ID
	rec.ExecutedReturn = op.Returned
	span.SetAttributes(attribute.String("operation_id", op.ID))
	span.NoticeError(err)

	e.mu.Lock()
	e.summary.RecordOperation(*op)
	e.mu.Unlock()

	e.score(rec, err)
	e.record(ctx, rec)
	return rec, err
}

// score rewards a profitable evaluation that executed cleanly (or would have,
// in dry run) and penalizes one that was not profitable.
func (e *Engine) score(rec *domain.EvaluationRecord, execErr error) {
	switch {
	case !rec.Profitable():
		e.scheduler.Penalize(rec.CycleID)
	case execErr == nil:
		e.scheduler.Reward(rec.CycleID)
	}
}

func (e *Engine) record(ctx context.Context, rec *domain.EvaluationRecord) {
	ctx = context.WithoutCancel(ctx)
	if err := e.ledger.SaveEvaluation(ctx, *rec); err != nil {
		e.log.Error(ctx, "ledger: save evaluation failed", "cycle", rec.CycleID, "error", err)
	}
	e.mu.Lock()
	e.summary.Record(*rec)
	e.mu.Unlock()
	e.sink.Emit(ctx, domain.EvaluatedEvent{Record: *rec, Score: e.scheduler.Score(rec.CycleID)})
}

// fetchBooks loads the three leg books concurrently, or builds one-level
// books from tickers when the price source is ticker.
func (e *Engine) fetchBooks(ctx context.Context, cycle domain.Cycle, dir domain.Direction) ([3]*exchangeDomain.Orderbook, error) {
	var books [3]*exchangeDomain.Orderbook
	legs := dir.Legs(cycle)

	if e.cfg.PriceSource == PriceSourceTicker {
		symbols := make([]exchangeDomain.Symbol, len(legs))
		for i, leg := range legs {
			symbols[i] = leg.Symbol
		}
		tickers, err := e.ex.FetchTickers(ctx, symbols)
		if err != nil {
			return books, err
		}
		for i, s := range symbols {
			t, ok := tickers[s]
			if !ok {
				return books, apperror.New(apperror.CodeUndefinedPrice, apperror.WithContext("no ticker for "+s.String()))
			}
			books[i] = t.Orderbook()
		}
		return books, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, leg := range legs {
		g.Go(func() error {
			ob, err := e.ex.FetchOrderBook(gctx, leg.Symbol, e.cfg.DepthLimit)
			if err != nil {
				return err
			}
			books[i] = ob
			return nil
		})
	}
	return books, g.Wait()
}

// RunLoop scans cycles until ctx ends or the backoff controller gives up.
// An iteration is one scheduler round; a round without network or exchange
// errors resets the backoff counters. It returns nil when ctx ends.
func (e *Engine) RunLoop(ctx context.Context, initialInvestment decimal.Decimal) error {
	if e.scheduler.Len() == 0 {
		return apperror.New(apperror.CodeInvalidState, apperror.WithContext("no cycles to scan"))
	}

	e.mu.Lock()
	e.summary = domain.Summary{StartedAt: e.now()}
	e.mu.Unlock()

	e.log.Info(ctx, "arbitrage loop started",
		"cycles", e.scheduler.Len(),
		"investment", initialInvestment.String(),
		"min_profit", e.cfg.MinProfit.String(),
		"price_source", e.cfg.PriceSource,
		"dry_run", e.cfg.DryRun)
	defer e.emitSummary(context.WithoutCancel(ctx))

	for {
		failed := false
		for _, cycle := range e.scheduler.Round() {
			if ctx.Err() != nil {
				return nil
			}
			err := e.check(ctx, cycle, initialInvestment)
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			failed = true
			if fatal := e.handleError(ctx, cycle.ID(), err); fatal != nil {
				if ctx.Err() != nil {
					return nil
				}
				e.log.Error(ctx, "arbitrage loop aborted", "error", fatal)
				return fatal
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		if !failed {
			e.backoff.Success()
		}
		e.lastIteration.Store(e.now().UnixNano())
	}
}

// check evaluates both directions of cycle. The cycle is held for the
// duration so no other caller executes it concurrently.
func (e *Engine) check(ctx context.Context, cycle domain.Cycle, initialInvestment decimal.Decimal) error {
	if !e.scheduler.Acquire(cycle.ID()) {
		return nil
	}
	defer e.scheduler.Release(cycle.ID())

	investment := e.investment(ctx, cycle.Base, initialInvestment)
	for _, dir := range domain.Directions {
		if _, err := e.EvaluateAndExecute(ctx, cycle, dir, investment, e.cfg.MinProfit, e.cfg.Slippage); err != nil {
			return err
		}
	}
	return nil
}

// investment caps initial by the free balance of base once a balance is
// known. Balances are refreshed every BalanceRefreshEvery checks; a failed
// refresh keeps the previous balances.
func (e *Engine) investment(ctx context.Context, base string, initial decimal.Decimal) decimal.Decimal {
	every := e.cfg.BalanceRefreshEvery
	if every <= 0 {
		return initial
	}

	e.mu.Lock()
	refresh := e.sinceRefresh == 0
	e.sinceRefresh = (e.sinceRefresh + 1) % every
	e.mu.Unlock()

	if refresh {
		e.refreshBalances(ctx)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.balances == nil {
		return initial
	}
	return decimal.Min(initial, e.balances.Free(base))
}

func (e *Engine) refreshBalances(ctx context.Context) {
	balances, err := e.ex.FetchBalance(ctx)
	if err != nil {
		e.log.Warn(ctx, "balance refresh failed", "error", err)
		return
	}
	e.mu.Lock()
	e.balances = balances
	e.mu.Unlock()

	e.sink.Emit(ctx, domain.BalanceEvent{Balances: balances, Timestamp: e.now()})
	e.emitSummary(ctx)
}

func (e *Engine) handleError(ctx context.Context, cycleID string, err error) error {
	e.mu.Lock()
	e.summary.Errors++
	e.mu.Unlock()

	class := apperror.Classify(err)
	e.log.Warn(ctx, "cycle check failed",
		"cycle", cycleID, "class", class.String(), "error", err)

	dec := e.backoff.Handle(ctx, err)
	e.sink.Emit(ctx, domain.ErrorEvent{
		CycleID:     cycleID,
		Class:       dec.Class.String(),
		Err:         err,
		Sleep:       dec.Sleep,
		Consecutive: dec.Consecutive,
		Fatal:       dec.Fatal != nil,
	})
	return dec.Fatal
}

func (e *Engine) emitSummary(ctx context.Context) {
	e.sink.Emit(ctx, domain.SummaryEvent{Summary: e.Summary()})
}

// Summary returns the run totals so far.
func (e *Engine) Summary() domain.Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

// Balances returns the last fetched balances, nil before the first refresh.
func (e *Engine) Balances() exchangeDomain.Balances {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances
}

// Alive reports whether the loop finished an iteration within maxAge.
// Backoff pauses count as not alive.
func (e *Engine) Alive(maxAge time.Duration) bool {
	last := e.lastIteration.Load()
	return last != 0 && e.now().Sub(time.Unix(0, last)) <= maxAge
}
