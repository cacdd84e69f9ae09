// Package paper implements a simulated exchange that fills limit orders
// against real or seeded order books and keeps balances in memory.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fd1az/triarb-bot/business/exchange/app"
	"github.com/fd1az/triarb-bot/business/exchange/domain"
	"github.com/fd1az/triarb-bot/internal/apperror"
	"github.com/fd1az/triarb-bot/internal/logger"
)

var _ app.Exchange = (*Exchange)(nil)

// matchDepth is the number of levels fetched to match an order.
const matchDepth = 100

// MarketData is the read-only part of a venue the simulator prices against.
type MarketData interface {
	FetchMarkets(ctx context.Context) ([]domain.Market, error)
	FetchOrderBook(ctx context.Context, symbol domain.Symbol, limit int) (*domain.Orderbook, error)
	FetchTickers(ctx context.Context, symbols []domain.Symbol) (map[domain.Symbol]domain.Ticker, error)
}

// Config holds the simulator settings.
type Config struct {
	Balances map[string]decimal.Decimal
	TakerFee decimal.Decimal
}

type paperOrder struct {
	order    domain.Order
	reserved decimal.Decimal // unspent part of the locked input asset
}

// Exchange is a paper-trading venue. Orders take liquidity at placement and
// on every fetch until they close or are canceled; they never rest on the
// book.
type Exchange struct {
	source MarketData
	config Config
	logger logger.LoggerInterface
	now    func() time.Time

	mu       sync.Mutex
	balances domain.Balances
	orders   map[string]*paperOrder
}

// NewExchange creates a paper exchange priced by source.
func NewExchange(source MarketData, cfg Config, log logger.LoggerInterface) *Exchange {
	balances := make(domain.Balances, len(cfg.Balances))
	for asset, amount := range cfg.Balances {
		balances[asset] = amount
	}
	return &Exchange{
		source:   source,
		config:   cfg,
		logger:   log,
		now:      time.Now,
		balances: balances,
		orders:   make(map[string]*paperOrder),
	}
}

func (e *Exchange) Name() string { return "paper" }

func (e *Exchange) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	return e.source.FetchMarkets(ctx)
}

func (e *Exchange) FetchOrderBook(ctx context.Context, symbol domain.Symbol, limit int) (*domain.Orderbook, error) {
	return e.source.FetchOrderBook(ctx, symbol, limit)
}

func (e *Exchange) FetchTickers(ctx context.Context, symbols []domain.Symbol) (map[domain.Symbol]domain.Ticker, error) {
	return e.source.FetchTickers(ctx, symbols)
}

// StreamDepth forwards to the source when it can stream.
func (e *Exchange) StreamDepth(ctx context.Context, symbols []domain.Symbol) error {
	if st, ok := e.source.(app.DepthStreamer); ok {
		return st.StreamDepth(ctx, symbols)
	}
	return nil
}

// Close closes the source when it holds resources.
func (e *Exchange) Close() error {
	if c, ok := e.source.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// FetchBalance returns a copy of the simulated free balances.
func (e *Exchange) FetchBalance(_ context.Context) (domain.Balances, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(domain.Balances, len(e.balances))
	for asset, amount := range e.balances {
		if amount.IsPositive() {
			out[asset] = amount
		}
	}
	return out, nil
}

// CreateLimitOrder locks the input asset and matches the order immediately.
func (e *Exchange) CreateLimitOrder(ctx context.Context, symbol domain.Symbol, side domain.Side, amount, price decimal.Decimal) (*domain.Order, error) {
	if !amount.IsPositive() || !price.IsPositive() {
		return nil, apperror.Exchange("paper: non-positive amount or price", 400, nil)
	}

	asset, need := symbol.Quote, amount.Mul(price)
	if side == domain.SideSell {
		asset, need = symbol.Base, amount
	}

	e.mu.Lock()
	if e.balances.Free(asset).LessThan(need) {
		free := e.balances.Free(asset)
		e.mu.Unlock()
		return nil, apperror.New(apperror.CodeInsufficientBalance,
			apperror.WithContext(fmt.Sprintf("paper: %s free %s, need %s", asset, free, need)))
	}
	e.balances[asset] = e.balances.Free(asset).Sub(need)

	po := &paperOrder{
		order: domain.Order{
			ID:        uuid.NewString(),
			Symbol:    symbol,
			Side:      side,
			Status:    domain.OrderOpen,
			Price:     price,
			Amount:    amount,
			Timestamp: e.now(),
		},
		reserved: need,
	}
	e.orders[po.order.ID] = po
	e.mu.Unlock()

	if err := e.match(ctx, po); err != nil {
		return nil, err
	}

	e.logger.Debug(ctx, "paper order placed",
		"id", po.order.ID, "symbol", symbol.String(), "side", string(side),
		"amount", amount.String(), "price", price.String())
	return e.snapshot(po), nil
}

// FetchOrder retries matching for orders still open.
func (e *Exchange) FetchOrder(ctx context.Context, id string, _ domain.Symbol) (*domain.Order, error) {
	po, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := e.match(ctx, po); err != nil {
		return nil, err
	}
	return e.snapshot(po), nil
}

// CancelOrder cancels an open order and releases its unspent reservation.
// Canceling a terminal order returns it unchanged.
func (e *Exchange) CancelOrder(_ context.Context, id string, _ domain.Symbol) (*domain.Order, error) {
	po, err := e.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if !po.order.Status.Terminal() {
		po.order.Status = domain.OrderCanceled
		po.order.Timestamp = e.now()
		e.release(po)
	}
	e.mu.Unlock()

	return e.snapshot(po), nil
}

func (e *Exchange) lookup(id string) (*paperOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	po, ok := e.orders[id]
	if !ok {
		return nil, apperror.NotFound(apperror.CodeOrderNotFound, "paper order "+id)
	}
	return po, nil
}

func (e *Exchange) snapshot(po *paperOrder) *domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	o := po.order
	return &o
}

// match takes liquidity up to the limit price from a fresh book.
func (e *Exchange) match(ctx context.Context, po *paperOrder) error {
	e.mu.Lock()
	if po.order.Status.Terminal() {
		e.mu.Unlock()
		return nil
	}
	symbol := po.order.Symbol
	e.mu.Unlock()

	book, err := e.source.FetchOrderBook(ctx, symbol, matchDepth)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Re-check: a concurrent cancel may have landed while the book was fetched.
	if po.order.Status.Terminal() {
		return nil
	}

	o := &po.order
	remaining := o.Remaining()
	filled, cost := decimal.Zero, decimal.Zero
	for _, level := range book.Levels(o.Side) {
		if !remaining.IsPositive() {
			break
		}
		if o.Side == domain.SideBuy && level.Price.GreaterThan(o.Price) {
			break
		}
		if o.Side == domain.SideSell && level.Price.LessThan(o.Price) {
			break
		}
		take := decimal.Min(remaining, level.Amount)
		filled = filled.Add(take)
		cost = cost.Add(take.Mul(level.Price))
		remaining = remaining.Sub(take)
	}

	if filled.IsPositive() {
		e.settle(po, filled, cost)
	}

	switch {
	case !o.Remaining().IsPositive():
		o.Status = domain.OrderClosed
		e.release(po)
	case o.Filled.IsPositive():
		o.Status = domain.OrderPartiallyFilled
	}
	o.Timestamp = e.now()
	return nil
}

// settle books one fill: the input asset comes out of the reservation and
// the output asset, net of the taker fee, is credited.
func (e *Exchange) settle(po *paperOrder, filled, cost decimal.Decimal) {
	o := &po.order
	o.Filled = o.Filled.Add(filled)
	o.Cost = o.Cost.Add(cost)

	var out string
	var gross decimal.Decimal
	if o.Side == domain.SideBuy {
		po.reserved = po.reserved.Sub(cost)
		out, gross = o.Symbol.Base, filled
	} else {
		po.reserved = po.reserved.Sub(filled)
		out, gross = o.Symbol.Quote, cost
	}

	fee := gross.Mul(e.config.TakerFee)
	o.Fee = domain.Fee{Cost: o.Fee.Cost.Add(fee), Currency: out}
	e.balances[out] = e.balances.Free(out).Add(gross.Sub(fee))
}

// release refunds whatever remains reserved. Callers hold e.mu.
func (e *Exchange) release(po *paperOrder) {
	if !po.reserved.IsPositive() {
		return
	}
	asset := po.order.Symbol.Quote
	if po.order.Side == domain.SideSell {
		asset = po.order.Symbol.Base
	}
	e.balances[asset] = e.balances.Free(asset).Add(po.reserved)
	po.reserved = decimal.Zero
}
