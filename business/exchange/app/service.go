package app

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fd1az/triarb-bot/business/exchange/domain"
	"github.com/fd1az/triarb-bot/internal/apperror"
	"github.com/fd1az/triarb-bot/internal/logger"
)

// Fees are applied to markets whose adapter reports no fee.
type Fees struct {
	Taker decimal.Decimal
	Maker decimal.Decimal
}

// ExchangeService wraps a venue adapter with the market catalog loaded at
// startup, so callers can round quantities per symbol.
type ExchangeService struct {
	ex          Exchange
	defaultFees Fees
	log         logger.LoggerInterface

	mu      sync.RWMutex
	markets map[domain.Symbol]domain.Market
}

// NewExchangeService creates a new ExchangeService. LoadMarkets must be called
// before any per-symbol method.
func NewExchangeService(ex Exchange, fees Fees, log logger.LoggerInterface) *ExchangeService {
	return &ExchangeService{
		ex:          ex,
		defaultFees: fees,
		log:         log,
		markets:     make(map[domain.Symbol]domain.Market),
	}
}

// Name returns the adapter name.
func (s *ExchangeService) Name() string {
	return s.ex.Name()
}

// LoadMarkets fetches the market catalog. Inactive and invalid markets are
// skipped.
func (s *ExchangeService) LoadMarkets(ctx context.Context) error {
	markets, err := s.ex.FetchMarkets(ctx)
	if err != nil {
		return err
	}

	loaded := make(map[domain.Symbol]domain.Market, len(markets))
	skipped := 0
	for _, m := range markets {
		if !m.Active {
			skipped++
			continue
		}
		if err := m.Validate(); err != nil {
			s.log.Warn(ctx, "skipping invalid market", "symbol", m.Symbol.String(), "error", err)
			skipped++
			continue
		}
		if m.TakerFee.IsZero() {
			m.TakerFee = s.defaultFees.Taker
		}
		if m.MakerFee.IsZero() {
			m.MakerFee = s.defaultFees.Maker
		}
		loaded[m.Symbol] = m
	}

	s.mu.Lock()
	s.markets = loaded
	s.mu.Unlock()

	s.log.Info(ctx, "markets loaded", "exchange", s.ex.Name(), "active", len(loaded), "skipped", skipped)
	return nil
}

// Markets returns the loaded markets sorted by symbol.
func (s *ExchangeService) Markets() []domain.Market {
	s.mu.RLock()
	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol.String() < out[j].Symbol.String() })
	return out
}

// Market returns the market for symbol.
func (s *ExchangeService) Market(symbol domain.Symbol) (domain.Market, error) {
	s.mu.RLock()
	m, ok := s.markets[symbol]
	s.mu.RUnlock()
	if !ok {
		return domain.Market{}, apperror.NotFound(apperror.CodeMarketNotFound, symbol.String())
	}
	return m, nil
}

// AmountToPrecision truncates amount to the symbol's amount precision.
func (s *ExchangeService) AmountToPrecision(symbol domain.Symbol, amount decimal.Decimal) (decimal.Decimal, error) {
	m, err := s.Market(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return m.AmountToPrecision(amount), nil
}

// PriceToPrecision rounds price to the symbol's price precision.
func (s *ExchangeService) PriceToPrecision(symbol domain.Symbol, price decimal.Decimal) (decimal.Decimal, error) {
	m, err := s.Market(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return m.PriceToPrecision(price), nil
}

// CostToPrecision truncates cost to the symbol's cost precision.
func (s *ExchangeService) CostToPrecision(symbol domain.Symbol, cost decimal.Decimal) (decimal.Decimal, error) {
	m, err := s.Market(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return m.CostToPrecision(cost), nil
}

// FetchOrderBook returns a validated order book.
func (s *ExchangeService) FetchOrderBook(ctx context.Context, symbol domain.Symbol, limit int) (*domain.Orderbook, error) {
	ob, err := s.ex.FetchOrderBook(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}
	if err := ob.Validate(); err != nil {
		return nil, err
	}
	return ob, nil
}

func (s *ExchangeService) FetchTickers(ctx context.Context, symbols []domain.Symbol) (map[domain.Symbol]domain.Ticker, error) {
	return s.ex.FetchTickers(ctx, symbols)
}

func (s *ExchangeService) FetchBalance(ctx context.Context) (domain.Balances, error) {
	return s.ex.FetchBalance(ctx)
}

// CreateLimitBuyOrder places a limit buy after checking the market limits.
func (s *ExchangeService) CreateLimitBuyOrder(ctx context.Context, symbol domain.Symbol, amount, price decimal.Decimal) (*domain.Order, error) {
	return s.createLimitOrder(ctx, symbol, domain.SideBuy, amount, price)
}

// CreateLimitSellOrder places a limit sell after checking the market limits.
func (s *ExchangeService) CreateLimitSellOrder(ctx context.Context, symbol domain.Symbol, amount, price decimal.Decimal) (*domain.Order, error) {
	return s.createLimitOrder(ctx, symbol, domain.SideSell, amount, price)
}

func (s *ExchangeService) createLimitOrder(ctx context.Context, symbol domain.Symbol, side domain.Side, amount, price decimal.Decimal) (*domain.Order, error) {
	m, err := s.Market(symbol)
	if err != nil {
		return nil, err
	}
	amount = m.AmountToPrecision(amount)
	price = m.PriceToPrecision(price)
	if err := m.CheckOrder(amount, price); err != nil {
		return nil, err
	}
	return s.ex.CreateLimitOrder(ctx, symbol, side, amount, price)
}

func (s *ExchangeService) FetchOrder(ctx context.Context, id string, symbol domain.Symbol) (*domain.Order, error) {
	return s.ex.FetchOrder(ctx, id, symbol)
}

func (s *ExchangeService) CancelOrder(ctx context.Context, id string, symbol domain.Symbol) (*domain.Order, error) {
	return s.ex.CancelOrder(ctx, id, symbol)
}

// StreamDepth asks the adapter to stream the books of symbols. Adapters
// without a stream ignore it.
func (s *ExchangeService) StreamDepth(ctx context.Context, symbols []domain.Symbol) error {
	if st, ok := s.ex.(DepthStreamer); ok {
		return st.StreamDepth(ctx, symbols)
	}
	return nil
}

// Close releases adapter resources.
func (s *ExchangeService) Close() error {
	if c, ok := s.ex.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
