package binance

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/triarb-bot/business/exchange/app"
	"github.com/fd1az/triarb-bot/business/exchange/domain"
	"github.com/fd1az/triarb-bot/internal/logger"
)

// Ensure Exchange implements the port.
var _ app.Exchange = (*Exchange)(nil)

// Config holds configuration for the Binance exchange adapter.
type Config struct {
	REST   RESTConfig
	Stream StreamConfig
	// UseStream serves order books from the depth stream when fresh.
	UseStream bool
	// TakerFee estimates the commission when a response carries no fills.
	TakerFee decimal.Decimal
}

// Exchange implements app.Exchange for Binance spot.
type Exchange struct {
	config Config
	logger logger.LoggerInterface
	rest   *RESTClient
	depth  *DepthCache // nil when streaming is disabled
	tracer trace.Tracer
}

// NewExchange creates a new Binance adapter.
func NewExchange(cfg Config, log logger.LoggerInterface) (*Exchange, error) {
	rest, err := NewRESTClient(cfg.REST, log)
	if err != nil {
		return nil, err
	}

	e := &Exchange{
		config: cfg,
		logger: log,
		rest:   rest,
		tracer: rest.tracer,
	}

	if cfg.UseStream {
		e.depth, err = NewDepthCache(cfg.Stream, log)
		if err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Name identifies the venue.
func (e *Exchange) Name() string { return "binance" }

// StreamDepth subscribes the depth cache to symbols. It is a no-op when
// streaming is disabled.
func (e *Exchange) StreamDepth(ctx context.Context, symbols []domain.Symbol) error {
	if e.depth == nil {
		return nil
	}
	ids := make([]string, 0, len(symbols))
	for _, s := range symbols {
		ids = append(ids, s.ExchangeID())
	}
	return e.depth.Subscribe(ctx, ids)
}

// StreamConnected reports whether the depth stream is live; true when
// streaming is disabled.
func (e *Exchange) StreamConnected() bool {
	return e.depth == nil || e.depth.IsConnected()
}

// Close releases the depth stream.
func (e *Exchange) Close() error {
	if e.depth == nil {
		return nil
	}
	return e.depth.Close()
}

// FetchMarkets loads exchangeInfo and converts every spot symbol.
func (e *Exchange) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	info, err := e.rest.ExchangeInfo(ctx)
	if err != nil {
		return nil, err
	}

	markets := make([]domain.Market, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		markets = append(markets, s.ToMarket())
	}

	e.logger.Debug(ctx, "exchange info loaded", "symbols", len(markets))
	return markets, nil
}

// FetchOrderBook serves the stream cache when it holds a fresh book and falls
// back to REST otherwise.
func (e *Exchange) FetchOrderBook(ctx context.Context, symbol domain.Symbol, limit int) (*domain.Orderbook, error) {
	ctx, span := e.tracer.Start(ctx, "binance.fetch_order_book",
		trace.WithAttributes(attribute.String("symbol", symbol.String())),
	)
	defer span.End()

	if e.depth != nil {
		if bids, asks, at, ok := e.depth.Get(symbol.ExchangeID()); ok {
			span.SetAttributes(attribute.String("source", "stream"))
			return &domain.Orderbook{
				Symbol:    symbol,
				Bids:      truncateLevels(bids, limit),
				Asks:      truncateLevels(asks, limit),
				Timestamp: at,
			}, nil
		}
		e.logger.Debug(ctx, "depth stale or missing, using HTTP", "symbol", symbol.String())
	}

	span.SetAttributes(attribute.String("source", "rest"))
	depth, err := e.rest.GetDepth(ctx, symbol.ExchangeID(), limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return depth.ToOrderbook(symbol, time.Now())
}

func truncateLevels(levels []domain.OrderbookLevel, limit int) []domain.OrderbookLevel {
	if limit > 0 && len(levels) > limit {
		return levels[:limit]
	}
	return levels
}

// FetchTickers returns the top of book for symbols.
func (e *Exchange) FetchTickers(ctx context.Context, symbols []domain.Symbol) (map[domain.Symbol]domain.Ticker, error) {
	ids := make([]string, 0, len(symbols))
	byID := make(map[string]domain.Symbol, len(symbols))
	for _, s := range symbols {
		ids = append(ids, s.ExchangeID())
		byID[s.ExchangeID()] = s
	}

	resp, err := e.rest.BookTickers(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make(map[domain.Symbol]domain.Ticker, len(resp))
	for _, r := range resp {
		sym, ok := byID[r.Symbol]
		if !ok {
			continue
		}
		out[sym] = domain.Ticker{
			Symbol:    sym,
			Bid:       parseDecimal(r.BidPrice),
			BidVolume: parseDecimal(r.BidQty),
			Ask:       parseDecimal(r.AskPrice),
			AskVolume: parseDecimal(r.AskQty),
			Timestamp: now,
		}
	}
	return out, nil
}

// FetchBalance returns free balances.
func (e *Exchange) FetchBalance(ctx context.Context) (domain.Balances, error) {
	acct, err := e.rest.Account(ctx)
	if err != nil {
		return nil, err
	}
	out := make(domain.Balances, len(acct.Balances))
	for _, b := range acct.Balances {
		free := parseDecimal(b.Free)
		if free.IsPositive() {
			out[strings.ToUpper(b.Asset)] = free
		}
	}
	return out, nil
}

// CreateLimitOrder places a GTC limit order. Amount and price must already be
// rounded to the market precision.
func (e *Exchange) CreateLimitOrder(ctx context.Context, symbol domain.Symbol, side domain.Side, amount, price decimal.Decimal) (*domain.Order, error) {
	resp, err := e.rest.NewLimitOrder(ctx, symbol.ExchangeID(), string(side), amount.String(), price.String())
	if err != nil {
		return nil, err
	}
	e.logger.Info(ctx, "order placed",
		"symbol", symbol.String(), "side", string(side),
		"amount", amount.String(), "price", price.String(),
		"id", resp.OrderID, "status", resp.Status)
	return e.toOrder(resp, symbol), nil
}

// FetchOrder queries an order.
func (e *Exchange) FetchOrder(ctx context.Context, id string, symbol domain.Symbol) (*domain.Order, error) {
	resp, err := e.rest.QueryOrder(ctx, symbol.ExchangeID(), id)
	if err != nil {
		return nil, err
	}
	return e.toOrder(resp, symbol), nil
}

// CancelOrder cancels an order and returns its final state.
func (e *Exchange) CancelOrder(ctx context.Context, id string, symbol domain.Symbol) (*domain.Order, error) {
	resp, err := e.rest.CancelOrder(ctx, symbol.ExchangeID(), id)
	if err != nil {
		return nil, err
	}
	return e.toOrder(resp, symbol), nil
}

// toOrder converts a response and estimates the commission from the taker
// fee when the response carries no fills. Binance charges it in the received
// asset unless BNB fee payment is enabled.
func (e *Exchange) toOrder(resp *OrderResponse, symbol domain.Symbol) *domain.Order {
	o := resp.ToOrder(symbol)
	if o.Fee.Currency != "" || !o.Filled.IsPositive() || e.config.TakerFee.IsZero() {
		return o
	}
	if o.Side == domain.SideBuy {
		o.Fee = domain.Fee{Cost: o.Filled.Mul(e.config.TakerFee), Currency: symbol.Base}
	} else {
		o.Fee = domain.Fee{Cost: o.Cost.Mul(e.config.TakerFee), Currency: symbol.Quote}
	}
	return o
}
