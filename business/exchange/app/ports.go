// Package app contains application services and port definitions for the exchange context.
package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fd1az/triarb-bot/business/exchange/domain"
)

// Exchange is implemented by venue adapters. Every method may fail with a
// network-class or exchange-class apperror.
type Exchange interface {
	// Name identifies the venue, e.g. "binance".
	Name() string

	// FetchMarkets returns every spot market with its trading rules. Fees are
	// zero when the venue does not report them per market.
	FetchMarkets(ctx context.Context) ([]domain.Market, error)

	// FetchOrderBook returns up to limit levels per side.
	FetchOrderBook(ctx context.Context, symbol domain.Symbol, limit int) (*domain.Orderbook, error)

	// FetchTickers returns the top of book for the given symbols.
	FetchTickers(ctx context.Context, symbols []domain.Symbol) (map[domain.Symbol]domain.Ticker, error)

	// FetchBalance returns free balances per asset.
	FetchBalance(ctx context.Context) (domain.Balances, error)

	// CreateLimitOrder places a GTC limit order.
	CreateLimitOrder(ctx context.Context, symbol domain.Symbol, side domain.Side, amount, price decimal.Decimal) (*domain.Order, error)

	FetchOrder(ctx context.Context, id string, symbol domain.Symbol) (*domain.Order, error)
	CancelOrder(ctx context.Context, id string, symbol domain.Symbol) (*domain.Order, error)
}

// DepthStreamer is implemented by adapters that can keep order books warm
// from a push stream.
type DepthStreamer interface {
	StreamDepth(ctx context.Context, symbols []domain.Symbol) error
}
