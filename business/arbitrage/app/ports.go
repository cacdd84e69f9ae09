// Package app contains application services and port definitions for the arbitrage context.
package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fd1az/triarb-bot/business/arbitrage/domain"
	exchangeDomain "github.com/fd1az/triarb-bot/business/exchange/domain"
)

// MarketRules resolves the trading rules of a symbol.
type MarketRules interface {
	Market(symbol exchangeDomain.Symbol) (exchangeDomain.Market, error)
}

// Exchange is the trading capability the engine drives. The exchange
// context's ExchangeService satisfies it.
type Exchange interface {
	MarketRules

	Name() string
	Markets() []exchangeDomain.Market

	FetchOrderBook(ctx context.Context, symbol exchangeDomain.Symbol, limit int) (*exchangeDomain.Orderbook, error)
	FetchTickers(ctx context.Context, symbols []exchangeDomain.Symbol) (map[exchangeDomain.Symbol]exchangeDomain.Ticker, error)
	FetchBalance(ctx context.Context) (exchangeDomain.Balances, error)

	CreateLimitBuyOrder(ctx context.Context, symbol exchangeDomain.Symbol, amount, price decimal.Decimal) (*exchangeDomain.Order, error)
	CreateLimitSellOrder(ctx context.Context, symbol exchangeDomain.Symbol, amount, price decimal.Decimal) (*exchangeDomain.Order, error)
	FetchOrder(ctx context.Context, id string, symbol exchangeDomain.Symbol) (*exchangeDomain.Order, error)
	CancelOrder(ctx context.Context, id string, symbol exchangeDomain.Symbol) (*exchangeDomain.Order, error)
}

// Ledger persists what the engine did. Entries are append-only.
type Ledger interface {
	AppendLeg(ctx context.Context, operationID, cycleID string, leg domain.LegResult) error
	SaveOperation(ctx context.Context, op domain.OperationRecord) error
	SaveEvaluation(ctx context.Context, rec domain.EvaluationRecord) error
}

// EventSink receives engine events. Implementations must not block.
type EventSink interface {
	Emit(ctx context.Context, ev domain.Event)
}

// EventSinks fans an event out to several sinks.
type EventSinks []EventSink

func (s EventSinks) Emit(ctx context.Context, ev domain.Event) {
	for _, sink := range s {
		sink.Emit(ctx, ev)
	}
}

type nopLedger struct{}

func (nopLedger) AppendLeg(context.Context, string, string, domain.LegResult) error { return nil }
func (nopLedger) SaveOperation(context.Context, domain.OperationRecord) error       { return nil }
func (nopLedger) SaveEvaluation(context.Context, domain.EvaluationRecord) error     { return nil }

// NopLedger discards every entry.
var NopLedger Ledger = nopLedger{}
