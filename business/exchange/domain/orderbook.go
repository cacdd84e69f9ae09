package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/triarb-bot/internal/apperror"
)

// Side represents the side of a trade (buy or sell).
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderbookLevel represents a single price level in the orderbook.
type OrderbookLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal // base asset available at Price
}

// Cost returns price times amount.
func (l OrderbookLevel) Cost() decimal.Decimal {
	return l.Price.Mul(l.Amount)
}

// Orderbook represents a snapshot of the orderbook. Bids are sorted by
// descending price, asks by ascending price.
type Orderbook struct {
	Symbol    Symbol
	Bids      []OrderbookLevel
	Asks      []OrderbookLevel
	Timestamp time.Time
}

// BestBid returns the best (highest) bid price level.
func (o *Orderbook) BestBid() *OrderbookLevel {
	if len(o.Bids) == 0 {
		return nil
	}
	return &o.Bids[0]
}

// BestAsk returns the best (lowest) ask price level.
func (o *Orderbook) BestAsk() *OrderbookLevel {
	if len(o.Asks) == 0 {
		return nil
	}
	return &o.Asks[0]
}

// Levels returns the side a taker on side consumes: asks for buys, bids for
// sells.
func (o *Orderbook) Levels(side Side) []OrderbookLevel {
	if side == SideBuy {
		return o.Asks
	}
	return o.Bids
}

// Validate checks ordering and non-negativity of both sides.
func (o *Orderbook) Validate() error {
	check := func(levels []OrderbookLevel, descending bool) error {
		for i, l := range levels {
			if !l.Price.IsPositive() || l.Amount.IsNegative() {
				return apperror.New(apperror.CodeInvalidOrderbook,
					apperror.WithContext(o.Symbol.String()+": non-positive level"))
			}
			if i == 0 {
				continue
			}
			prev := levels[i-1].Price
			if (descending && l.Price.GreaterThan(prev)) || (!descending && l.Price.LessThan(prev)) {
				return apperror.New(apperror.CodeInvalidOrderbook,
					apperror.WithContext(o.Symbol.String()+": levels out of order"))
			}
		}
		return nil
	}
	if err := check(o.Bids, true); err != nil {
		return err
	}
	return check(o.Asks, false)
}

// Ticker is the best bid/ask with their volumes.
type Ticker struct {
	Symbol    Symbol
	Bid       decimal.Decimal
	BidVolume decimal.Decimal
	Ask       decimal.Decimal
	AskVolume decimal.Decimal
	Timestamp time.Time
}

// Orderbook returns a one-level book built from the top of book, so ticker
// prices are capped by their volumes exactly like a depth book.
func (t Ticker) Orderbook() *Orderbook {
	ob := &Orderbook{Symbol: t.Symbol, Timestamp: t.Timestamp}
	if t.Bid.IsPositive() {
		ob.Bids = []OrderbookLevel{{Price: t.Bid, Amount: t.BidVolume}}
	}
	if t.Ask.IsPositive() {
		ob.Asks = []OrderbookLevel{{Price: t.Ask, Amount: t.AskVolume}}
	}
	return ob
}

// Balances maps an asset to its free amount.
type Balances map[string]decimal.Decimal

// Free returns the free amount of asset, zero when absent.
func (b Balances) Free(asset string) decimal.Decimal {
	if v, ok := b[asset]; ok {
		return v
	}
	return decimal.Zero
}
