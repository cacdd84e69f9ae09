// Package binance implements the exchange port for Binance spot.
package binance

import (
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/fd1az/triarb-bot/business/exchange/domain"
)

// REST payloads

// DepthResponse is the REST API response for orderbook depth. The partial
// depth stream uses the same shape.
type DepthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"` // [[price, qty], ...]
	Asks         [][]string `json:"asks"` // [[price, qty], ...]
}

// BookTickerResponse is one entry of /api/v3/ticker/bookTicker.
type BookTickerResponse struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	BidQty   string `json:"bidQty"`
	AskPrice string `json:"askPrice"`
	AskQty   string `json:"askQty"`
}

// ExchangeInfoResponse is the subset of /api/v3/exchangeInfo in use.
type ExchangeInfoResponse struct {
	ServerTime int64        `json:"serverTime"`
	Symbols    []SymbolInfo `json:"symbols"`
}

// SymbolInfo describes one symbol and its filters.
type SymbolInfo struct {
	Symbol              string         `json:"symbol"`
	Status              string         `json:"status"`
	BaseAsset           string         `json:"baseAsset"`
	QuoteAsset          string         `json:"quoteAsset"`
	QuoteAssetPrecision int32          `json:"quoteAssetPrecision"`
	IsSpotTrading       bool           `json:"isSpotTradingAllowed"`
	Filters             []SymbolFilter `json:"filters"`
}

// SymbolFilter is a union of the filter types in use.
type SymbolFilter struct {
	FilterType  string `json:"filterType"`
	TickSize    string `json:"tickSize,omitempty"`    // PRICE_FILTER
	MinQty      string `json:"minQty,omitempty"`      // LOT_SIZE
	MaxQty      string `json:"maxQty,omitempty"`      // LOT_SIZE
	StepSize    string `json:"stepSize,omitempty"`    // LOT_SIZE
	MinNotional string `json:"minNotional,omitempty"` // NOTIONAL, MIN_NOTIONAL
	MaxNotional string `json:"maxNotional,omitempty"` // NOTIONAL
}

const (
	filterPrice       = "PRICE_FILTER"
	filterLotSize     = "LOT_SIZE"
	filterNotional    = "NOTIONAL"
	filterMinNotional = "MIN_NOTIONAL"
	statusTrading     = "TRADING"
)

// ToMarket converts the symbol description into a market. Binance reports no
// fee here; fees are left zero for the service defaults.
func (s SymbolInfo) ToMarket() domain.Market {
	m := domain.Market{
		Symbol: domain.NewSymbol(s.BaseAsset, s.QuoteAsset),
		ID:     s.Symbol,
		Active: s.Status == statusTrading && s.IsSpotTrading,
		Precision: domain.Precision{
			Amount: 8,
			Price:  8,
			Cost:   s.QuoteAssetPrecision,
		},
	}
	if m.Precision.Cost == 0 {
		m.Precision.Cost = 8
	}

	for _, f := range s.Filters {
		switch f.FilterType {
		case filterPrice:
			if tick := parseDecimal(f.TickSize); tick.IsPositive() {
				m.Precision.Price = domain.DecimalsFromStep(tick)
			}
		case filterLotSize:
			if step := parseDecimal(f.StepSize); step.IsPositive() {
				m.Precision.Amount = domain.DecimalsFromStep(step)
			}
			m.Amount = domain.Limits{Min: parseDecimal(f.MinQty), Max: parseDecimal(f.MaxQty)}
		case filterNotional:
			m.Cost = domain.Limits{Min: parseDecimal(f.MinNotional), Max: parseDecimal(f.MaxNotional)}
		case filterMinNotional:
			if m.Cost.Min.IsZero() {
				m.Cost.Min = parseDecimal(f.MinNotional)
			}
		}
	}
	return m
}

// AccountResponse is the subset of /api/v3/account in use.
type AccountResponse struct {
	Balances []AccountBalance `json:"balances"`
}

// AccountBalance is one asset balance.
type AccountBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// OrderResponse is returned by order placement, query and cancel.
type OrderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	Price               string `json:"price"`
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	Side                string `json:"side"`
	TransactTime        int64  `json:"transactTime,omitempty"`
	UpdateTime          int64  `json:"updateTime,omitempty"`
	Fills               []Fill `json:"fills,omitempty"`
}

// Fill is one trade reported in a FULL order response.
type Fill struct {
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
}

// Binance order statuses.
const (
	orderStatusNew             = "NEW"
	orderStatusPartiallyFilled = "PARTIALLY_FILLED"
	orderStatusFilled          = "FILLED"
	orderStatusCanceled        = "CANCELED"
	orderStatusPendingCancel   = "PENDING_CANCEL"
	orderStatusRejected        = "REJECTED"
	orderStatusExpired         = "EXPIRED"
)

func toOrderStatus(s string) domain.OrderStatus {
	switch s {
	case orderStatusFilled:
		return domain.OrderClosed
	case orderStatusPartiallyFilled:
		return domain.OrderPartiallyFilled
	case orderStatusCanceled, orderStatusPendingCancel, orderStatusRejected, orderStatusExpired:
		return domain.OrderCanceled
	default:
		return domain.OrderOpen
	}
}

// ToOrder converts the response into a domain order. Fees are only known when
// the response carries fills.
func (r OrderResponse) ToOrder(symbol domain.Symbol) *domain.Order {
	o := &domain.Order{
		ID:     strconv.FormatInt(r.OrderID, 10),
		Symbol: symbol,
		Side:   domain.Side(strings.ToLower(r.Side)),
		Status: toOrderStatus(r.Status),
		Price:  parseDecimal(r.Price),
		Amount: parseDecimal(r.OrigQty),
		Filled: parseDecimal(r.ExecutedQty),
		Cost:   parseDecimal(r.CummulativeQuoteQty),
	}

	ts := r.UpdateTime
	if ts == 0 {
		ts = r.TransactTime
	}
	if ts > 0 {
		o.Timestamp = time.UnixMilli(ts)
	}

	for _, f := range r.Fills {
		o.Fee.Currency = f.CommissionAsset
		o.Fee.Cost = o.Fee.Cost.Add(parseDecimal(f.Commission))
	}
	return o
}

// WebSocket payloads

// StreamEvent is the base wrapper for combined stream messages.
type StreamEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// DepthStream returns the partial book depth stream name for a symbol.
// Uses @depth20 which sends the top 20 bid/ask levels (not diff stream).
func DepthStream(symbol string, speedMs int) string {
	return strings.ToLower(symbol) + "@depth20@" + strconv.Itoa(speedMs) + "ms"
}

// symbolFromStream extracts "ETHBTC" from "ethbtc@depth20@100ms".
func symbolFromStream(stream string) string {
	sym, _, _ := strings.Cut(stream, "@")
	return strings.ToUpper(sym)
}

// ParseOrderbookLevels parses raw orderbook levels from Binance format.
// Zero-quantity levels are dropped.
func ParseOrderbookLevels(raw [][]string) ([]domain.OrderbookLevel, error) {
	levels := make([]domain.OrderbookLevel, 0, len(raw))
	for _, r := range raw {
		if len(r) < 2 {
			continue
		}
		price, err := decimal.NewFromString(r[0])
		if err != nil {
			return nil, err
		}
		qty, err := decimal.NewFromString(r[1])
		if err != nil {
			return nil, err
		}
		if qty.IsZero() {
			continue
		}
		levels = append(levels, domain.OrderbookLevel{Price: price, Amount: qty})
	}
	return levels, nil
}

// ToOrderbook converts the depth payload into a domain order book.
func (d *DepthResponse) ToOrderbook(symbol domain.Symbol, ts time.Time) (*domain.Orderbook, error) {
	bids, err := ParseOrderbookLevels(d.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := ParseOrderbookLevels(d.Asks)
	if err != nil {
		return nil, err
	}
	return &domain.Orderbook{Symbol: symbol, Bids: bids, Asks: asks, Timestamp: ts}, nil
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}
