package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/triarb-bot/business/arbitrage/domain"
	exchangeDomain "github.com/fd1az/triarb-bot/business/exchange/domain"
	"github.com/fd1az/triarb-bot/internal/apperror"
)

// mockLogger implements logger.LoggerInterface for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sym(s string) exchangeDomain.Symbol {
	out, err := exchangeDomain.ParseSymbol(s)
	if err != nil {
		panic(err)
	}
	return out
}

// testMarket returns a market with amount precision 8, the given price and
// cost precision and no limits.
func testMarket(symbol string, pricePrec, costPrec int32, fee string) exchangeDomain.Market {
	s := sym(symbol)
	return exchangeDomain.Market{
		Symbol:   s,
		ID:       s.ExchangeID(),
		Active:   true,
		TakerFee: d(fee),
		MakerFee: d(fee),
		Precision: exchangeDomain.Precision{
			Amount: 8,
			Price:  pricePrec,
			Cost:   costPrec,
		},
	}
}

// usdtBtcEthMarkets is the BTC/USDT, ETH/BTC, ETH/USDT triangle.
func usdtBtcEthMarkets(fee string) map[exchangeDomain.Symbol]exchangeDomain.Market {
	return marketMap(
		testMarket("BTC/USDT", 2, 2, fee),
		testMarket("ETH/BTC", 6, 8, fee),
		testMarket("ETH/USDT", 2, 2, fee),
	)
}

func marketMap(markets ...exchangeDomain.Market) map[exchangeDomain.Symbol]exchangeDomain.Market {
	out := make(map[exchangeDomain.Symbol]exchangeDomain.Market, len(markets))
	for _, m := range markets {
		out[m.Symbol] = m
	}
	return out
}

type staticRules map[exchangeDomain.Symbol]exchangeDomain.Market

func (r staticRules) Market(s exchangeDomain.Symbol) (exchangeDomain.Market, error) {
	m, ok := r[s]
	if !ok {
		return exchangeDomain.Market{}, apperror.NotFound(apperror.CodeMarketNotFound, s.String())
	}
	return m, nil
}

// deep is large enough to behave as infinite depth.
const deep = "1000000"

// book builds a one-level book per side; an empty price leaves the side empty.
func book(symbol, bid, bidAmount, ask, askAmount string) *exchangeDomain.Orderbook {
	ob := &exchangeDomain.Orderbook{Symbol: sym(symbol), Timestamp: time.Unix(0, 0)}
	if bid != "" {
		ob.Bids = []exchangeDomain.OrderbookLevel{{Price: d(bid), Amount: d(bidAmount)}}
	}
	if ask != "" {
		ob.Asks = []exchangeDomain.OrderbookLevel{{Price: d(ask), Amount: d(askAmount)}}
	}
	return ob
}

// usdtBtcEthBooks prices BTC/USDT at 30000, ETH/BTC at 0.07 and ETH/USDT at
// ethBid with infinite depth.
func usdtBtcEthBooks(ethBid string) map[exchangeDomain.Symbol]*exchangeDomain.Orderbook {
	return map[exchangeDomain.Symbol]*exchangeDomain.Orderbook{
		sym("BTC/USDT"): book("BTC/USDT", "29999", deep, "30000", deep),
		sym("ETH/BTC"):  book("ETH/BTC", "0.069", deep, "0.07", deep),
		sym("ETH/USDT"): book("ETH/USDT", ethBid, deep, "2200", deep),
	}
}

func booksFor(cycle domain.Cycle, dir domain.Direction, books map[exchangeDomain.Symbol]*exchangeDomain.Orderbook) [3]*exchangeDomain.Orderbook {
	var out [3]*exchangeDomain.Orderbook
	for i, leg := range dir.Legs(cycle) {
		out[i] = books[leg.Symbol]
	}
	return out
}

// fillMode scripts how the fake exchange fills an order.
type fillMode int

const (
	fillOnFetch fillMode = iota // closed at the first fetch
	fillNever                   // stays open, cancel leaves it unfilled
	fillHalf                    // half filled at the first fetch, then stuck
)

// fakeExchange is a scriptable Exchange. Orders fill at their limit price
// with the market taker fee charged in the received asset.
type fakeExchange struct {
	mu sync.Mutex

	markets  map[exchangeDomain.Symbol]exchangeDomain.Market
	books    map[exchangeDomain.Symbol]*exchangeDomain.Orderbook
	balances exchangeDomain.Balances
	modes    map[exchangeDomain.Symbol]fillMode

	// bookErrs are returned, in order, by FetchOrderBook before it succeeds.
	bookErrs   []error
	placeErr   error
	balanceErr error
	// rejects fails placement on a single market.
	rejects map[exchangeDomain.Symbol]error

	orders     map[string]*exchangeDomain.Order
	placed     []exchangeDomain.Order
	bookCalls  int
	fetchCalls int
	cancels    int
	nextID     int
}

func newFakeExchange(markets map[exchangeDomain.Symbol]exchangeDomain.Market, books map[exchangeDomain.Symbol]*exchangeDomain.Orderbook) *fakeExchange {
	return &fakeExchange{
		markets: markets,
		books:   books,
		modes:   make(map[exchangeDomain.Symbol]fillMode),
		rejects: make(map[exchangeDomain.Symbol]error),
		orders:  make(map[string]*exchangeDomain.Order),
	}
}

func (f *fakeExchange) Name() string { return "fake" }

func (f *fakeExchange) Market(s exchangeDomain.Symbol) (exchangeDomain.Market, error) {
	return staticRules(f.markets).Market(s)
}

func (f *fakeExchange) Markets() []exchangeDomain.Market {
	out := make([]exchangeDomain.Market, 0, len(f.markets))
	for _, m := range f.markets {
		out = append(out, m)
	}
	return out
}

func (f *fakeExchange) FetchOrderBook(_ context.Context, s exchangeDomain.Symbol, _ int) (*exchangeDomain.Orderbook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookCalls++
	if len(f.bookErrs) > 0 {
		err := f.bookErrs[0]
		f.bookErrs = f.bookErrs[1:]
		return nil, err
	}
	ob, ok := f.books[s]
	if !ok {
		return nil, apperror.New(apperror.CodeOrderbookFetchFailed, apperror.WithContext(s.String()))
	}
	return ob, nil
}

func (f *fakeExchange) FetchTickers(_ context.Context, symbols []exchangeDomain.Symbol) (map[exchangeDomain.Symbol]exchangeDomain.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[exchangeDomain.Symbol]exchangeDomain.Ticker, len(symbols))
	for _, s := range symbols {
		ob, ok := f.books[s]
		if !ok {
			continue
		}
		t := exchangeDomain.Ticker{Symbol: s}
		if bid := ob.BestBid(); bid != nil {
			t.Bid, t.BidVolume = bid.Price, bid.Amount
		}
		if ask := ob.BestAsk(); ask != nil {
			t.Ask, t.AskVolume = ask.Price, ask.Amount
		}
		out[s] = t
	}
	return out, nil
}

func (f *fakeExchange) FetchBalance(context.Context) (exchangeDomain.Balances, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return f.balances, nil
}

func (f *fakeExchange) CreateLimitBuyOrder(ctx context.Context, s exchangeDomain.Symbol, amount, price decimal.Decimal) (*exchangeDomain.Order, error) {
	return f.place(s, exchangeDomain.SideBuy, amount, price)
}

func (f *fakeExchange) CreateLimitSellOrder(ctx context.Context, s exchangeDomain.Symbol, amount, price decimal.Decimal) (*exchangeDomain.Order, error) {
	return f.place(s, exchangeDomain.SideSell, amount, price)
}

func (f *fakeExchange) place(s exchangeDomain.Symbol, side exchangeDomain.Side, amount, price decimal.Decimal) (*exchangeDomain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	if err := f.rejects[s]; err != nil {
		return nil, err
	}
	f.nextID++
	o := &exchangeDomain.Order{
		ID:     fmt.Sprintf("order-%d", f.nextID),
		Symbol: s,
		Side:   side,
		Status: exchangeDomain.OrderOpen,
		Price:  price,
		Amount: amount,
	}
	f.orders[o.ID] = o
	f.placed = append(f.placed, *o)
	cp := *o
	return &cp, nil
}

func (f *fakeExchange) FetchOrder(_ context.Context, id string, _ exchangeDomain.Symbol) (*exchangeDomain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	o, ok := f.orders[id]
	if !ok {
		return nil, apperror.NotFound(apperror.CodeOrderNotFound, id)
	}
	if !o.Status.Terminal() {
		switch f.modes[o.Symbol] {
		case fillOnFetch:
			f.fill(o, o.Amount)
			o.Status = exchangeDomain.OrderClosed
		case fillHalf:
			if o.Filled.IsZero() {
				f.fill(o, f.markets[o.Symbol].AmountToPrecision(o.Amount.Div(decimal.NewFromInt(2))))
				o.Status = exchangeDomain.OrderPartiallyFilled
			}
		}
	}
	cp := *o
	return &cp, nil
}

func (f *fakeExchange) fill(o *exchangeDomain.Order, amount decimal.Decimal) {
	fee := f.markets[o.Symbol].TakerFee
	o.Filled = amount
	o.Cost = amount.Mul(o.Price)
	if o.Side == exchangeDomain.SideBuy {
		o.Fee = exchangeDomain.Fee{Cost: amount.Mul(fee), Currency: o.Symbol.Base}
	} else {
		o.Fee = exchangeDomain.Fee{Cost: o.Cost.Mul(fee), Currency: o.Symbol.Quote}
	}
}

func (f *fakeExchange) CancelOrder(_ context.Context, id string, _ exchangeDomain.Symbol) (*exchangeDomain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	o, ok := f.orders[id]
	if !ok {
		return nil, apperror.NotFound(apperror.CodeOrderNotFound, id)
	}
	if !o.Status.Terminal() {
		o.Status = exchangeDomain.OrderCanceled
	}
	cp := *o
	return &cp, nil
}

func (f *fakeExchange) placedOrders() []exchangeDomain.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]exchangeDomain.Order(nil), f.placed...)
}

// memLedger records ledger writes. Like a database/sql store it rejects
// writes on a done context.
type memLedger struct {
	mu          sync.Mutex
	legs        []domain.LegResult
	operations  []domain.OperationRecord
	evaluations []domain.EvaluationRecord
	err         error
}

func (l *memLedger) AppendLeg(ctx context.Context, _, _ string, leg domain.LegResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.legs = append(l.legs, leg)
	return l.err
}

func (l *memLedger) SaveOperation(ctx context.Context, op domain.OperationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.operations = append(l.operations, op)
	return l.err
}

func (l *memLedger) SaveEvaluation(ctx context.Context, rec domain.EvaluationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evaluations = append(l.evaluations, rec)
	return l.err
}

func (l *memLedger) legStates(index int) []domain.LegState {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.LegState
	for _, leg := range l.legs {
		if leg.Index == index {
			out = append(out, leg.State)
		}
	}
	return out
}

// eventRecorder collects emitted events.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) Emit(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) errors() []domain.ErrorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ErrorEvent
	for _, ev := range r.events {
		if e, ok := ev.(domain.ErrorEvent); ok {
			out = append(out, e)
		}
	}
	return out
}

// fakeSleeper records requested sleeps without waiting.
type fakeSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *fakeSleeper) Sleep(ctx context.Context, dur time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, dur)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *fakeSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}
