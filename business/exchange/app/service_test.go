package app

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/triarb-bot/business/exchange/domain"
	"github.com/fd1az/triarb-bot/internal/apperror"
	"github.com/fd1az/triarb-bot/internal/logger"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

type stubExchange struct {
	markets []domain.Market
	book    *domain.Orderbook
	placed  []*domain.Order
}

func (s *stubExchange) Name() string { return "stub" }

func (s *stubExchange) FetchMarkets(context.Context) ([]domain.Market, error) {
	return s.markets, nil
}

func (s *stubExchange) FetchOrderBook(context.Context, domain.Symbol, int) (*domain.Orderbook, error) {
	return s.book, nil
}

func (s *stubExchange) FetchTickers(context.Context, []domain.Symbol) (map[domain.Symbol]domain.Ticker, error) {
	return nil, nil
}

func (s *stubExchange) FetchBalance(context.Context) (domain.Balances, error) {
	return domain.Balances{}, nil
}

func (s *stubExchange) CreateLimitOrder(_ context.Context, symbol domain.Symbol, side domain.Side, amount, price decimal.Decimal) (*domain.Order, error) {
	o := &domain.Order{ID: "1", Symbol: symbol, Side: side, Status: domain.OrderOpen, Amount: amount, Price: price}
	s.placed = append(s.placed, o)
	return o, nil
}

func (s *stubExchange) FetchOrder(context.Context, string, domain.Symbol) (*domain.Order, error) {
	return nil, nil
}

func (s *stubExchange) CancelOrder(context.Context, string, domain.Symbol) (*domain.Order, error) {
	return nil, nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T) (*ExchangeService, *stubExchange) {
	t.Helper()
	stub := &stubExchange{
		markets: []domain.Market{
			{
				Symbol: domain.NewSymbol("BTC", "USDT"), Active: true,
				Amount:    domain.Limits{Min: d("0.00001")},
				Cost:      domain.Limits{Min: d("5")},
				Precision: domain.Precision{Amount: 5, Price: 2, Cost: 8},
			},
			{
				Symbol: domain.NewSymbol("ETH", "BTC"), Active: true, TakerFee: d("0.00075"),
				Amount:    domain.Limits{Min: d("0.001")},
				Precision: domain.Precision{Amount: 3, Price: 6, Cost: 8},
			},
			{Symbol: domain.NewSymbol("OLD", "BTC"), Active: false},
		},
	}
	svc := NewExchangeService(stub, Fees{Taker: d("0.001"), Maker: d("0.001")}, &mockLogger{})
	require.NoError(t, svc.LoadMarkets(context.Background()))
	return svc, stub
}

func TestExchangeService_LoadMarkets(t *testing.T) {
	svc, _ := newService(t)

	markets := svc.Markets()
	require.Len(t, markets, 2)
	assert.Equal(t, "BTC/USDT", markets[0].Symbol.String())

	btc, err := svc.Market(domain.NewSymbol("BTC", "USDT"))
	require.NoError(t, err)
	assert.True(t, btc.TakerFee.Equal(d("0.001")), "default fee applied")

	eth, err := svc.Market(domain.NewSymbol("ETH", "BTC"))
	require.NoError(t, err)
	assert.True(t, eth.TakerFee.Equal(d("0.00075")), "reported fee kept")

	_, err = svc.Market(domain.NewSymbol("OLD", "BTC"))
	assert.Equal(t, apperror.CodeMarketNotFound, apperror.GetCode(err))
}

func TestExchangeService_Precision(t *testing.T) {
	svc, _ := newService(t)
	sym := domain.NewSymbol("BTC", "USDT")

	a, err := svc.AmountToPrecision(sym, d("0.0033333333"))
	require.NoError(t, err)
	assert.Equal(t, "0.00333", a.String())

	p, err := svc.PriceToPrecision(sym, d("30000.005"))
	require.NoError(t, err)
	assert.True(t, p.Equal(d("30000.01")))

	_, err = svc.CostToPrecision(domain.NewSymbol("X", "Y"), d("1"))
	assert.Error(t, err)
}

func TestExchangeService_CreateLimitOrderChecksLimits(t *testing.T) {
	svc, stub := newService(t)
	ctx := context.Background()
	sym := domain.NewSymbol("BTC", "USDT")

	_, err := svc.CreateLimitBuyOrder(ctx, sym, d("0.0001"), d("30000"))
	assert.Equal(t, apperror.CodePrecisionViolation, apperror.GetCode(err), "cost 3 below min 5")
	assert.Empty(t, stub.placed)

	o, err := svc.CreateLimitSellOrder(ctx, sym, d("0.0012345"), d("30000.004"))
	require.NoError(t, err)
	assert.Equal(t, domain.SideSell, o.Side)
	assert.True(t, o.Amount.Equal(d("0.00123")))
	assert.True(t, o.Price.Equal(d("30000")))
}

func TestExchangeService_FetchOrderBookValidates(t *testing.T) {
	svc, stub := newService(t)
	stub.book = &domain.Orderbook{
		Asks: []domain.OrderbookLevel{{Price: d("2"), Amount: d("1")}, {Price: d("1"), Amount: d("1")}},
	}
	_, err := svc.FetchOrderBook(context.Background(), domain.NewSymbol("BTC", "USDT"), 20)
	assert.Equal(t, apperror.CodeInvalidOrderbook, apperror.GetCode(err))
}
