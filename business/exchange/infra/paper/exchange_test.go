package paper

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

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var btcusdt = domain.NewSymbol("BTC", "USDT")

func newPaper(t *testing.T, fee string) (*Exchange, *StaticMarketData) {
	t.Helper()
	src := NewStaticMarketData(nil)
	src.SetBook(&domain.Orderbook{
		Symbol: btcusdt,
		Bids:   []domain.OrderbookLevel{{Price: d("29990"), Amount: d("0.5")}, {Price: d("29980"), Amount: d("1")}},
		Asks:   []domain.OrderbookLevel{{Price: d("30000"), Amount: d("0.01")}, {Price: d("30010"), Amount: d("1")}},
	})
	ex := NewExchange(src, Config{
		Balances: map[string]decimal.Decimal{"USDT": d("1000"), "BTC": d("1")},
		TakerFee: d(fee),
	}, &mockLogger{})
	return ex, src
}

func TestExchange_BuyFillsAcrossLevels(t *testing.T) {
	ex, _ := newPaper(t, "0.001")
	ctx := context.Background()

	o, err := ex.CreateLimitOrder(ctx, btcusdt, domain.SideBuy, d("0.02"), d("30010"))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderClosed, o.Status)
	assert.True(t, o.Filled.Equal(d("0.02")))
	assert.True(t, o.Cost.Equal(d("600.1")), "0.01@30000 + 0.01@30010, got %s", o.Cost)
	assert.Equal(t, "BTC", o.Fee.Currency)
	assert.True(t, o.Received().Equal(d("0.01998")))

	b, err := ex.FetchBalance(ctx)
	require.NoError(t, err)
	assert.True(t, b.Free("USDT").Equal(d("399.9")), "refund of price improvement, got %s", b.Free("USDT"))
	assert.True(t, b.Free("BTC").Equal(d("1.01998")))
}

func TestExchange_SellBelowLimitStaysOpenThenCancels(t *testing.T) {
	ex, src := newPaper(t, "0")
	ctx := context.Background()

	o, err := ex.CreateLimitOrder(ctx, btcusdt, domain.SideSell, d("0.6"), d("29990"))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPartiallyFilled, o.Status)
	assert.True(t, o.Filled.Equal(d("0.5")))

	// Book moved away: nothing more fills.
	src.SetBook(&domain.Orderbook{Symbol: btcusdt, Bids: []domain.OrderbookLevel{{Price: d("29000"), Amount: d("5")}}})
	o, err = ex.FetchOrder(ctx, o.ID, btcusdt)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPartiallyFilled, o.Status)

	o, err = ex.CancelOrder(ctx, o.ID, btcusdt)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCanceled, o.Status)

	b, _ := ex.FetchBalance(ctx)
	assert.True(t, b.Free("BTC").Equal(d("0.5")), "unfilled 0.1 refunded, got %s", b.Free("BTC"))
	assert.True(t, b.Free("USDT").Equal(d("15995")))
}

func TestExchange_InsufficientBalance(t *testing.T) {
	ex, _ := newPaper(t, "0")

	_, err := ex.CreateLimitOrder(context.Background(), btcusdt, domain.SideBuy, d("1"), d("30000"))
	require.Error(t, err)
	assert.Equal(t, apperror.CodeInsufficientBalance, apperror.GetCode(err))
	assert.True(t, apperror.IsExchange(err))
}

func TestExchange_UnknownOrder(t *testing.T) {
	ex, _ := newPaper(t, "0")
	_, err := ex.FetchOrder(context.Background(), "nope", btcusdt)
	assert.Equal(t, apperror.CodeOrderNotFound, apperror.GetCode(err))
}

func TestExchange_CancelClosedOrderIsNoop(t *testing.T) {
	ex, _ := newPaper(t, "0")
	ctx := context.Background()

	o, err := ex.CreateLimitOrder(ctx, btcusdt, domain.SideSell, d("0.1"), d("29990"))
	require.NoError(t, err)
	require.Equal(t, domain.OrderClosed, o.Status)

	c, err := ex.CancelOrder(ctx, o.ID, btcusdt)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderClosed, c.Status)
}

func TestStaticMarketData_Tickers(t *testing.T) {
	_, src := newPaper(t, "0")
	tickers, err := src.FetchTickers(context.Background(), []domain.Symbol{btcusdt, domain.NewSymbol("ETH", "BTC")})
	require.NoError(t, err)
	require.Len(t, tickers, 1)
	assert.True(t, tickers[btcusdt].Bid.Equal(d("29990")))
	assert.True(t, tickers[btcusdt].AskVolume.Equal(d("0.01")))
}
