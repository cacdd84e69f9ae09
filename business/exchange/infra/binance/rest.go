package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/triarb-bot/internal/apperror"
	"github.com/fd1az/triarb-bot/internal/circuitbreaker"
	"github.com/fd1az/triarb-bot/internal/httpclient"
	"github.com/fd1az/triarb-bot/internal/logger"
	"github.com/fd1az/triarb-bot/internal/ratelimit"
)

const (
	tracerName = "github.com/fd1az/triarb-bot/business/exchange/infra/binance"

	// Binance REST API endpoints
	BaseAPIURL   = "https://api.binance.com"
	BaseAPIURLUS = "https://api.binance.us"

	exchangeInfoEndpoint = "/api/v3/exchangeInfo"
	depthEndpoint        = "/api/v3/depth"
	bookTickerEndpoint   = "/api/v3/ticker/bookTicker"
	accountEndpoint      = "/api/v3/account"
	orderEndpoint        = "/api/v3/order"

	httpTimeout       = 10 * time.Second
	defaultRecvWindow = 5 * time.Second
	defaultWeight     = 1200

	apiKeyHeader = "X-MBX-APIKEY"
)

// RESTConfig holds configuration for the Binance REST client.
type RESTConfig struct {
	BaseURL         string        // API base URL (empty = default)
	APIKey          string        // required for signed endpoints
	APISecret       string        // required for signed endpoints
	RecvWindow      time.Duration // signed request validity window
	Timeout         time.Duration // Request timeout
	WeightPerMinute int           // request weight budget
}

// DefaultRESTConfig returns sensible defaults.
func DefaultRESTConfig() RESTConfig {
	return RESTConfig{
		BaseURL:         BaseAPIURL,
		RecvWindow:      defaultRecvWindow,
		Timeout:         httpTimeout,
		WeightPerMinute: defaultWeight,
	}
}

// RESTClient provides Binance REST API access. Every call passes through the
// request-weight limiter and a circuit breaker that only counts transport
// failures.
type RESTClient struct {
	client  httpclient.Client
	config  RESTConfig
	logger  logger.LoggerInterface
	tracer  trace.Tracer
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.CircuitBreaker[*httpclient.Response]
	now     func() time.Time
}

// NewRESTClient creates a new Binance REST client.
func NewRESTClient(cfg RESTConfig, log logger.LoggerInterface) (*RESTClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseAPIURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = httpTimeout
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = defaultRecvWindow
	}
	if cfg.WeightPerMinute <= 0 {
		cfg.WeightPerMinute = defaultWeight
	}

	tracer := otel.Tracer(tracerName)
	limiter := ratelimit.New(cfg.WeightPerMinute)

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("binance"),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithRequestTimeout(cfg.Timeout),
		httpclient.WithLimiter(limiter),
		httpclient.WithTraceOptions(tracer, httpclient.TraceRequest, httpclient.TraceResponse),
		httpclient.WithHeaders(map[string]string{
			"Accept": "application/json",
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	c := &RESTClient{
		client:  client,
		config:  cfg,
		logger:  log,
		tracer:  tracer,
		limiter: limiter,
		now:     time.Now,
	}

	bcfg := circuitbreaker.DefaultConfig("binance-rest")
	bcfg.IsSuccessful = func(err error) bool {
		return err == nil || apperror.IsExchange(err) || errors.Is(err, context.Canceled)
	}
	bcfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "circuit breaker state changed",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	c.breaker = circuitbreaker.New[*httpclient.Response](bcfg)

	return c, nil
}

// HasCredentials reports whether signed endpoints can be used.
func (c *RESTClient) HasCredentials() bool {
	return c.config.APIKey != "" && c.config.APISecret != ""
}

// ExchangeInfo fetches symbol rules.
func (c *RESTClient) ExchangeInfo(ctx context.Context) (*ExchangeInfoResponse, error) {
	var result ExchangeInfoResponse
	if err := c.do(ctx, call{
		op: "exchange_info", method: http.MethodGet, path: exchangeInfoEndpoint,
		weight: 20, result: &result,
	}); err != nil {
		return nil, err
	}
	return &result, nil
}

// depthWeight follows the Binance weight table for /api/v3/depth.
func depthWeight(limit int) int {
	switch {
	case limit <= 100:
		return 5
	case limit <= 500:
		return 25
	case limit <= 1000:
		return 50
	default:
		return 250
	}
}

// GetDepth fetches the orderbook depth for a symbol.
func (c *RESTClient) GetDepth(ctx context.Context, symbol string, limit int) (*DepthResponse, error) {
	// Binance accepts: 5, 10, 20, 50, 100, 500, 1000, 5000
	validLimits := map[int]bool{5: true, 10: true, 20: true, 50: true, 100: true, 500: true, 1000: true, 5000: true}
	if !validLimits[limit] {
		limit = 20
	}

	var result DepthResponse
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))

	if err := c.do(ctx, call{
		op: "depth", method: http.MethodGet, path: depthEndpoint, params: params,
		weight: depthWeight(limit), result: &result, symbol: symbol,
	}); err != nil {
		return nil, err
	}

	c.logger.Debug(ctx, "fetched depth via HTTP",
		"symbol", symbol,
		"bids", len(result.Bids),
		"asks", len(result.Asks))
	return &result, nil
}

// BookTickers fetches the best bid/ask for symbols; nil means all symbols.
func (c *RESTClient) BookTickers(ctx context.Context, symbols []string) ([]BookTickerResponse, error) {
	params := url.Values{}
	weight := 4
	if len(symbols) > 0 {
		encoded, err := json.Marshal(symbols)
		if err != nil {
			return nil, apperror.Validation(apperror.CodeInvalidInput, "book ticker symbols")
		}
		params.Set("symbols", string(encoded))
	}
	if len(symbols) == 1 {
		weight = 2
	}

	var result []BookTickerResponse
	if err := c.do(ctx, call{
		op: "book_ticker", method: http.MethodGet, path: bookTickerEndpoint, params: params,
		weight: weight, result: &result,
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// Account fetches balances. Signed.
func (c *RESTClient) Account(ctx context.Context) (*AccountResponse, error) {
	params := url.Values{}
	params.Set("omitZeroBalances", "true")

	var result AccountResponse
	if err := c.do(ctx, call{
		op: "account", method: http.MethodGet, path: accountEndpoint, params: params,
		weight: 20, result: &result, signed: true,
	}); err != nil {
		return nil, err
	}
	return &result, nil
}

// NewLimitOrder places a GTC limit order and asks for a FULL response. Signed.
func (c *RESTClient) NewLimitOrder(ctx context.Context, symbol, side, quantity, price string) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", strings.ToUpper(side))
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "GTC")
	params.Set("quantity", quantity)
	params.Set("price", price)
	params.Set("newOrderRespType", "FULL")

	var result OrderResponse
	if err := c.do(ctx, call{
		op: "new_order", method: http.MethodPost, path: orderEndpoint, params: params,
		weight: 1, result: &result, signed: true, symbol: symbol,
	}); err != nil {
		return nil, err
	}
	return &result, nil
}

// QueryOrder fetches an order by id. Signed.
func (c *RESTClient) QueryOrder(ctx context.Context, symbol, orderID string) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var result OrderResponse
	if err := c.do(ctx, call{
		op: "query_order", method: http.MethodGet, path: orderEndpoint, params: params,
		weight: 4, result: &result, signed: true, symbol: symbol,
	}); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelOrder cancels an order by id. Signed.
func (c *RESTClient) CancelOrder(ctx context.Context, symbol, orderID string) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var result OrderResponse
	if err := c.do(ctx, call{
		op: "cancel_order", method: http.MethodDelete, path: orderEndpoint, params: params,
		weight: 1, result: &result, signed: true, symbol: symbol,
	}); err != nil {
		return nil, err
	}
	return &result, nil
}

type call struct {
	op     string
	method string
	path   string
	params url.Values
	weight int
	result any
	signed bool
	symbol string
}

func (c *RESTClient) do(ctx context.Context, cl call) error {
	ctx, span := c.tracer.Start(ctx, "binance.http."+cl.op,
		trace.WithAttributes(
			attribute.String("symbol", cl.symbol),
			attribute.Int("weight", cl.weight),
			attribute.Bool("signed", cl.signed),
		),
	)
	defer span.End()

	path := cl.path
	req := c.client.NewRequestWithOptions(
		httpclient.WithLabels(httpclient.NewLabel("endpoint", cl.op)),
		httpclient.WithResponseErrorHandler(binanceErrorHandler),
		httpclient.WithHeadersLogConfig(true, apiKeyHeader),
	).SetResult(cl.result).SetWeight(cl.weight)

	if cl.signed {
		if !c.HasCredentials() {
			return apperror.New(apperror.CodeConfigurationError,
				apperror.WithContext("binance: api key and secret required for "+cl.op))
		}
		path = path + "?" + c.sign(cl.params)
		req = req.SetHeader(apiKeyHeader, c.config.APIKey)
	} else if len(cl.params) > 0 {
		for k := range cl.params {
			req = req.SetQueryParam(k, cl.params.Get(k))
		}
	}

	_, err := c.breaker.Execute(func() (*httpclient.Response, error) {
		var resp *httpclient.Response
		var err error
		switch cl.method {
		case http.MethodPost:
			resp, err = req.Post(ctx, path)
		case http.MethodDelete:
			resp, err = req.Delete(ctx, path)
		default:
			resp, err = req.Get(ctx, path)
		}
		return resp, classify(cl.op, err)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// sign appends timestamp and recvWindow to params and returns the encoded
// query with its HMAC-SHA256 signature.
func (c *RESTClient) sign(params url.Values) string {
	signed := url.Values{}
	for k, v := range params {
		signed[k] = v
	}
	signed.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	signed.Set("recvWindow", strconv.FormatInt(c.config.RecvWindow.Milliseconds(), 10))

	query := signed.Encode()
	mac := hmac.New(sha256.New, []byte(c.config.APISecret))
	mac.Write([]byte(query))
	return query + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}
