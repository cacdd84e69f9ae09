package binance

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/triarb-bot/business/exchange/domain"
	"github.com/fd1az/triarb-bot/internal/apperror"
	"github.com/fd1az/triarb-bot/internal/logger"
	"github.com/fd1az/triarb-bot/internal/wsconn"
)

const (
	meterName = "binance"

	// Binance WebSocket endpoints
	BaseWSURL   = "wss://stream.binance.com:9443"
	BaseWSURLUS = "wss://stream.binance.us:9443"

	// Binance caps a SUBSCRIBE request at well below the 1024 streams a
	// connection may carry; batches keep each frame small.
	subscribeBatch = 200
)

// StreamConfig holds configuration for the depth stream cache.
type StreamConfig struct {
	BaseURL      string        // WebSocket base URL
	SpeedMs      int           // Depth update speed (100 or 1000)
	StaleTimeout time.Duration // How long before a cached book is considered stale
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns sensible defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		BaseURL:      BaseWSURL,
		SpeedMs:      100,
		StaleTimeout: 5 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// wsRequest is a WebSocket subscription request.
type wsRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type streamMetrics struct {
	messagesReceived metric.Int64Counter
	depthUpdates     metric.Int64Counter
	parseErrors      metric.Int64Counter
}

// orderbookState holds the latest depth snapshot for a symbol.
type orderbookState struct {
	bids       []domain.OrderbookLevel
	asks       []domain.OrderbookLevel
	lastUpdate time.Time
}

// DepthCache keeps the top 20 levels of every subscribed symbol from the
// partial depth stream. Books older than StaleTimeout are not served.
type DepthCache struct {
	config StreamConfig
	logger logger.LoggerInterface
	tracer trace.Tracer
	meter  *streamMetrics

	mu      sync.RWMutex
	books   map[string]*orderbookState
	streams []string

	conn   *wsconn.Client
	connMu sync.RWMutex
	nextID atomic.Int64

	now func() time.Time
}

// NewDepthCache creates a depth cache; Subscribe connects it.
func NewDepthCache(cfg StreamConfig, log logger.LoggerInterface) (*DepthCache, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseWSURL
	}
	if cfg.SpeedMs != 1000 {
		cfg.SpeedMs = 100
	}
	if cfg.StaleTimeout == 0 {
		cfg.StaleTimeout = 5 * time.Second
	}

	c := &DepthCache{
		config: cfg,
		logger: log,
		tracer: otel.Tracer(tracerName),
		books:  make(map[string]*orderbookState),
		now:    time.Now,
	}
	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return c, nil
}

func (c *DepthCache) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.meter = &streamMetrics{}

	c.meter.messagesReceived, err = meter.Int64Counter(
		"binance_messages_total",
		metric.WithDescription("Total messages received"),
	)
	if err != nil {
		return err
	}

	c.meter.depthUpdates, err = meter.Int64Counter(
		"binance_depth_updates_total",
		metric.WithDescription("Total depth updates received"),
	)
	if err != nil {
		return err
	}

	c.meter.parseErrors, err = meter.Int64Counter(
		"binance_parse_errors_total",
		metric.WithDescription("Message parse errors"),
	)
	return err
}

// Subscribe connects to the combined stream endpoint and subscribes to the
// depth streams of symbols (venue ids such as ETHBTC). The subscription is
// replayed after every reconnect.
func (c *DepthCache) Subscribe(ctx context.Context, symbols []string) error {
	ctx, span := c.tracer.Start(ctx, "binance.depth_cache.subscribe",
		trace.WithAttributes(attribute.Int("symbols", len(symbols))),
	)
	defer span.End()

	if len(symbols) == 0 {
		return apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("no symbols to stream"))
	}

	streams := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		streams = append(streams, DepthStream(sym, c.config.SpeedMs))
	}
	sort.Strings(streams)

	c.mu.Lock()
	c.streams = streams
	c.mu.Unlock()

	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return apperror.New(apperror.CodeConfigurationError, apperror.WithCause(err))
	}
	u.Path = "/stream"

	wsCfg := wsconn.DefaultConfig(u.String(), "binance-depth")
	wsCfg.ReadTimeout = c.config.ReadTimeout
	wsCfg.WriteTimeout = c.config.WriteTimeout
	wsCfg.AutoReconnect = true

	conn, err := wsconn.New(wsCfg)
	if err != nil {
		return err
	}
	conn.OnMessage(c.handleMessage)
	conn.OnStateChange(func(state wsconn.State, cause error) {
		switch state {
		case wsconn.StateConnected:
			go func() {
				if err := c.sendSubscriptions(context.Background()); err != nil {
					c.logger.Warn(context.Background(), "depth resubscribe failed", "error", err)
				}
			}()
		case wsconn.StateDisconnected, wsconn.StateReconnecting:
			c.logger.Warn(context.Background(), "depth stream interrupted", "state", string(state), "error", cause)
		}
	})

	c.connMu.Lock()
	old := c.conn
	c.conn = conn
	c.connMu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	if err := conn.ConnectWithRetry(ctx); err != nil {
		span.RecordError(err)
		return err
	}

	c.logger.Info(ctx, "binance depth stream connected", "url", u.String(), "streams", len(streams))
	return nil
}

func (c *DepthCache) sendSubscriptions(ctx context.Context) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return nil
	}

	c.mu.RLock()
	streams := c.streams
	c.mu.RUnlock()

	for start := 0; start < len(streams); start += subscribeBatch {
		end := min(start+subscribeBatch, len(streams))
		req := wsRequest{Method: "SUBSCRIBE", Params: streams[start:end], ID: c.nextID.Add(1)}
		if err := conn.SendJSON(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// handleMessage processes incoming WebSocket messages.
func (c *DepthCache) handleMessage(ctx context.Context, data []byte) {
	c.meter.messagesReceived.Add(ctx, 1)

	var event StreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.meter.parseErrors.Add(ctx, 1)
		c.logger.Debug(ctx, "failed to parse message", "error", err, "data", string(data[:min(len(data), 500)]))
		return
	}
	// Subscription acks carry no stream.
	if event.Stream == "" || !strings.Contains(event.Stream, "@depth") {
		return
	}

	var depth DepthResponse
	if err := json.Unmarshal(event.Data, &depth); err != nil {
		c.meter.parseErrors.Add(ctx, 1)
		c.logger.Warn(ctx, "failed to parse partial depth", "error", err)
		return
	}
	bids, err := ParseOrderbookLevels(depth.Bids)
	if err != nil {
		c.meter.parseErrors.Add(ctx, 1)
		return
	}
	asks, err := ParseOrderbookLevels(depth.Asks)
	if err != nil {
		c.meter.parseErrors.Add(ctx, 1)
		return
	}

	symbol := symbolFromStream(event.Stream)
	c.meter.depthUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol)))

	c.mu.Lock()
	c.books[symbol] = &orderbookState{bids: bids, asks: asks, lastUpdate: c.now()}
	c.mu.Unlock()
}

// Get returns the cached book for a venue symbol when it is fresh and holds
// both sides. Returned slices are copies.
func (c *DepthCache) Get(symbol string) (bids, asks []domain.OrderbookLevel, at time.Time, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, found := c.books[symbol]
	if !found || len(state.bids) == 0 || len(state.asks) == 0 {
		return nil, nil, time.Time{}, false
	}
	if c.now().Sub(state.lastUpdate) > c.config.StaleTimeout {
		return nil, nil, time.Time{}, false
	}

	bids = append([]domain.OrderbookLevel(nil), state.bids...)
	asks = append([]domain.OrderbookLevel(nil), state.asks...)
	return bids, asks, state.lastUpdate, true
}

// IsConnected returns whether the stream is live.
func (c *DepthCache) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Close closes the stream connection.
func (c *DepthCache) Close() error {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}
