// Package wsconn provides a WebSocket client with read loop, keepalive pings
// and backoff reconnection.
package wsconn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/goccy/go-json"

	"github.com/fd1az/triarb-bot/internal/apperror"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	Name           string
	PingInterval   time.Duration // 0 disables keepalive pings
	MaxMessageSize int64
	ReadTimeout    time.Duration // max silence before the connection is dropped; 0 disables
	WriteTimeout   time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int  // 0 = infinite
	AutoReconnect  bool // reconnect in the background after a dropped connection
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 1 << 20,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// MessageHandler receives every data frame.
type MessageHandler func(ctx context.Context, msg []byte)

// StateHandler observes state transitions; err is set when a transition was
// caused by a failure.
type StateHandler func(state State, err error)

// Client is a WebSocket client safe for concurrent Send calls.
type Client struct {
	cfg Config

	mu    sync.RWMutex
	conn  *websocket.Conn
	state State

	writeMu sync.Mutex

	handlersMu sync.RWMutex
	onMessage  MessageHandler
	onState    StateHandler

	ctx        context.Context
	cancel     context.CancelFunc
	closed     atomic.Bool
	reconnects atomic.Int64
	wg         sync.WaitGroup
}

// New creates a client; it does not dial.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, apperror.New(apperror.CodeInvalidInput, apperror.WithContext("wsconn: url is required"))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:    cfg,
		state:  StateDisconnected,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// OnMessage sets the message handler.
func (c *Client) OnMessage(h MessageHandler) {
	c.handlersMu.Lock()
	c.onMessage = h
	c.handlersMu.Unlock()
}

// OnStateChange sets the state handler.
func (c *Client) OnStateChange(h StateHandler) {
	c.handlersMu.Lock()
	c.onState = h
	c.handlersMu.Unlock()
}

// Connect dials once and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.cfg.Name))
	}

	c.setState(StateConnecting, nil)

	conn, _, err := websocket.Dial(ctx, c.cfg.URL, nil)
	if err != nil {
		c.setState(StateDisconnected, err)
		return apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithContext(c.cfg.Name), apperror.WithCause(err))
	}
	if c.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(c.cfg.MaxMessageSize)
	}

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		conn.CloseNow()
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.cfg.Name))
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(StateConnected, nil)

	c.wg.Add(1)
	go c.readLoop(conn)

	if c.cfg.PingInterval > 0 {
		c.wg.Add(1)
		go c.pingLoop(conn)
	}

	return nil
}

// ConnectWithRetry dials with exponential backoff until it succeeds, the
// reconnect budget runs out or ctx ends.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	if c.cfg.InitialBackoff > 0 {
		b.InitialInterval = c.cfg.InitialBackoff
	}
	if c.cfg.MaxBackoff > 0 {
		b.MaxInterval = c.cfg.MaxBackoff
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(error, time.Duration) {
			c.reconnects.Add(1)
		}),
	}
	if c.cfg.MaxReconnects > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(c.cfg.MaxReconnects)))
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.Connect(ctx)
		if apperror.GetCode(err) == apperror.CodeWebSocketClosed {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, opts...)
	return err
}

// Send writes a text frame.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithContext(c.cfg.Name), apperror.WithMessage("not connected"))
	}

	if c.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.WriteTimeout)
		defer cancel()
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithContext(c.cfg.Name), apperror.WithCause(err))
	}
	return nil
}

// SendJSON encodes v and sends it as a text frame.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithContext(c.cfg.Name), apperror.WithCause(err))
	}
	return c.Send(ctx, data)
}

// IsConnected reports whether the client holds a live connection.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Reconnects returns the number of failed dial attempts that were retried.
func (c *Client) Reconnects() int64 {
	return c.reconnects.Load()
}

// Close closes the connection and stops background loops. It is idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		// The peer may already be gone; the handshake result does not matter here.
		_ = conn.Close(websocket.StatusNormalClosure, "client closing")
	}

	c.wg.Wait()
	c.setState(StateClosed, nil)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		data, err := c.read(conn)

		if err != nil {
			c.dropped(conn, err)
			return
		}

		c.handlersMu.RLock()
		h := c.onMessage
		c.handlersMu.RUnlock()
		if h != nil {
			h(c.ctx, data)
		}
	}
}

func (c *Client) read(conn *websocket.Conn) ([]byte, error) {
	ctx := c.ctx
	if c.cfg.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(c.ctx, c.cfg.ReadTimeout)
		defer cancel()
	}
	_, data, err := conn.Read(ctx)
	return data, err
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			current := c.conn
			c.mu.RUnlock()
			if current != conn {
				return
			}

			ctx, cancel := context.WithTimeout(c.ctx, c.cfg.PingInterval)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				c.dropped(conn, err)
				return
			}
		}
	}
}

// dropped tears down conn after a read or ping failure. Only the first caller
// for a given conn acts.
func (c *Client) dropped(conn *websocket.Conn, cause error) {
	if c.closed.Load() {
		return
	}

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	conn.CloseNow()
	c.setState(StateDisconnected, cause)

	if c.cfg.AutoReconnect {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.setState(StateReconnecting, cause)
			if err := c.ConnectWithRetry(c.ctx); err != nil && !c.closed.Load() {
				c.setState(StateDisconnected, err)
			}
		}()
	}
}

func (c *Client) setState(state State, err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()

	c.handlersMu.RLock()
	h := c.onState
	c.handlersMu.RUnlock()
	if h != nil {
		h(state, err)
	}
}
