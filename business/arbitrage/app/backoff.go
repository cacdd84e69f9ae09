package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fd1az/triarb-bot/internal/apperror"
)

// BackoffConfig holds the pause schedule per error class.
type BackoffConfig struct {
	// NetworkSleeps is the pause after the 1st, 2nd, ... consecutive network
	// error. One more error aborts the run.
	NetworkSleeps []time.Duration
	// ExchangeSleep is the pause after each consecutive exchange error, up
	// to ExchangeErrorCap of them. One more aborts the run.
	ExchangeSleep    time.Duration
	ExchangeErrorCap int
}

// DefaultBackoffConfig returns 30/60/90 minute network pauses and three
// 5 minute exchange pauses.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		NetworkSleeps:    []time.Duration{30 * time.Minute, 60 * time.Minute, 90 * time.Minute},
		ExchangeSleep:    5 * time.Minute,
		ExchangeErrorCap: 3,
	}
}

// Sleeper pauses for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// ContextSleeper waits on a timer and returns early with ctx.Err().
var ContextSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
})

// scheduleBackOff returns its steps in order, then backoff.Stop.
type scheduleBackOff struct {
	steps []time.Duration
	next  int
}

func (b *scheduleBackOff) NextBackOff() time.Duration {
	if b.next >= len(b.steps) {
		return backoff.Stop
	}
	d := b.steps[b.next]
	b.next++
	return d
}

func (b *scheduleBackOff) Reset() { b.next = 0 }

// cappedBackOff stops the wrapped policy after max pauses.
type cappedBackOff struct {
	backoff.BackOff
	max, n int
}

func (b *cappedBackOff) NextBackOff() time.Duration {
	if b.n >= b.max {
		return backoff.Stop
	}
	b.n++
	return b.BackOff.NextBackOff()
}

func (b *cappedBackOff) Reset() {
	b.n = 0
	b.BackOff.Reset()
}

// Decision is what the controller did with an error.
type Decision struct {
	Class       apperror.Class
	Sleep       time.Duration
	Consecutive int
	// Fatal is non-nil when the run must stop.
	Fatal error
}

// BackoffController turns network and exchange errors into pauses and
// aborts the run once a class has failed too many times in a row. Counters
// reset on Success.
type BackoffController struct {
	sleeper Sleeper

	mu       sync.Mutex
	network  backoff.BackOff
	exchange backoff.BackOff
	counts   map[apperror.Class]int
}

// NewBackoffController creates a new BackoffController.
func NewBackoffController(cfg BackoffConfig, sleeper Sleeper) *BackoffController {
	if sleeper == nil {
		sleeper = ContextSleeper
	}
	return &BackoffController{
		sleeper:  sleeper,
		network:  &scheduleBackOff{steps: cfg.NetworkSleeps},
		exchange: &cappedBackOff{BackOff: backoff.NewConstantBackOff(cfg.ExchangeSleep), max: cfg.ExchangeErrorCap},
		counts:   make(map[apperror.Class]int),
	}
}

// Handle pauses for err's class. The returned Decision carries a Fatal
// error when the schedule is exhausted, when err is neither network nor
// exchange class, or when ctx ends during the pause.
func (c *BackoffController) Handle(ctx context.Context, err error) Decision {
	class := apperror.Classify(err)

	c.mu.Lock()
	var policy backoff.BackOff
	switch class {
	case apperror.ClassNetwork:
		policy = c.network
	case apperror.ClassExchange:
		policy = c.exchange
	default:
		c.mu.Unlock()
		return Decision{Class: class, Fatal: err}
	}
	c.counts[class]++
	n := c.counts[class]
	wait := policy.NextBackOff()
	c.mu.Unlock()

	dec := Decision{Class: class, Consecutive: n}
	if wait == backoff.Stop {
		dec.Fatal = apperror.New(apperror.CodeBackoffExhausted,
			apperror.WithContext(fmt.Sprintf("%d consecutive %s errors", n, class)),
			apperror.WithCause(err))
		return dec
	}

	dec.Sleep = wait
	if err := c.sleeper.Sleep(ctx, wait); err != nil {
		dec.Fatal = err
	}
	return dec
}

// Success resets both schedules.
func (c *BackoffController) Success() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.network.Reset()
	c.exchange.Reset()
	clear(c.counts)
}
