// Package circuitbreaker wraps sony/gobreaker with project defaults.
package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/fd1az/triarb-bot/internal/apperror"
)

// Config holds circuit breaker settings.
type Config struct {
	Name                string
	MaxRequests         uint32        // requests allowed in half-open
	Interval            time.Duration // closed-state counter reset period
	Timeout             time.Duration // open -> half-open delay
	ConsecutiveFailures uint32        // trips after this many failures in a row
	OnStateChange       func(name string, from, to gobreaker.State)

	// IsSuccessful decides whether an error counts against the breaker.
	// Nil counts every non-nil error as a failure.
	IsSuccessful func(err error) bool
	// IsExcluded errors are counted as neither success nor failure.
	IsExcluded func(err error) bool
}

// DefaultConfig returns sensible defaults for an outbound dependency.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// CircuitBreaker is a typed breaker.
type CircuitBreaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// New creates a breaker from cfg.
func New[T any](cfg Config) *CircuitBreaker[T] {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: cfg.OnStateChange,
		IsSuccessful:  cfg.IsSuccessful,
		IsExcluded:    cfg.IsExcluded,
	}

	return &CircuitBreaker[T]{cb: gobreaker.NewCircuitBreaker[T](settings)}
}

// Execute runs fn through the breaker. Rejections by an open or saturated
// breaker are returned as CodeCircuitOpen errors.
func (c *CircuitBreaker[T]) Execute(fn func() (T, error)) (T, error) {
	res, err := c.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, apperror.New(apperror.CodeCircuitOpen,
			apperror.WithCause(err),
			apperror.WithContext(c.cb.Name()))
	}
	return res, err
}

// State returns the current breaker state.
func (c *CircuitBreaker[T]) State() gobreaker.State {
	return c.cb.State()
}

// Name returns the breaker name.
func (c *CircuitBreaker[T]) Name() string {
	return c.cb.Name()
}
