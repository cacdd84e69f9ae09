// Package ratelimit provides a request-weight limiter around golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter meters request weight against a per-minute budget. Exchanges such
// as Binance charge each endpoint a weight rather than a flat request count.
type Limiter struct {
	limiter *rate.Limiter
	budget  int
}

// New creates a limiter allowing weightPerMinute units per minute with a
// burst of 10% of the budget.
func New(weightPerMinute int) *Limiter {
	rps := float64(weightPerMinute) / 60.0
	burst := weightPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		budget:  weightPerMinute,
	}
}

// NewWithBurst creates a limiter with an explicit per-second rate and burst.
func NewWithBurst(perSecond float64, burst int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		budget:  int(perSecond * 60),
	}
}

// Wait blocks until one unit is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.WaitN(ctx, 1)
}

// WaitN blocks until weight units are available. Weights above the burst are
// clamped to the burst so heavy endpoints cannot deadlock the limiter.
func (l *Limiter) WaitN(ctx context.Context, weight int) error {
	if weight < 1 {
		weight = 1
	}
	if b := l.limiter.Burst(); weight > b {
		weight = b
	}
	if err := l.limiter.WaitN(ctx, weight); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Allow reports whether one unit may be spent now.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Tokens returns the current number of available units.
func (l *Limiter) Tokens() float64 {
	return l.limiter.Tokens()
}

// Budget returns the configured per-minute weight.
func (l *Limiter) Budget() int {
	return l.budget
}

// SetLimit updates the per-minute weight budget.
func (l *Limiter) SetLimit(weightPerMinute int) {
	l.budget = weightPerMinute
	l.limiter.SetLimit(rate.Limit(float64(weightPerMinute) / 60.0))
}
