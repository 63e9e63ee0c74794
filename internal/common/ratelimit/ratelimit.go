// Package ratelimit provides a token bucket limiter that can be disabled.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter. A Limiter created with a non-positive rate is
// disabled and never blocks or rejects.
type Limiter struct {
	limiter *rate.Limiter
	rps     float64
}

// New creates a limiter allowing rps events per second with a burst of one.
func New(rps float64) *Limiter {
	return NewWithBurst(rps, 1)
}

// NewWithBurst creates a limiter allowing rps events per second and bursts
// of up to burst events. Burst values below one are raised to one.
func NewWithBurst(rps float64, burst int) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		rps:     rps,
	}
}

// Enabled reports whether the limiter enforces a rate.
func (l *Limiter) Enabled() bool {
	return l != nil && l.limiter != nil
}

// RPS returns the configured rate, or 0 when disabled.
func (l *Limiter) RPS() float64 {
	if !l.Enabled() {
		return 0
	}
	return l.rps
}

// Burst returns the bucket size, or 0 when disabled.
func (l *Limiter) Burst() int {
	if !l.Enabled() {
		return 0
	}
	return l.limiter.Burst()
}

// Wait blocks until an event is permitted or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if !l.Enabled() {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether an event may happen now, consuming a token if so.
func (l *Limiter) Allow() bool {
	if !l.Enabled() {
		return true
	}
	return l.limiter.Allow()
}

// Reserve reserves a token. It returns nil when the limiter is disabled.
func (l *Limiter) Reserve() *rate.Reservation {
	if !l.Enabled() {
		return nil
	}
	return l.limiter.Reserve()
}

// RetryAfter returns the time until a token is replenished, rounded up to
// whole seconds for use in Retry-After headers.
func (l *Limiter) RetryAfter() time.Duration {
	if !l.Enabled() {
		return 0
	}
	return time.Duration(math.Ceil(1/l.rps)) * time.Second
}

// String describes the limiter for logs.
func (l *Limiter) String() string {
	if !l.Enabled() {
		return "rate limiting disabled"
	}
	if l.rps < 1 {
		return fmt.Sprintf("1 request per %v", time.Duration(float64(time.Second)/l.rps))
	}
	return fmt.Sprintf("%.2f rps (burst %d)", l.rps, l.limiter.Burst())
}
