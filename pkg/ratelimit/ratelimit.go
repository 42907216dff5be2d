package ratelimit

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Waiter gates an outbound operation. Wait blocks until the operation may
// proceed or the context is canceled.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Clock abstracts the timer used by Limiter so tests can run without real
// wall-clock delay.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Limiter) {
		if c != nil {
			l.clock = c
		}
	}
}

// Limiter pauses for a fixed delay before every operation, incorporating
// optional jitter. Concurrent callers wait one at a time, so they are
// released at least one delay apart.
type Limiter struct {
	delay  time.Duration
	jitter float64 // 0.0 to 1.0
	clock  Clock
	gate   chan struct{}
}

// NewLimiter creates a limiter that waits delay before each operation.
// Jitter is clamped to [0, 1] and spreads the delay by +/- jitter*delay.
// If delay is <= 0, the limiter does not block.
func NewLimiter(delay time.Duration, jitter float64, opts ...Option) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}

	l := &Limiter{
		delay:  delay,
		jitter: jitter,
		clock:  realClock{},
		gate:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Delay returns the configured base delay.
func (l *Limiter) Delay() time.Duration {
	return l.delay
}

// Wait blocks for the configured delay, or until the context is canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.delay <= 0 {
		return nil
	}

	select {
	case l.gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.gate }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.clock.After(l.next()):
	}
	return nil
}

func (l *Limiter) next() time.Duration {
	if l.jitter == 0 {
		return l.delay
	}
	// -1.0 to 1.0
	factor := (rand.Float64() * 2) - 1.0
	d := l.delay + time.Duration(float64(l.delay)*l.jitter*factor)
	if d < 0 {
		return 0
	}
	return d
}

// NewTokenBucket returns a token-bucket Waiter allowing rps operations per
// second with the given burst. Useful when detail lookups run concurrently.
// If rps is <= 0, the bucket never blocks.
func NewTokenBucket(rps float64, burst int) *rate.Limiter {
	if burst < 1 {
		burst = 1
	}
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Nop never blocks.
type Nop struct{}

// Wait returns immediately unless the context is already done.
func (Nop) Wait(ctx context.Context) error {
	return ctx.Err()
}
