// Package ratelimit provides the token bucket that gates concurrent outbound calls.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrStopped is returned to waiters released by Stop. It signals an abort, not a failure.
	ErrStopped = errors.New("rate limiter stopped")

	ErrInvalidRate = errors.New("rate limiter: refill rate must be positive")
)

// Bucket holds up to capacity tokens and refills continuously at a fixed rate.
// Refill is computed lazily from the time elapsed since the last take.
type Bucket struct {
	capacity int
	limiter  *rate.Limiter

	stopOnce sync.Once
	stopped  chan struct{}
}

// New returns a full bucket. A bucket that never refills would strand its
// waiters, so a non-positive or infinite rate is rejected.
func New(capacity int, refillPerSecond float64) (*Bucket, error) {
	if !(refillPerSecond > 0) || math.IsInf(refillPerSecond, 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRate, refillPerSecond)
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Bucket{
		capacity: capacity,
		limiter:  rate.NewLimiter(rate.Limit(refillPerSecond), capacity),
		stopped:  make(chan struct{}),
	}, nil
}

// Available returns the tokens that can be taken right now, in [0, capacity].
// Tokens already promised to blocked waiters are not available.
func (b *Bucket) Available() float64 {
	tokens := b.limiter.TokensAt(time.Now())
	return math.Max(0, math.Min(tokens, float64(b.capacity)))
}

// Consume blocks until a token is granted. It returns ErrStopped if the bucket is
// stopped, or ctx.Err() if ctx ends first; in both cases no token is taken.
func (b *Bucket) Consume(ctx context.Context) error {
	select {
	case <-b.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r := b.limiter.Reserve()
	if !r.OK() {
		return ErrStopped
	}
	delay := r.Delay()
	if delay == 0 {
		return nil
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-b.stopped:
		r.Cancel()
		return ErrStopped
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// Stop releases every waiter without granting a token. Later calls to Consume fail fast.
func (b *Bucket) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopped)
	})
}
