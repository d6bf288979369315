// Package ratelimit provides a token-bucket rate limiter for pacing
// outbound LLM calls. Capacity refills continuously at the configured
// requests-per-minute rate; fractional tokens accumulate between calls.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/llmguard/types"
)

// Limiter is a token-bucket rate limiter for a named resource. A full
// bucket holds requestsPerMinute tokens; each admitted call consumes one.
// The bucket starts with a single token so the first call is immediate and
// sustained throughput matches the configured rate from the start.
// All methods are safe for concurrent use.
type Limiter struct {
	name       string
	ratePerMin float64
	logger     *zap.Logger
	now        func() time.Time // test seam
	onThrottle func(name string, wait time.Duration)

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// New creates a limiter admitting requestsPerMinute calls per 60-second
// window. Construction fails fast on a non-positive or non-finite rate.
func New(name string, requestsPerMinute float64, logger *zap.Logger) (*Limiter, error) {
	if requestsPerMinute <= 0 || math.IsInf(requestsPerMinute, 0) || math.IsNaN(requestsPerMinute) {
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("requests per minute must be positive, got %v", requestsPerMinute)).
			WithComponent(name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Limiter{
		name:       name,
		ratePerMin: requestsPerMinute,
		logger:     logger.With(zap.String("limiter", name)),
		now:        time.Now,
		tokens:     1,
	}
	l.lastRefill = time.Now()
	return l, nil
}

// WithOnThrottle registers a callback fired each time a caller is about to
// suspend waiting for a token. Must be called before the limiter is shared.
func (l *Limiter) WithOnThrottle(fn func(name string, wait time.Duration)) *Limiter {
	l.onThrottle = fn
	return l
}

// WaitForToken suspends the caller until a token has been consumed or ctx
// is done. Only the calling goroutine is suspended and the limiter's lock
// is not held while waiting. If ctx is done first, no token is consumed
// and the returned error wraps ctx.Err().
func (l *Limiter) WaitForToken(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refill()
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		// Time until one full token accumulates. Concurrent callers may
		// consume it first, so re-check after waking.
		wait := time.Duration((1 - l.tokens) * float64(time.Minute) / l.ratePerMin)
		l.mu.Unlock()

		if l.onThrottle != nil {
			l.onThrottle(l.name, wait)
		}
		l.logger.Debug("throttled, waiting for token", zap.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return types.NewError(types.ErrRateLimited, "wait for token abandoned").
				WithComponent(l.name).
				WithRetryable(true).
				WithCause(ctx.Err())
		case <-timer.C:
		}
	}
}

// refill credits tokens for the time elapsed since the last refill,
// capped at the bucket size. Callers must hold the lock.
func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed > 0 {
		l.tokens = math.Min(l.ratePerMin, l.tokens+elapsed*l.ratePerMin/60)
	}
	l.lastRefill = now
}

// Tokens returns the current token count after refill, for diagnostics.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.tokens
}

// Name returns the name of the guarded resource.
func (l *Limiter) Name() string {
	return l.name
}
