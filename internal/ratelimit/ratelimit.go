// Package ratelimit bounds how many submissions a single client identity
// may make in a sliding time window and in a short burst window.
//
// The limiter runs against a pluggable counter store: the in-memory store
// is process-local and approximate (reset on restart, acceptable for
// abuse mitigation), the redis store gives exact cross-process counts.
// When the store cannot be consulted, limiting fails closed.
package ratelimit

import (
	"context"
	"math"
	"time"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/apperrors"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/config"
)

// Result reports the outcome of one limiter check.
type Result struct {
	Allowed    bool `json:"allowed"`
	Count      int  `json:"count"`
	Limit      int  `json:"limit"`
	RetryAfter int  `json:"retry_after"` // Seconds remaining in the window, 0 when allowed
}

// Store is the counter backend. Counters follow bucket-reset semantics:
// the first increment within a window sets count=1 and starts the window;
// an increment after the window has elapsed starts a fresh one.
type Store interface {
	// Increment bumps the counter for key, resetting it first if its
	// window has expired. It returns the new count and the time remaining
	// in the current window.
	Increment(ctx context.Context, key string, window time.Duration) (count int, remaining time.Duration, err error)
	// Peek reports the current counter without mutating it. An expired or
	// absent counter reads as zero.
	Peek(ctx context.Context, key string) (count int, remaining time.Duration, err error)
	// Reset removes the counter for key.
	Reset(ctx context.Context, key string) error
	// ClearAll removes every counter. Administrative/test use only.
	ClearAll(ctx context.Context) error
}

// Limiter applies the configured long and burst windows to identities.
type Limiter struct {
	store Store
	cfg   config.RateLimitConfig
}

// NewLimiter creates a limiter over the given store.
func NewLimiter(store Store, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{store: store, cfg: cfg}
}

// CheckAndIncrement counts one request for identity against an arbitrary
// window. Denied calls still advance the counter.
func (l *Limiter) CheckAndIncrement(ctx context.Context, identity string, maxRequests int, window time.Duration) (Result, error) {
	count, remaining, err := l.store.Increment(ctx, identity, window)
	if err != nil {
		return Result{}, apperrors.NewRetryable(apperrors.ErrStoreUnavailable, "rate limit increment for %q", identity)
	}
	return buildResult(count, maxRequests, remaining), nil
}

// Peek reports the state of identity's counter for the given limit
// without incrementing it.
func (l *Limiter) Peek(ctx context.Context, identity string, maxRequests int) (Result, error) {
	count, remaining, err := l.store.Peek(ctx, identity)
	if err != nil {
		return Result{}, apperrors.NewRetryable(apperrors.ErrStoreUnavailable, "rate limit peek for %q", identity)
	}
	// Peek reports whether the NEXT request would be allowed.
	res := buildResult(count+1, maxRequests, remaining)
	res.Count = count
	return res, nil
}

// Allow applies both configured windows to the identity: the short burst
// window first, then the long window. The burst check short-circuits, so
// a burst-denied request does not consume long-window quota.
func (l *Limiter) Allow(ctx context.Context, identity string) (Result, error) {
	burst, err := l.CheckAndIncrement(ctx, identity+":burst", l.cfg.BurstLimit, time.Duration(l.cfg.BurstWindowSeconds)*time.Second)
	if err != nil {
		return Result{}, err
	}
	if !burst.Allowed {
		return burst, nil
	}
	return l.CheckAndIncrement(ctx, identity, l.cfg.MaxRequests, time.Duration(l.cfg.WindowSeconds)*time.Second)
}

// Reset clears both windows for an identity.
func (l *Limiter) Reset(ctx context.Context, identity string) error {
	if err := l.store.Reset(ctx, identity+":burst"); err != nil {
		return apperrors.NewRetryable(apperrors.ErrStoreUnavailable, "rate limit reset for %q", identity)
	}
	if err := l.store.Reset(ctx, identity); err != nil {
		return apperrors.NewRetryable(apperrors.ErrStoreUnavailable, "rate limit reset for %q", identity)
	}
	return nil
}

// ClearAll wipes every tracked identity.
func (l *Limiter) ClearAll(ctx context.Context) error {
	if err := l.store.ClearAll(ctx); err != nil {
		return apperrors.NewRetryable(apperrors.ErrStoreUnavailable, "rate limit clear all")
	}
	return nil
}

func buildResult(count, limit int, remaining time.Duration) Result {
	res := Result{
		Count:   count,
		Limit:   limit,
		Allowed: count <= limit,
	}
	if !res.Allowed {
		res.RetryAfter = int(math.Ceil(remaining.Seconds()))
		if res.RetryAfter < 1 {
			res.RetryAfter = 1
		}
	}
	return res
}
