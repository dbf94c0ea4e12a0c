package ratelimit

import (
	"context"
	"time"

	"github.com/caregate/caregate/pkg/store"
)

// Result is the outcome of a rate-limit check.
type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter applies named fixed-window policies over a shared counter store.
type Limiter struct {
	counters store.Counters
	// failOpen admits requests when the store is unreachable, preferring
	// availability over strict enforcement.
	failOpen bool
}

// New creates a Limiter that fails open on store errors.
func New(counters store.Counters) *Limiter {
	return &Limiter{counters: counters, failOpen: true}
}

// SetFailOpen controls whether store errors admit (true) or reject (false)
// the request.
func (l *Limiter) SetFailOpen(enabled bool) {
	l.failOpen = enabled
}

// Check counts the request against the policy and reports whether it is
// admitted. The first call in a window initializes the counter at 1; when
// the count exceeds the limit the request is denied with the time remaining
// until the window resets.
func (l *Limiter) Check(ctx context.Context, p Policy, key string) (Result, error) {
	count, resetIn, err := l.counters.IncrementAndGet(ctx, p.Name+":"+key, p.Window)
	if err != nil {
		return Result{Allowed: l.failOpen, Remaining: 0, RetryAfter: 0}, err
	}

	remaining := p.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	if count > p.Limit {
		return Result{Allowed: false, Remaining: 0, RetryAfter: resetIn}, nil
	}
	return Result{Allowed: true, Remaining: remaining}, nil
}

// ConfirmSuccess rolls the counter back for policies that only count failed
// requests. No-op for other policies.
func (l *Limiter) ConfirmSuccess(ctx context.Context, p Policy, key string) error {
	if !p.SkipSuccessful {
		return nil
	}
	return l.counters.Decrement(ctx, p.Name+":"+key)
}
