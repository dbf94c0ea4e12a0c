package store

import (
	"context"
	"time"
)

// Counters is the shared mutable state consulted by every request: window
// counters, brute-force failure counts and blocked-IP markers all live here.
//
// IncrementAndGet must be atomic per key so concurrent requests never lose
// updates; implementations backed by an external store must perform it in a
// single round trip rather than a read-then-write pair.
type Counters interface {
	// IncrementAndGet bumps the counter for key, creating it with the given
	// window TTL on first use, and returns the post-increment count along
	// with the time remaining until the window resets.
	IncrementAndGet(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)

	// Decrement lowers an existing counter by one, flooring at zero. Used by
	// policies that do not count successful requests.
	Decrement(ctx context.Context, key string) error

	// Get returns the current value for key; ok is false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (value int64, ok bool, err error)

	// SetWithExpiry stores value under key with the given TTL, replacing any
	// previous value.
	SetWithExpiry(ctx context.Context, key string, value int64, ttl time.Duration) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error
}
