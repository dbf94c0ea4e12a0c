package ratelimit

import (
	"context"
	"time"

	"github.com/caregate/caregate/pkg/blocklist"
	"github.com/caregate/caregate/pkg/store"
)

const (
	// DefaultBruteForceThreshold is how many failed attempts against one
	// identity trigger a block of the source IP.
	DefaultBruteForceThreshold = 10

	// bruteForceTTL is how long failed attempts count against the threshold.
	// Much longer than any rate-limit window, so a slow drip of guesses
	// still trips it.
	bruteForceTTL = 24 * time.Hour

	bruteForceKeyPrefix = "bruteforce:"
)

// BruteForce tracks failed authentication attempts per identity and blocks
// the offending source IP once the threshold is crossed. The identity is an
// opaque key chosen by the caller, typically "ip|email". A successful
// attempt in between does not clear the count; failures only age out with
// the TTL.
type BruteForce struct {
	counters  store.Counters
	blocked   *blocklist.Blocklist
	threshold int64
}

// NewBruteForce creates a tracker writing blocks through the given blocklist.
func NewBruteForce(counters store.Counters, blocked *blocklist.Blocklist) *BruteForce {
	return &BruteForce{
		counters:  counters,
		blocked:   blocked,
		threshold: DefaultBruteForceThreshold,
	}
}

// SetThreshold overrides the default failed-attempt threshold.
func (b *BruteForce) SetThreshold(n int64) {
	if n > 0 {
		b.threshold = n
	}
}

// TrackFailedAttempt records one failed attempt against identity from the
// given IP and reports whether this attempt crossed the threshold and
// blocked the IP.
func (b *BruteForce) TrackFailedAttempt(ctx context.Context, identity, ip string) (bool, error) {
	count, _, err := b.counters.IncrementAndGet(ctx, bruteForceKeyPrefix+identity, bruteForceTTL)
	if err != nil {
		return false, err
	}
	if count < b.threshold {
		return false, nil
	}
	if err := b.blocked.Block(ctx, ip, blocklist.DefaultBlockDuration); err != nil {
		return false, err
	}
	return true, nil
}

// Failures reports the current failed-attempt count for identity.
func (b *BruteForce) Failures(ctx context.Context, identity string) (int64, error) {
	count, _, err := b.counters.Get(ctx, bruteForceKeyPrefix+identity)
	return count, err
}

// Reset clears the failed-attempt count. Meant for genuine credential
// changes (password reset, account recovery), not for successful logins.
func (b *BruteForce) Reset(ctx context.Context, identity string) error {
	return b.counters.Delete(ctx, bruteForceKeyPrefix+identity)
}
