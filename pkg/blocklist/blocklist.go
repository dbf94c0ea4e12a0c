// Package blocklist maintains the set of temporarily blocked client IPs.
//
// Membership is checked before any other policy runs, so a blocked IP is
// rejected without spending rate-limit or token-verification work on it.
// Entries carry an expiry and are stored through the shared counter store,
// so blocks apply across replicas when the store is Redis-backed.
package blocklist

import (
	"context"
	"time"

	"github.com/caregate/caregate/pkg/store"
)

const keyPrefix = "blocked:"

// DefaultBlockDuration is how long an IP stays blocked once added.
const DefaultBlockDuration = time.Hour

// Blocklist is the set of blocked IPs with per-entry expiry.
type Blocklist struct {
	counters store.Counters
}

// New creates a Blocklist backed by the given counter store.
func New(counters store.Counters) *Blocklist {
	return &Blocklist{counters: counters}
}

// Block adds ip to the set for the given duration. A zero duration uses
// DefaultBlockDuration.
func (b *Blocklist) Block(ctx context.Context, ip string, d time.Duration) error {
	if ip == "" {
		return nil
	}
	if d <= 0 {
		d = DefaultBlockDuration
	}
	return b.counters.SetWithExpiry(ctx, keyPrefix+ip, 1, d)
}

// IsBlocked reports whether ip is currently blocked. Store errors fail open:
// an unreachable store must not take the whole gateway down with it.
func (b *Blocklist) IsBlocked(ctx context.Context, ip string) (bool, error) {
	if ip == "" {
		return false, nil
	}
	_, ok, err := b.counters.Get(ctx, keyPrefix+ip)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Unblock removes ip from the set.
func (b *Blocklist) Unblock(ctx context.Context, ip string) error {
	return b.counters.Delete(ctx, keyPrefix+ip)
}
