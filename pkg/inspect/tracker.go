package inspect

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/caregate/caregate/pkg/blocklist"
)

const (
	// DefaultTrackerWindow is the trailing period over which suspicious
	// hits from one IP are counted.
	DefaultTrackerWindow = 5 * time.Minute
	// DefaultTrackerThreshold is the in-window hit count an IP may reach
	// before the next hit blocklists it.
	DefaultTrackerThreshold = 10
	// DefaultTrackerSize bounds how many distinct IPs are tracked at once.
	// Least recently seen IPs are evicted first.
	DefaultTrackerSize = 4096
)

// Event is one flagged payload attributed to a source.
type Event struct {
	SourceIP    string
	PrincipalID string
	Kind        Kind
	Field       string
	Path        string
	Timestamp   time.Time
}

// Tracker counts suspicious hits per source IP over a trailing window and
// blocklists IPs that cross the threshold.
type Tracker struct {
	mu        sync.Mutex
	hits      *lru.Cache[string, []time.Time]
	blocks    *blocklist.Blocklist
	window    time.Duration
	threshold int
	now       func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerWindow overrides the trailing window.
func WithTrackerWindow(d time.Duration) TrackerOption {
	return func(t *Tracker) { t.window = d }
}

// WithTrackerThreshold overrides the blocklisting threshold.
func WithTrackerThreshold(n int) TrackerOption {
	return func(t *Tracker) { t.threshold = n }
}

// WithTrackerClock overrides the time source, for tests.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker builds a tracker backed by the given blocklist.
func NewTracker(blocks *blocklist.Blocklist, opts ...TrackerOption) (*Tracker, error) {
	hits, err := lru.New[string, []time.Time](DefaultTrackerSize)
	if err != nil {
		return nil, err
	}
	t := &Tracker{
		hits:      hits,
		blocks:    blocks,
		window:    DefaultTrackerWindow,
		threshold: DefaultTrackerThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// RecordAndMaybeBlock records one suspicious hit for ip and blocklists the IP
// once the trailing-window count exceeds the threshold, so with a threshold
// of 10 the eleventh hit blocks. It reports whether the IP was blocked by
// this call. An empty ip is ignored.
func (t *Tracker) RecordAndMaybeBlock(ctx context.Context, ip string) (bool, error) {
	if ip == "" {
		return false, nil
	}
	now := t.now()
	cutoff := now.Add(-t.window)

	t.mu.Lock()
	stamps, _ := t.hits.Get(ip)
	live := stamps[:0]
	for _, s := range stamps {
		if s.After(cutoff) {
			live = append(live, s)
		}
	}
	live = append(live, now)
	t.hits.Add(ip, live)
	count := len(live)
	t.mu.Unlock()

	if count <= t.threshold {
		return false, nil
	}
	if err := t.blocks.Block(ctx, ip, blocklist.DefaultBlockDuration); err != nil {
		return false, err
	}
	t.mu.Lock()
	t.hits.Remove(ip)
	t.mu.Unlock()
	return true, nil
}

// Count reports the current trailing-window hit count for ip.
func (t *Tracker) Count(ip string) int {
	now := t.now()
	cutoff := now.Add(-t.window)
	t.mu.Lock()
	defer t.mu.Unlock()
	stamps, _ := t.hits.Get(ip)
	n := 0
	for _, s := range stamps {
		if s.After(cutoff) {
			n++
		}
	}
	return n
}
