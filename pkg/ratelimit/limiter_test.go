package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/caregate/caregate/pkg/blocklist"
	"github.com/caregate/caregate/pkg/store"
)

func testPolicy(limit int64, window time.Duration) Policy {
	return Policy{Name: "test", Limit: limit, Window: window, Keying: KeyByIP}
}

func TestLimiter_DeniesAboveLimit(t *testing.T) {
	s := store.NewMemoryStore()
	l := New(s)
	ctx := context.Background()
	p := testPolicy(5, 15*time.Minute)

	// Exactly limit requests are admitted.
	for i := 0; i < 5; i++ {
		res, err := l.Check(ctx, p, "1.2.3.4")
		if err != nil {
			t.Fatalf("Check %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d denied below the limit", i+1)
		}
	}

	// The (limit+1)th request in the same window is denied.
	res, err := l.Check(ctx, p, "1.2.3.4")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Allowed {
		t.Error("request above the limit was admitted")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > p.Window {
		t.Errorf("RetryAfter = %v, want (0, %v]", res.RetryAfter, p.Window)
	}
}

func TestLimiter_WindowRollover(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })
	l := New(s)
	ctx := context.Background()
	p := testPolicy(3, time.Minute)

	for i := 0; i < 10; i++ {
		l.Check(ctx, p, "k")
	}

	now = now.Add(p.Window + time.Second)
	res, err := l.Check(ctx, p, "k")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Allowed {
		t.Error("request denied after window rollover")
	}
	if res.Remaining != p.Limit-1 {
		t.Errorf("Remaining = %d, want %d", res.Remaining, p.Limit-1)
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	s := store.NewMemoryStore()
	l := New(s)
	ctx := context.Background()
	p := testPolicy(1, time.Minute)

	l.Check(ctx, p, "a")
	res, _ := l.Check(ctx, p, "b")
	if !res.Allowed {
		t.Error("key b throttled by key a's traffic")
	}
}

func TestLimiter_PoliciesAreIndependentlyStateful(t *testing.T) {
	s := store.NewMemoryStore()
	l := New(s)
	ctx := context.Background()

	api := Policy{Name: PolicyAPI, Limit: 1, Window: time.Minute, Keying: KeyByIP}
	otp := Policy{Name: PolicyOTP, Limit: 1, Window: time.Minute, Keying: KeyByIP}

	l.Check(ctx, api, "1.2.3.4")
	res, _ := l.Check(ctx, otp, "1.2.3.4")
	if !res.Allowed {
		t.Error("otp policy shares counters with api policy")
	}
}

// Login scenario: limit=5 in 15 minutes keyed by (ip,email) with
// skip_successful. Five failures deny the sixth; an intervening success is
// rolled back and does not consume quota, while the brute-force failure
// count is untouched by the success.
func TestLimiter_SkipSuccessfulLoginScenario(t *testing.T) {
	s := store.NewMemoryStore()
	l := New(s)
	ctx := context.Background()
	p := DefaultPolicies()[PolicyAuth]
	key := "9.9.9.9|bob@example.com"

	// A successful login consumes no quota once confirmed.
	res, _ := l.Check(ctx, p, key)
	if !res.Allowed {
		t.Fatal("first attempt denied")
	}
	if err := l.ConfirmSuccess(ctx, p, key); err != nil {
		t.Fatalf("ConfirmSuccess: %v", err)
	}

	// Five failed attempts (not confirmed) exhaust the limit.
	for i := 0; i < 5; i++ {
		res, _ = l.Check(ctx, p, key)
		if !res.Allowed {
			t.Fatalf("failed attempt %d denied early", i+1)
		}
	}

	res, _ = l.Check(ctx, p, key)
	if res.Allowed {
		t.Error("sixth failed attempt admitted")
	}
}

func TestLimiter_ConfirmSuccessIgnoredForCountingPolicies(t *testing.T) {
	s := store.NewMemoryStore()
	l := New(s)
	ctx := context.Background()
	p := testPolicy(2, time.Minute) // SkipSuccessful false

	l.Check(ctx, p, "k")
	l.ConfirmSuccess(ctx, p, "k")

	val, ok, _ := s.Get(ctx, "test:k")
	if !ok || val != 1 {
		t.Errorf("counter = (%d, %v), want (1, true): ConfirmSuccess must be a no-op", val, ok)
	}
}

// erroringStore simulates an unreachable shared store.
type erroringStore struct{}

func (erroringStore) IncrementAndGet(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("store down")
}
func (erroringStore) Decrement(context.Context, string) error { return errors.New("store down") }
func (erroringStore) Get(context.Context, string) (int64, bool, error) {
	return 0, false, errors.New("store down")
}
func (erroringStore) SetWithExpiry(context.Context, string, int64, time.Duration) error {
	return errors.New("store down")
}
func (erroringStore) Delete(context.Context, string) error { return errors.New("store down") }

func TestLimiter_FailOpen(t *testing.T) {
	l := New(erroringStore{})
	ctx := context.Background()
	p := testPolicy(1, time.Minute)

	res, err := l.Check(ctx, p, "k")
	if err == nil {
		t.Fatal("expected store error to surface")
	}
	if !res.Allowed {
		t.Error("fail-open limiter rejected on store error")
	}

	l.SetFailOpen(false)
	res, _ = l.Check(ctx, p, "k")
	if res.Allowed {
		t.Error("fail-closed limiter admitted on store error")
	}
}

func TestBruteForce_BlocksAfterThreshold(t *testing.T) {
	s := store.NewMemoryStore()
	bl := blocklist.New(s)
	bf := NewBruteForce(s, bl)
	bf.SetThreshold(3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		triggered, err := bf.TrackFailedAttempt(ctx, "1.2.3.4|eve@example.com", "1.2.3.4")
		if err != nil {
			t.Fatalf("TrackFailedAttempt: %v", err)
		}
		if triggered {
			t.Fatalf("block triggered at failure %d, threshold is 3", i+1)
		}
	}

	triggered, err := bf.TrackFailedAttempt(ctx, "1.2.3.4|eve@example.com", "1.2.3.4")
	if err != nil {
		t.Fatalf("TrackFailedAttempt: %v", err)
	}
	if !triggered {
		t.Fatal("threshold crossing did not trigger a block")
	}

	blocked, _ := bl.IsBlocked(ctx, "1.2.3.4")
	if !blocked {
		t.Error("IP not in blocklist after threshold")
	}
}

func TestBruteForce_FailuresExpire(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })
	bf := NewBruteForce(s, blocklist.New(s))
	ctx := context.Background()

	bf.TrackFailedAttempt(ctx, "id", "1.1.1.1")
	bf.TrackFailedAttempt(ctx, "id", "1.1.1.1")

	count, _ := bf.Failures(ctx, "id")
	if count != 2 {
		t.Fatalf("Failures = %d, want 2", count)
	}

	now = now.Add(25 * time.Hour)
	count, _ = bf.Failures(ctx, "id")
	if count != 0 {
		t.Errorf("failures survived the 24h TTL: %d", count)
	}
}

func TestBruteForce_Reset(t *testing.T) {
	s := store.NewMemoryStore()
	bf := NewBruteForce(s, blocklist.New(s))
	ctx := context.Background()

	bf.TrackFailedAttempt(ctx, "id", "1.1.1.1")
	if err := bf.Reset(ctx, "id"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	count, _ := bf.Failures(ctx, "id")
	if count != 0 {
		t.Errorf("Failures after reset = %d, want 0", count)
	}
}
