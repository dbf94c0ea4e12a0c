package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

// setupRedisStoreTest creates a miniredis instance and returns the store and
// a cleanup function.
func setupRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	client, err := NewRedisClient("redis://"+mr.Addr(), "", -1)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create redis client: %v", err)
	}

	s := NewRedisStore(client, "test")
	cleanup := func() {
		client.Close()
		mr.Close()
	}
	return s, mr, cleanup
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	if _, err := NewRedisClient("invalid://url", "", -1); err == nil {
		t.Fatal("expected error for invalid redis URL")
	}
}

func TestRedisStore_IncrementAndGet(t *testing.T) {
	s, _, cleanup := setupRedisStoreTest(t)
	defer cleanup()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		count, resetIn, err := s.IncrementAndGet(ctx, "auth:1.2.3.4", time.Minute)
		if err != nil {
			t.Fatalf("IncrementAndGet: %v", err)
		}
		if count != i {
			t.Errorf("count = %d, want %d", count, i)
		}
		if resetIn <= 0 {
			t.Errorf("resetIn = %v, want positive", resetIn)
		}
	}
}

func TestRedisStore_WindowReset(t *testing.T) {
	s, mr, cleanup := setupRedisStoreTest(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if _, _, err := s.IncrementAndGet(ctx, "k", time.Minute); err != nil {
			t.Fatalf("IncrementAndGet: %v", err)
		}
	}

	mr.FastForward(time.Minute + time.Second)

	count, _, err := s.IncrementAndGet(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("IncrementAndGet after rollover: %v", err)
	}
	if count != 1 {
		t.Errorf("count after window rollover = %d, want 1", count)
	}
}

func TestRedisStore_ExpiryIsAnchoredToWindowStart(t *testing.T) {
	s, mr, cleanup := setupRedisStoreTest(t)
	defer cleanup()
	ctx := context.Background()

	s.IncrementAndGet(ctx, "k", time.Minute)
	mr.FastForward(30 * time.Second)

	// Later increments must not push the reset boundary out.
	_, resetIn, err := s.IncrementAndGet(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("IncrementAndGet: %v", err)
	}
	if resetIn > 30*time.Second {
		t.Errorf("resetIn = %v, want <= 30s (fixed window, not sliding)", resetIn)
	}
}

func TestRedisStore_Decrement(t *testing.T) {
	s, _, cleanup := setupRedisStoreTest(t)
	defer cleanup()
	ctx := context.Background()

	s.IncrementAndGet(ctx, "k", time.Minute)
	s.IncrementAndGet(ctx, "k", time.Minute)

	if err := s.Decrement(ctx, "k"); err != nil {
		t.Fatalf("Decrement: %v", err)
	}
	val, ok, _ := s.Get(ctx, "k")
	if !ok || val != 1 {
		t.Errorf("after decrement got (%d, %v), want (1, true)", val, ok)
	}

	// A decrement on a missing key must not leave a negative counter behind.
	if err := s.Decrement(ctx, "missing"); err != nil {
		t.Fatalf("Decrement missing: %v", err)
	}
	_, ok, _ = s.Get(ctx, "missing")
	if ok {
		t.Error("negative marker left behind for missing key")
	}
}

func TestRedisStore_SetGetDelete(t *testing.T) {
	s, mr, cleanup := setupRedisStoreTest(t)
	defer cleanup()
	ctx := context.Background()

	if err := s.SetWithExpiry(ctx, "blocked:9.9.9.9", 1, time.Hour); err != nil {
		t.Fatalf("SetWithExpiry: %v", err)
	}
	val, ok, err := s.Get(ctx, "blocked:9.9.9.9")
	if err != nil || !ok || val != 1 {
		t.Errorf("Get = (%d, %v, %v), want (1, true, nil)", val, ok, err)
	}

	mr.FastForward(2 * time.Hour)
	_, ok, _ = s.Get(ctx, "blocked:9.9.9.9")
	if ok {
		t.Error("expired entry still visible")
	}

	s.SetWithExpiry(ctx, "k", 5, time.Hour)
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, ok, _ = s.Get(ctx, "k")
	if ok {
		t.Error("deleted entry still visible")
	}
}

func TestRedisStore_HealthCheck(t *testing.T) {
	s, mr, cleanup := setupRedisStoreTest(t)
	defer cleanup()

	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}

	mr.Close()
	if err := s.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck should fail after redis goes away")
	}
}
