package blocklist

import (
	"context"
	"testing"
	"time"

	"github.com/caregate/caregate/pkg/store"
)

func TestBlocklist_BlockAndExpire(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })
	bl := New(s)
	ctx := context.Background()

	blocked, err := bl.IsBlocked(ctx, "10.0.0.1")
	if err != nil || blocked {
		t.Fatalf("fresh IP reported blocked (%v, %v)", blocked, err)
	}

	if err := bl.Block(ctx, "10.0.0.1", 30*time.Minute); err != nil {
		t.Fatalf("Block: %v", err)
	}
	blocked, _ = bl.IsBlocked(ctx, "10.0.0.1")
	if !blocked {
		t.Error("IP not blocked after Block")
	}

	now = now.Add(time.Hour)
	blocked, _ = bl.IsBlocked(ctx, "10.0.0.1")
	if blocked {
		t.Error("block did not expire")
	}
}

func TestBlocklist_Unblock(t *testing.T) {
	s := store.NewMemoryStore()
	bl := New(s)
	ctx := context.Background()

	bl.Block(ctx, "10.0.0.2", 0) // zero duration uses the default
	blocked, _ := bl.IsBlocked(ctx, "10.0.0.2")
	if !blocked {
		t.Fatal("IP not blocked")
	}

	if err := bl.Unblock(ctx, "10.0.0.2"); err != nil {
		t.Fatalf("Unblock: %v", err)
	}
	blocked, _ = bl.IsBlocked(ctx, "10.0.0.2")
	if blocked {
		t.Error("IP still blocked after Unblock")
	}
}

func TestBlocklist_EmptyIP(t *testing.T) {
	bl := New(store.NewMemoryStore())
	ctx := context.Background()

	if err := bl.Block(ctx, "", time.Hour); err != nil {
		t.Errorf("Block empty IP: %v", err)
	}
	blocked, err := bl.IsBlocked(ctx, "")
	if err != nil || blocked {
		t.Errorf("empty IP reported blocked (%v, %v)", blocked, err)
	}
}
