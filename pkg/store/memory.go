package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     int64
	expiresAt time.Time
}

// MemoryStore implements Counters with an in-process map. Suitable for
// single-instance deployments; use RedisStore when running more than one
// replica.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// SetClock overrides the time source (useful for tests).
func (s *MemoryStore) SetClock(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// IncrementAndGet bumps the counter for key under the store lock, so
// concurrent requests for the same key never lose updates.
func (s *MemoryStore) IncrementAndGet(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || !e.expiresAt.After(now) {
		e = &memoryEntry{value: 0, expiresAt: now.Add(window)}
		s.entries[key] = e
	}
	e.value++
	return e.value, e.expiresAt.Sub(now), nil
}

// Decrement lowers the counter by one, flooring at zero.
func (s *MemoryStore) Decrement(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.expiresAt.After(s.now()) {
		return nil
	}
	if e.value > 0 {
		e.value--
	}
	return nil
}

// Get returns the value for key if present and unexpired.
func (s *MemoryStore) Get(ctx context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.expiresAt.After(s.now()) {
		return 0, false, nil
	}
	return e.value, true, nil
}

// SetWithExpiry stores value under key with the given TTL.
func (s *MemoryStore) SetWithExpiry(ctx context.Context, key string, value int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memoryEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Sweep removes expired entries. Called periodically via StartJanitor or a
// scheduler; expired entries are also ignored on access, so sweeping only
// reclaims memory.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if !e.expiresAt.After(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of live entries (expired included until swept).
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor starts a background goroutine sweeping expired entries until
// the context is cancelled.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}
