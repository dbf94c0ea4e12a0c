package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore implements Counters on Redis so counters and blocklist entries
// are shared across gateway replicas. Increments are single INCR commands,
// atomic server-side, so multi-process increments never race.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed counter store. The prefix namespaces
// all keys so several stores can share one Redis database.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "caregate"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisClient connects to Redis with the timeouts used across the
// gateway, verifying connectivity before returning.
func NewRedisClient(url, password string, db int) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	if db >= 0 {
		opts.DB = db
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

// IncrementAndGet increments the counter and pins its expiry to the window
// start, so the counter resets entirely at fixed boundaries rather than
// sliding with each request.
func (s *RedisStore) IncrementAndGet(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	rkey := s.key(key)

	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, rkey)
	ttl := pipe.TTL(ctx, rkey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("redis increment: %w", err)
	}

	count := incr.Val()
	resetIn := ttl.Val()
	// First request of a window, or a key left without TTL by a prior
	// failure: anchor the expiry now.
	if count == 1 || resetIn < 0 {
		if err := s.client.Expire(ctx, rkey, window).Err(); err != nil {
			return count, window, fmt.Errorf("redis expire: %w", err)
		}
		resetIn = window
	}
	return count, resetIn, nil
}

// Decrement lowers the counter by one, flooring at zero.
func (s *RedisStore) Decrement(ctx context.Context, key string) error {
	rkey := s.key(key)
	val, err := s.client.Decr(ctx, rkey).Result()
	if err != nil {
		return fmt.Errorf("redis decrement: %w", err)
	}
	if val < 0 {
		// Decremented a missing key; remove the negative marker.
		return s.client.Del(ctx, rkey).Err()
	}
	return nil
}

// Get returns the counter value if the key exists.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

// SetWithExpiry stores value under key with the given TTL.
func (s *RedisStore) SetWithExpiry(ctx context.Context, key string, value int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// HealthCheck verifies Redis connectivity.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
