// Package store provides the shared counter store behind rate limiting,
// brute-force tracking and the blocked-IP set.
//
// Two implementations exist behind the same Counters interface:
//
//   - MemoryStore: per-process map with TTL eviction, for single-instance
//     deployments.
//   - RedisStore: Redis-backed counters for horizontal scaling. The
//     increment-and-read is a single atomic INCR so concurrent processes
//     never lose updates.
//
// The store is injected into consumers rather than held as global state, so
// deployments choose an implementation at startup.
package store
