// Package async provides panic-safe goroutine helpers and a bounded worker
// pool.
//
// The gateway uses these for work that must never fail the request that
// spawned it: the pipeline queues audit record writes on a WorkerPool, and
// one-off writes such as suspicious-activity bookkeeping run through
// SafeGo, so a panic or slow sink is contained.
package async
