// Package observability provides structured logging, Prometheus metrics,
// health checks, panic recovery and graceful shutdown for the gateway.
//
// Logging is JSON over stdlib slog. Metrics cover the security pipeline's
// decisions (rate limiting, blocklist hits, suspicious input, auth failures)
// alongside the usual HTTP request families, all registered on a private
// prometheus.Registry and served from the ops listener.
package observability
