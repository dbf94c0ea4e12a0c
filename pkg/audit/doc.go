// Package audit records who did what to which resource through the gateway.
//
// Every request that reaches the pipeline produces exactly one Record,
// written after the response is finalized. Writes go through the Logger
// interface; shipped implementations are FileLogger (newline-delimited JSON
// with size-based rotation), DBLogger (PostgreSQL) and MultiLogger (fan-out
// to several sinks). Audit writes are fire-and-forget from the request path:
// a failed write is counted and logged but never fails the request it
// describes.
package audit
