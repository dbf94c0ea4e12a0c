// Package middleware runs every portal request through an ordered security
// pipeline before the business handler sees it.
//
// # Stage order
//
// The order is fixed and load-bearing; each stage may short-circuit with a
// complete error envelope:
//
//	request-ID   assign a UUID, resolve the client IP, start the clock
//	blocklist    403 IP_BLOCKED for blocklisted sources
//	rate limit   429 RATE_LIMITED with Retry-After and X-RateLimit-* headers
//	inspect      400 INPUT_REJECTED (or sanitize and continue)
//	credential   401 UNAUTHENTICATED when the gates require a principal;
//	             on anonymous routes a bad token is logged and dropped
//	authz        403 FORBIDDEN / NOT_VERIFIED
//	handler      the wrapped business handler
//
// Cheap checks run first so blocked or abusive traffic never costs a token
// verification or a handler invocation.
//
// # Finalization
//
// A deferred finalizer runs on every exit, including handler panics: it
// records the request metrics, sets X-Response-Time, rolls back
// skip-successful rate-limit counts, and hands the audit record to a
// fire-and-forget writer. A panic is converted to a 500 envelope when
// nothing has been written yet.
package middleware
