// Package ratelimit implements fixed-window request rate limiting over the
// shared counter store.
//
// Several named policies run concurrently, each with its own limit, window
// and keying strategy: a general API policy keyed by client IP, a stricter
// authentication policy keyed by (ip, email) that does not count successful
// requests, plus password-reset and OTP policies. Each policy counts in its
// own key namespace, so they are independently stateful.
//
// The window is fixed, not sliding: the counter resets entirely when the
// window elapses. A burst straddling a window boundary can therefore admit
// up to twice the limit in a short span; this is an accepted tradeoff of the
// strategy, not a bug.
//
// A separate brute-force tracker counts authentication failures per identity
// over a 24h horizon and blocks the source IP once its threshold is crossed.
package ratelimit
