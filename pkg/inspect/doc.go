// Package inspect pattern-matches request payloads for injection and XSS
// signatures.
//
// Detection is regular-expression matching over the string leaves of query
// parameters, route variables and decoded JSON bodies. It is a heuristic
// with documented false-positive and false-negative tolerance, not semantic
// parsing and not a guarantee.
//
// Two modes exist: Block rejects flagged requests outright; Sanitize strips
// the offending substrings and lets the request continue. Either way every
// finding is reported, and the per-IP tracker blocks sources that keep
// sending suspicious payloads.
package inspect
