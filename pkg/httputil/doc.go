// Package httputil provides the wire envelopes and request helpers shared by
// every handler behind the gateway.
//
// # Response Envelopes
//
// Success responses carry the payload plus request metadata:
//
//	{"success": true, "data": {...}, "meta": {"timestamp": ..., "requestId": ..., "responseTime": ...}}
//
// Error responses carry a stable machine-readable code:
//
//	{"success": false, "message": "Too many requests", "code": "RATE_LIMITED", "retryAfter": 42}
//
// Handlers should never hand-roll JSON; use WriteData / WriteErrorCode and
// the status-specific helpers so clients can rely on the shape.
//
// # Request Parsing
//
//	var req BookAppointmentRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // error response already written
//	}
//	limit := httputil.ParseQueryInt(r, "limit", 20)
//
// # Client IP
//
// ClientIP resolves the caller's address through X-Forwarded-For and
// X-Real-IP before falling back to the socket address.
package httputil
