package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/caregate/caregate/pkg/contextkeys"
)

// ErrorCode is the stable machine-readable reason on error envelopes.
type ErrorCode string

const (
	CodeIPBlocked       ErrorCode = "IP_BLOCKED"
	CodeRateLimited     ErrorCode = "RATE_LIMITED"
	CodeInputRejected   ErrorCode = "INPUT_REJECTED"
	CodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	CodeForbidden       ErrorCode = "FORBIDDEN"
	CodeNotVerified     ErrorCode = "NOT_VERIFIED"
	CodeBadRequest      ErrorCode = "BAD_REQUEST"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// Meta carries per-request metadata on success envelopes.
type Meta struct {
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"requestId,omitempty"`
	ResponseTime int64     `json:"responseTime"` // milliseconds
}

// SuccessEnvelope is the shape of every 2xx response body.
type SuccessEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Meta    Meta        `json:"meta"`
}

// ErrorEnvelope is the shape of every error response body.
type ErrorEnvelope struct {
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	Code       ErrorCode `json:"code"`
	RetryAfter int64     `json:"retryAfter,omitempty"` // seconds
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// WriteData writes a success envelope. Request ID and response time come
// from the request context when the pipeline has populated them.
func WriteData(w http.ResponseWriter, r *http.Request, status int, data interface{}) error {
	meta := Meta{Timestamp: time.Now().UTC()}
	if r != nil {
		ctx := r.Context()
		meta.RequestID = contextkeys.GetRequestID(ctx)
		if start, ok := ctx.Value(contextkeys.RequestStartTimeKey).(time.Time); ok {
			meta.ResponseTime = time.Since(start).Milliseconds()
		}
	}
	return WriteJSON(w, status, SuccessEnvelope{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// WriteErrorCode writes an error envelope.
func WriteErrorCode(w http.ResponseWriter, status int, code ErrorCode, message string) error {
	return WriteJSON(w, status, ErrorEnvelope{
		Success: false,
		Message: message,
		Code:    code,
	})
}

// WriteRateLimited writes the 429 envelope with Retry-After both as a header
// and in the body.
func WriteRateLimited(w http.ResponseWriter, retryAfter time.Duration, message string) error {
	secs := int64(retryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	return WriteJSON(w, http.StatusTooManyRequests, ErrorEnvelope{
		Success:    false,
		Message:    message,
		Code:       CodeRateLimited,
		RetryAfter: secs,
	})
}

// WriteIPBlocked writes the 403 envelope for blocklisted sources.
func WriteIPBlocked(w http.ResponseWriter) error {
	return WriteErrorCode(w, http.StatusForbidden, CodeIPBlocked, "Access temporarily blocked")
}

// WriteInputRejected writes the 400 envelope for flagged payloads.
func WriteInputRejected(w http.ResponseWriter) error {
	return WriteErrorCode(w, http.StatusBadRequest, CodeInputRejected, "Request contains invalid input")
}

// WriteUnauthenticated writes the generic 401 envelope. Token failure detail
// stays in the logs; clients only learn that credentials were not accepted.
func WriteUnauthenticated(w http.ResponseWriter) error {
	return WriteErrorCode(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentication required")
}

// WriteForbidden writes the 403 envelope for authorization denials.
func WriteForbidden(w http.ResponseWriter) error {
	return WriteErrorCode(w, http.StatusForbidden, CodeForbidden, "Insufficient permissions")
}

// WriteNotVerified writes the 403 envelope for unverified accounts.
func WriteNotVerified(w http.ResponseWriter) error {
	return WriteErrorCode(w, http.StatusForbidden, CodeNotVerified, "Account verification required")
}

// WriteBadRequest writes a 400 envelope with a caller-facing message.
func WriteBadRequest(w http.ResponseWriter, message string) error {
	return WriteErrorCode(w, http.StatusBadRequest, CodeBadRequest, message)
}

// WriteNotFound writes a 404 envelope.
func WriteNotFound(w http.ResponseWriter, message string) error {
	return WriteErrorCode(w, http.StatusNotFound, CodeNotFound, message)
}

// WriteInternalError writes a 500 envelope without leaking the cause.
func WriteInternalError(w http.ResponseWriter) error {
	return WriteErrorCode(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
}
