package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/caregate/caregate/pkg/contextkeys"
)

// Logger is the interface for audit sinks.
type Logger interface {
	// Log writes one record.
	Log(ctx context.Context, rec *Record) error

	// Purge removes records older than the retention policy allows and
	// reports how many were removed.
	Purge(ctx context.Context, policy RetentionPolicy) (int64, error)

	// Close flushes and releases the sink.
	Close() error
}

// WithLogger adds an audit logger to the context.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context, falling back to a
// no-op logger so call sites never need a nil check.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NopLogger{}
}

// NopLogger discards everything. Used when auditing is disabled and as the
// FromContext fallback.
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, rec *Record) error { return nil }

func (NopLogger) Purge(ctx context.Context, policy RetentionPolicy) (int64, error) { return 0, nil }

func (NopLogger) Close() error { return nil }

// NewRecord builds a record with the shared request fields populated from
// context and the HTTP request. r may be nil for records that do not
// originate from a request.
func NewRecord(ctx context.Context, r *http.Request, action Action, outcome Outcome) *Record {
	rec := &Record{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Outcome:   outcome,
		RequestID: contextkeys.GetRequestID(ctx),
		IPAddress: contextkeys.GetClientIP(ctx),
	}
	if r != nil {
		rec.Method = r.Method
		rec.Path = r.URL.Path
		rec.UserAgent = r.UserAgent()
	}
	return rec
}
