package audit

import (
	"context"
	"errors"
)

// MultiLogger fans every record out to several sinks. A failing sink does not
// stop the others; errors are joined.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger wraps the given sinks. Nil entries are skipped.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Log writes to every sink.
func (m *MultiLogger) Log(ctx context.Context, rec *Record) error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Log(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Purge purges every sink and sums the removal counts.
func (m *MultiLogger) Purge(ctx context.Context, policy RetentionPolicy) (int64, error) {
	var total int64
	var errs []error
	for _, l := range m.loggers {
		n, err := l.Purge(ctx, policy)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// Close closes every sink.
func (m *MultiLogger) Close() error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
