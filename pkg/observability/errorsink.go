package observability

import (
	"context"

	"github.com/caregate/caregate/pkg/contextkeys"
)

// ErrorSink receives errors worth reporting beyond the request log, such as
// recovered panics and background job failures. The implementation is chosen
// once at startup from configuration, never probed at runtime.
type ErrorSink interface {
	CaptureError(ctx context.Context, err error, tags map[string]string)
	CaptureMessage(ctx context.Context, message string, tags map[string]string)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) CaptureError(ctx context.Context, err error, tags map[string]string)        {}
func (NopSink) CaptureMessage(ctx context.Context, message string, tags map[string]string) {}

// LogSink reports through the structured logger.
type LogSink struct {
	logger *Logger
}

// NewLogSink creates a sink that writes captured errors to the logger.
func NewLogSink(logger *Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) CaptureError(ctx context.Context, err error, tags map[string]string) {
	s.tagged(ctx, tags).WithError(err).Error("Captured error")
}

func (s *LogSink) CaptureMessage(ctx context.Context, message string, tags map[string]string) {
	s.tagged(ctx, tags).Error(message)
}

func (s *LogSink) tagged(ctx context.Context, tags map[string]string) *Logger {
	logger := s.logger
	if logger == nil {
		logger = FromContext(ctx)
	}
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}
	for k, v := range tags {
		logger = logger.WithField(k, v)
	}
	return logger
}

// SinkFromConfig maps a config string to a sink: "log" reports through the
// logger, anything else is a no-op.
func SinkFromConfig(kind string, logger *Logger) ErrorSink {
	if kind == "log" {
		return NewLogSink(logger)
	}
	return NopSink{}
}
