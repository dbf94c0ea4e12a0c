package store

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Instrumented decorates a Counters backend with per-operation Prometheus
// metrics. The backend label distinguishes memory from redis in dashboards.
type Instrumented struct {
	inner   Counters
	backend string
	ops     *prometheus.CounterVec
	errs    *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewInstrumented wraps inner so every operation is counted and timed.
func NewInstrumented(inner Counters, backend string, ops, errs *prometheus.CounterVec, latency *prometheus.HistogramVec) *Instrumented {
	return &Instrumented{
		inner:   inner,
		backend: backend,
		ops:     ops,
		errs:    errs,
		latency: latency,
	}
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	s.ops.WithLabelValues(op, s.backend).Inc()
	s.latency.WithLabelValues(op, s.backend).Observe(time.Since(start).Seconds())
	if err != nil {
		s.errs.WithLabelValues(op, s.backend).Inc()
	}
}

func (s *Instrumented) IncrementAndGet(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	start := time.Now()
	count, resetIn, err := s.inner.IncrementAndGet(ctx, key, window)
	s.observe("increment_and_get", start, err)
	return count, resetIn, err
}

func (s *Instrumented) Decrement(ctx context.Context, key string) error {
	start := time.Now()
	err := s.inner.Decrement(ctx, key)
	s.observe("decrement", start, err)
	return err
}

func (s *Instrumented) Get(ctx context.Context, key string) (int64, bool, error) {
	start := time.Now()
	value, ok, err := s.inner.Get(ctx, key)
	s.observe("get", start, err)
	return value, ok, err
}

func (s *Instrumented) SetWithExpiry(ctx context.Context, key string, value int64, ttl time.Duration) error {
	start := time.Now()
	err := s.inner.SetWithExpiry(ctx, key, value, ttl)
	s.observe("set_with_expiry", start, err)
	return err
}

func (s *Instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, key)
	s.observe("delete", start, err)
	return err
}
