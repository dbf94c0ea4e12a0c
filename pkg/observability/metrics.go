package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Pipeline decision metrics
	RateLimitChecksTotal  *prometheus.CounterVec
	BlocklistHitsTotal    prometheus.Counter
	SuspiciousInputTotal  *prometheus.CounterVec
	AuthFailuresTotal     *prometheus.CounterVec
	AuthzDenialsTotal     *prometheus.CounterVec
	BruteForceBlocksTotal prometheus.Counter
	PanicsRecoveredTotal  prometheus.Counter

	// Store metrics
	StoreOperationsTotal  *prometheus.CounterVec
	StoreOperationErrors  *prometheus.CounterVec
	StoreOperationLatency *prometheus.HistogramVec

	// Audit metrics
	AuditWritesTotal   *prometheus.CounterVec
	AuditWriteFailures prometheus.Counter
	AuditQueueDepth    prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caregate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "caregate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "caregate_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		RateLimitChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caregate_ratelimit_checks_total",
				Help: "Rate limit decisions by policy and outcome",
			},
			[]string{"policy", "outcome"},
		),
		BlocklistHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "caregate_blocklist_hits_total",
				Help: "Requests rejected because the source IP is blocked",
			},
		),
		SuspiciousInputTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caregate_suspicious_input_total",
				Help: "Suspicious payloads detected by kind and action taken",
			},
			[]string{"kind", "action"},
		),
		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caregate_auth_failures_total",
				Help: "Token verification failures by reason",
			},
			[]string{"reason"},
		),
		AuthzDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caregate_authz_denials_total",
				Help: "Authorization denials by reason",
			},
			[]string{"reason"},
		),
		BruteForceBlocksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "caregate_brute_force_blocks_total",
				Help: "IPs blocked for repeated authentication failures",
			},
		),
		PanicsRecoveredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "caregate_panics_recovered_total",
				Help: "Handler panics recovered by the pipeline",
			},
		),

		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caregate_store_operations_total",
				Help: "Counter store operations by operation and backend",
			},
			[]string{"operation", "backend"},
		),
		StoreOperationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caregate_store_operation_errors_total",
				Help: "Counter store errors by operation and backend",
			},
			[]string{"operation", "backend"},
		),
		StoreOperationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "caregate_store_operation_duration_seconds",
				Help:    "Counter store operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "backend"},
		),

		AuditWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caregate_audit_writes_total",
				Help: "Audit records written by sink outcome",
			},
			[]string{"outcome"},
		),
		AuditWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "caregate_audit_write_failures_total",
				Help: "Audit records that could not be written to any sink",
			},
		),
		AuditQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "caregate_audit_queue_depth",
				Help: "Audit records waiting to be written",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.RateLimitChecksTotal,
		m.BlocklistHitsTotal,
		m.SuspiciousInputTotal,
		m.AuthFailuresTotal,
		m.AuthzDenialsTotal,
		m.BruteForceBlocksTotal,
		m.PanicsRecoveredTotal,
		m.StoreOperationsTotal,
		m.StoreOperationErrors,
		m.StoreOperationLatency,
		m.AuditWritesTotal,
		m.AuditWriteFailures,
		m.AuditQueueDepth,
	)

	return m
}

// ResponseWriter wraps http.ResponseWriter to capture status code and size.
// The pipeline and the metrics middleware both rely on it.
type ResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
	wroteHeader  bool
}

// WrapResponseWriter wraps w with a 200 default status.
func WrapResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(rw.statusCode)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HeaderWritten reports whether the status line has been sent.
func (rw *ResponseWriter) HeaderWritten() bool { return rw.wroteHeader }

// StatusCode returns the committed (or pending) status code.
func (rw *ResponseWriter) StatusCode() int { return rw.statusCode }

// BytesWritten returns the response body size so far.
func (rw *ResponseWriter) BytesWritten() int { return rw.bytesWritten }

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := WrapResponseWriter(w)

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.StatusCode())

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.BytesWritten()))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
