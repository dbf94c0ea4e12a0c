package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/caregate/caregate/pkg/async"
	"github.com/caregate/caregate/pkg/audit"
	"github.com/caregate/caregate/pkg/authz"
	"github.com/caregate/caregate/pkg/blocklist"
	"github.com/caregate/caregate/pkg/httputil"
	"github.com/caregate/caregate/pkg/inspect"
	"github.com/caregate/caregate/pkg/observability"
	"github.com/caregate/caregate/pkg/ratelimit"
	"github.com/caregate/caregate/pkg/token"
)

// auditWriteTimeout bounds how long a fire-and-forget audit write may run.
const auditWriteTimeout = 5 * time.Second

// Route describes how the pipeline treats one endpoint.
type Route struct {
	// Gates is the ordered authorization gate list. An empty list means
	// Public.
	Gates []authz.Gate

	// Policy names the rate-limit policy; empty selects "api".
	Policy string

	// OwnerID resolves the owner of the addressed resource for OwnerOrRole
	// gates. Nil means no owner, so only the role half can match.
	OwnerID func(r *http.Request) string

	// Resource and Action label the audit record. Action defaults to a
	// method-derived resource action.
	Resource audit.Resource
	Action   audit.Action
}

// Pipeline owns the shared security components and wraps handlers with the
// staged checks.
type Pipeline struct {
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Audit     audit.Logger
	Blocklist *blocklist.Blocklist
	Limiter   *ratelimit.Limiter
	Detector  *inspect.Detector
	Tracker   *inspect.Tracker
	Codec     *token.Codec

	// Errors receives recovered panics. Nil means no reporting beyond the
	// request log.
	Errors observability.ErrorSink

	// AuditPool bounds concurrent audit writes so a slow sink backpressures
	// instead of spawning a goroutine per request. Nil falls back to
	// one-off goroutines.
	AuditPool *async.WorkerPool

	// Policies returns the current policy set. Indirection keeps hot
	// reloads visible without locking in the request path.
	Policies func() map[string]ratelimit.Policy
}

// Stage is one pipeline step. Process writes the error response itself when
// it halts; a returned request replaces the exchange's request (for context
// values).
type Stage interface {
	Name() string
	Process(ex *Exchange) bool
}

// timingWriter injects the X-Response-Time header just before the status
// line is committed, wherever in the chain that happens.
type timingWriter struct {
	*observability.ResponseWriter
	start time.Time
}

func (t *timingWriter) WriteHeader(code int) {
	if !t.HeaderWritten() {
		t.Header().Set("X-Response-Time", strconv.FormatInt(time.Since(t.start).Milliseconds(), 10)+"ms")
	}
	t.ResponseWriter.WriteHeader(code)
}

func (t *timingWriter) Write(b []byte) (int, error) {
	if !t.HeaderWritten() {
		t.WriteHeader(t.StatusCode())
	}
	return t.ResponseWriter.Write(b)
}

// Exchange carries a single request through the stages.
type Exchange struct {
	W *timingWriter
	R *http.Request

	pipeline *Pipeline
	route    Route

	// principal is set by the credential stage, nil for anonymous.
	principal *token.Principal
	// body caches the request body so the rate-limit and inspect stages
	// can read it without starving the handler.
	body     []byte
	bodyRead bool
	// halted names the stage that stopped the request, for the audit trail.
	haltedBy string
	// rateLimitKey is remembered for skip-successful rollback.
	rateLimitKey    string
	rateLimitPolicy *ratelimit.Policy
}

// Wrap runs next behind the full stage chain for the given route.
func (p *Pipeline) Wrap(route Route, next http.Handler) http.Handler {
	stages := []Stage{
		&requestIDStage{},
		&blocklistStage{},
		&rateLimitStage{},
		&inspectStage{},
		&credentialStage{},
		&authzStage{},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ex := &Exchange{
			W:        &timingWriter{ResponseWriter: observability.WrapResponseWriter(w), start: start},
			R:        r,
			pipeline: p,
			route:    route,
		}

		defer p.finalize(ex, start)

		for _, stage := range stages {
			if !stage.Process(ex) {
				ex.haltedBy = stage.Name()
				return
			}
		}

		next.ServeHTTP(ex.W, ex.R)
	})
}

// finalize runs on every exit. It recovers handler panics, emits metrics,
// rolls back skip-successful rate-limit counts, and queues the audit record.
func (p *Pipeline) finalize(ex *Exchange, start time.Time) {
	if r := recover(); r != nil {
		p.Metrics.PanicsRecoveredTotal.Inc()
		func() {
			defer observability.RecoverPanic(p.Logger, "panic finalizer")
			observability.FromContext(ex.R.Context()).
				WithField("panic", r).
				WithField("path", ex.R.URL.Path).
				Error("Handler panic")
			if p.Errors != nil {
				p.Errors.CaptureError(ex.R.Context(), fmt.Errorf("handler panic: %v", r), map[string]string{
					"path":   ex.R.URL.Path,
					"method": ex.R.Method,
				})
			}
		}()
		if !ex.W.HeaderWritten() {
			httputil.WriteInternalError(ex.W)
		}
	}

	duration := time.Since(start)
	if !ex.W.HeaderWritten() {
		// Empty handler response: the header goes out with the implicit 200.
		ex.W.Header().Set("X-Response-Time", strconv.FormatInt(duration.Milliseconds(), 10)+"ms")
	}

	status := ex.W.StatusCode()
	p.Metrics.HTTPRequestsTotal.WithLabelValues(ex.R.Method, ex.R.URL.Path, strconv.Itoa(status)).Inc()
	p.Metrics.HTTPRequestDuration.WithLabelValues(ex.R.Method, ex.R.URL.Path).Observe(duration.Seconds())
	p.Metrics.HTTPResponseSize.WithLabelValues(ex.R.Method, ex.R.URL.Path).Observe(float64(ex.W.BytesWritten()))

	if ex.rateLimitPolicy != nil && ex.rateLimitPolicy.SkipSuccessful && status < 400 {
		policy, key := *ex.rateLimitPolicy, ex.rateLimitKey
		ctx := context.WithoutCancel(ex.R.Context())
		if err := p.Limiter.ConfirmSuccess(ctx, policy, key); err != nil {
			p.Logger.WithError(err).WithField("policy", policy.Name).Warn("Rate limit rollback failed")
		}
	}

	p.writeAuditRecord(ex, status, duration)
}

func (p *Pipeline) writeAuditRecord(ex *Exchange, status int, duration time.Duration) {
	rec := audit.NewRecord(ex.R.Context(), ex.R, p.auditAction(ex, status), outcomeForStatus(status))
	rec.Resource = ex.route.Resource
	rec.StatusCode = status
	rec.DurationMs = duration.Milliseconds()
	if ex.principal != nil {
		rec.PrincipalID = ex.principal.Subject
		rec.PrincipalRole = string(ex.principal.Role)
	}
	if ex.haltedBy != "" {
		rec.Message = "rejected by " + ex.haltedBy
	}
	if ex.route.OwnerID != nil {
		rec.ResourceID = ex.route.OwnerID(ex.R)
	}

	logger, metrics := p.Audit, p.Metrics
	metrics.AuditQueueDepth.Inc()
	write := func(writeCtx context.Context) error {
		defer metrics.AuditQueueDepth.Dec()
		if err := logger.Log(writeCtx, rec); err != nil {
			metrics.AuditWriteFailures.Inc()
			metrics.AuditWritesTotal.WithLabelValues("failure").Inc()
			return err
		}
		metrics.AuditWritesTotal.WithLabelValues("success").Inc()
		return nil
	}

	// Fire-and-forget: an unreachable sink must not fail the request that
	// already completed.
	if p.AuditPool != nil {
		if err := p.AuditPool.Submit(write); err != nil {
			metrics.AuditQueueDepth.Dec()
			metrics.AuditWriteFailures.Inc()
			metrics.AuditWritesTotal.WithLabelValues("failure").Inc()
			p.Logger.WithError(err).Warn("Audit record dropped")
		}
		return
	}
	async.SafeGo(context.WithoutCancel(ex.R.Context()), auditWriteTimeout, "audit write", write)
}

// auditAction picks the audit action: the route's explicit action, an action
// derived from the halting stage, or a method-derived resource action.
func (p *Pipeline) auditAction(ex *Exchange, status int) audit.Action {
	switch ex.haltedBy {
	case "blocklist":
		return audit.ActionSecurityIPBlocked
	case "ratelimit":
		return audit.ActionSecurityRateLimited
	case "inspect":
		return audit.ActionSecurityInputRejected
	case "credential":
		return audit.ActionAuthTokenInvalid
	case "authz":
		return audit.ActionAuthzDenied
	}
	if ex.route.Action != "" {
		return ex.route.Action
	}
	switch ex.R.Method {
	case http.MethodPost:
		return audit.ActionResourceCreate
	case http.MethodPut, http.MethodPatch:
		return audit.ActionResourceUpdate
	case http.MethodDelete:
		return audit.ActionResourceDelete
	default:
		return audit.ActionResourceRead
	}
}

func outcomeForStatus(status int) audit.Outcome {
	switch {
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		return audit.OutcomeDenied
	case status >= 400:
		return audit.OutcomeFailure
	default:
		return audit.OutcomeSuccess
	}
}

// policyFor resolves the route's rate-limit policy against the live set.
func (p *Pipeline) policyFor(route Route) (ratelimit.Policy, bool) {
	name := route.Policy
	if name == "" {
		name = "api"
	}
	policy, ok := p.Policies()[name]
	return policy, ok
}
