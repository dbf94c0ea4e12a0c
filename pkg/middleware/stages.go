package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/caregate/caregate/pkg/async"
	"github.com/caregate/caregate/pkg/audit"
	"github.com/caregate/caregate/pkg/authz"
	"github.com/caregate/caregate/pkg/contextkeys"
	"github.com/caregate/caregate/pkg/httputil"
	"github.com/caregate/caregate/pkg/inspect"
	"github.com/caregate/caregate/pkg/observability"
	"github.com/caregate/caregate/pkg/ratelimit"
	"github.com/caregate/caregate/pkg/token"
)

// maxInspectedBody caps how much request body the pipeline buffers for
// inspection. Larger bodies pass through to the handler unscanned.
const maxInspectedBody = 1 << 20 // 1MB

// bodyBytes reads and caches the request body, restoring a fresh reader so
// downstream stages and the handler can read it again.
func (ex *Exchange) bodyBytes() []byte {
	if ex.bodyRead {
		return ex.body
	}
	ex.bodyRead = true
	if ex.R.Body == nil || ex.R.Body == http.NoBody {
		return nil
	}
	b, err := io.ReadAll(io.LimitReader(ex.R.Body, maxInspectedBody+1))
	ex.R.Body.Close()
	if err != nil || int64(len(b)) > maxInspectedBody {
		// Unreadable or oversized: hand whatever we have to the handler
		// and skip inspection.
		ex.body = nil
		ex.R.Body = io.NopCloser(bytes.NewReader(b))
		return nil
	}
	ex.body = b
	ex.R.Body = io.NopCloser(bytes.NewReader(b))
	return b
}

// replaceBody swaps the cached body, used after sanitization.
func (ex *Exchange) replaceBody(b []byte) {
	ex.body = b
	ex.R.Body = io.NopCloser(bytes.NewReader(b))
	ex.R.ContentLength = int64(len(b))
}

// requestIDStage assigns the request ID, resolves the client IP and stamps
// the context every later stage reads from.
type requestIDStage struct{}

func (s *requestIDStage) Name() string { return "request_id" }

func (s *requestIDStage) Process(ex *Exchange) bool {
	requestID := ex.R.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	ex.W.Header().Set("X-Request-ID", requestID)

	ctx := ex.R.Context()
	ctx = contextkeys.WithRequestID(ctx, requestID)
	ctx = contextkeys.WithClientIP(ctx, httputil.ClientIP(ex.R))
	ctx = contextkeys.WithRequestStartTime(ctx, ex.W.start)
	ctx = observability.WithLogger(ctx, ex.pipeline.Logger)
	ctx = audit.WithLogger(ctx, ex.pipeline.Audit)
	ex.R = ex.R.WithContext(ctx)
	return true
}

// blocklistStage rejects blocklisted source IPs before anything else spends
// work on them.
type blocklistStage struct{}

func (s *blocklistStage) Name() string { return "blocklist" }

func (s *blocklistStage) Process(ex *Exchange) bool {
	p := ex.pipeline
	ip := contextkeys.GetClientIP(ex.R.Context())

	blocked, err := p.Blocklist.IsBlocked(ex.R.Context(), ip)
	if err != nil {
		// Fail open: an unreachable store must not take the gateway down.
		observability.FromContext(ex.R.Context()).WithError(err).Warn("Blocklist check failed, admitting request")
		return true
	}
	if !blocked {
		return true
	}

	p.Metrics.BlocklistHitsTotal.Inc()
	httputil.WriteIPBlocked(ex.W)
	return false
}

// rateLimitStage counts the request against the route's policy.
type rateLimitStage struct{}

func (s *rateLimitStage) Name() string { return "ratelimit" }

func (s *rateLimitStage) Process(ex *Exchange) bool {
	p := ex.pipeline
	policy, ok := p.policyFor(ex.route)
	if !ok {
		observability.FromContext(ex.R.Context()).WithField("policy", ex.route.Policy).Error("Unknown rate limit policy, admitting request")
		return true
	}

	key := contextkeys.GetClientIP(ex.R.Context())
	if policy.Keying == ratelimit.KeyByIPEmail {
		if email := s.requestEmail(ex); email != "" {
			key = key + "|" + strings.ToLower(email)
		}
	}
	ex.rateLimitPolicy = &policy
	ex.rateLimitKey = key

	result, err := p.Limiter.Check(ex.R.Context(), policy, key)
	if err != nil {
		observability.FromContext(ex.R.Context()).WithError(err).WithField("policy", policy.Name).Warn("Rate limit check failed")
		p.Metrics.RateLimitChecksTotal.WithLabelValues(policy.Name, "error").Inc()
		if result.Allowed {
			return true
		}
		httputil.WriteRateLimited(ex.W, policy.Window, "Too many requests")
		return false
	}

	ex.W.Header().Set("X-RateLimit-Limit", strconv.FormatInt(policy.Limit, 10))
	ex.W.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))

	if !result.Allowed {
		p.Metrics.RateLimitChecksTotal.WithLabelValues(policy.Name, "denied").Inc()
		ex.W.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(result.RetryAfter).Unix(), 10))
		httputil.WriteRateLimited(ex.W, result.RetryAfter, "Too many requests")
		return false
	}

	p.Metrics.RateLimitChecksTotal.WithLabelValues(policy.Name, "allowed").Inc()
	ex.W.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(policy.Window).Unix(), 10))
	return true
}

// requestEmail pulls the email identity out of the JSON body or query for
// per-credential limiting on authentication routes.
func (s *rateLimitStage) requestEmail(ex *Exchange) string {
	if email := ex.R.URL.Query().Get("email"); email != "" {
		return email
	}
	body := ex.bodyBytes()
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Email
}

// inspectStage scans query parameters, route variables and the JSON body for
// injection signatures.
type inspectStage struct{}

func (s *inspectStage) Name() string { return "inspect" }

func (s *inspectStage) Process(ex *Exchange) bool {
	p := ex.pipeline
	ctx := ex.R.Context()

	var findings []inspect.Finding
	findings = append(findings, p.Detector.Scan("query", map[string][]string(ex.R.URL.Query()))...)
	if vars := mux.Vars(ex.R); len(vars) > 0 {
		findings = append(findings, p.Detector.Scan("path", vars)...)
	}

	var jsonBody interface{}
	body := ex.bodyBytes()
	if len(body) > 0 && strings.Contains(ex.R.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(body, &jsonBody); err == nil {
			findings = append(findings, p.Detector.Scan("body", jsonBody)...)
		}
	}

	if len(findings) == 0 {
		return true
	}

	action := "blocked"
	if p.Detector.Mode() == inspect.ModeSanitize {
		action = "sanitized"
	}
	logger := observability.FromContext(ctx)
	for _, f := range findings {
		p.Metrics.SuspiciousInputTotal.WithLabelValues(string(f.Kind), action).Inc()
		logger.WithFields(map[string]interface{}{
			"kind":  string(f.Kind),
			"field": f.Field,
		}).Warn("Suspicious input detected")
	}
	s.recordSuspicious(ex, findings, action)

	ip := contextkeys.GetClientIP(ctx)
	if blocked, err := p.Tracker.RecordAndMaybeBlock(ctx, ip); err != nil {
		logger.WithError(err).Warn("Suspicious activity tracking failed")
	} else if blocked {
		logger.WithField("ip", ip).Warn("IP blocked for repeated suspicious input")
	}

	if p.Detector.Mode() == inspect.ModeSanitize {
		s.sanitize(ex, jsonBody)
		return true
	}

	httputil.WriteInputRejected(ex.W)
	return false
}

// recordSuspicious writes one audit record per scan that found something,
// regardless of whether the request continues.
func (s *inspectStage) recordSuspicious(ex *Exchange, findings []inspect.Finding, action string) {
	p := ex.pipeline
	auditAction := audit.ActionSecurityInputRejected
	if action == "sanitized" {
		auditAction = audit.ActionSecurityInputSanitized
	}
	rec := audit.NewRecord(ex.R.Context(), ex.R, auditAction, audit.OutcomeDenied)
	rec.Metadata = map[string]interface{}{
		"kinds":  findingKinds(findings),
		"fields": findingFields(findings),
	}

	ctx := context.WithoutCancel(ex.R.Context())
	async.SafeGo(ctx, auditWriteTimeout, "suspicious input audit", func(writeCtx context.Context) error {
		return p.Audit.Log(writeCtx, rec)
	})
}

func (s *inspectStage) sanitize(ex *Exchange, jsonBody interface{}) {
	p := ex.pipeline

	query := url.Values(p.Detector.Sanitize(map[string][]string(ex.R.URL.Query())).(map[string][]string))
	ex.R.URL.RawQuery = query.Encode()

	if vars := mux.Vars(ex.R); len(vars) > 0 {
		clean := p.Detector.Sanitize(vars).(map[string]string)
		ex.R = mux.SetURLVars(ex.R, clean)
	}

	if jsonBody != nil {
		clean := p.Detector.Sanitize(jsonBody)
		if b, err := json.Marshal(clean); err == nil {
			ex.replaceBody(b)
		}
	}
}

func findingKinds(findings []inspect.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = string(f.Kind)
	}
	return out
}

func findingFields(findings []inspect.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.Field
	}
	return out
}

// credentialStage resolves the bearer token into a principal. Detail about
// why a token failed stays in the logs; the client sees a generic 401. On
// routes whose gates never require a principal, a bad token is logged and
// the request continues anonymously instead of failing.
type credentialStage struct{}

func (s *credentialStage) Name() string { return "credential" }

func (s *credentialStage) Process(ex *Exchange) bool {
	p := ex.pipeline
	mandatory := authz.RequiresPrincipal(ex.route.Gates)
	header := ex.R.Header.Get("Authorization")

	if header == "" {
		if mandatory {
			p.Metrics.AuthFailuresTotal.WithLabelValues("missing").Inc()
			httputil.WriteUnauthenticated(ex.W)
			return false
		}
		return true
	}

	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return s.reject(ex, "malformed", mandatory)
	}

	principal, err := p.Codec.Verify(raw)
	if err != nil {
		return s.reject(ex, authFailureReason(err), mandatory)
	}

	ex.principal = principal
	ex.R = ex.R.WithContext(contextkeys.WithPrincipal(ex.R.Context(), principal))
	return true
}

func (s *credentialStage) reject(ex *Exchange, reason string, mandatory bool) bool {
	ex.pipeline.Metrics.AuthFailuresTotal.WithLabelValues(reason).Inc()
	observability.FromContext(ex.R.Context()).WithField("reason", reason).Info("Token rejected")
	if !mandatory {
		return true
	}
	httputil.WriteUnauthenticated(ex.W)
	return false
}

func authFailureReason(err error) string {
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return "expired"
	case errors.Is(err, token.ErrSignatureInvalid):
		return "signature"
	case errors.Is(err, token.ErrWrongTokenType):
		return "wrong_type"
	default:
		return "malformed"
	}
}

// authzStage evaluates the route's gate list against the resolved principal.
type authzStage struct{}

func (s *authzStage) Name() string { return "authz" }

func (s *authzStage) Process(ex *Exchange) bool {
	p := ex.pipeline

	var ownerID string
	if ex.route.OwnerID != nil {
		ownerID = ex.route.OwnerID(ex.R)
	}

	decision := authz.Evaluate(ex.principal, ex.route.Gates, ownerID)
	if decision.Allowed {
		return true
	}

	p.Metrics.AuthzDenialsTotal.WithLabelValues(string(decision.Reason)).Inc()
	switch decision.Reason {
	case authz.ReasonUnauthenticated:
		httputil.WriteUnauthenticated(ex.W)
	case authz.ReasonNotVerified:
		httputil.WriteNotVerified(ex.W)
	default:
		httputil.WriteForbidden(ex.W)
	}
	return false
}
