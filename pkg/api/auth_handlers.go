package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/caregate/caregate/pkg/async"
	"github.com/caregate/caregate/pkg/audit"
	"github.com/caregate/caregate/pkg/contextkeys"
	"github.com/caregate/caregate/pkg/httputil"
	"github.com/caregate/caregate/pkg/observability"
	"github.com/caregate/caregate/pkg/ratelimit"
	"github.com/caregate/caregate/pkg/token"
)

const auditWriteTimeout = 5 * time.Second

// AuthHandlers implements login, refresh and logout.
type AuthHandlers struct {
	codec       *token.Codec
	credentials CredentialStore
	bruteForce  *ratelimit.BruteForce
	metrics     *observability.Metrics
}

// NewAuthHandlers creates the authentication handler group.
func NewAuthHandlers(codec *token.Codec, credentials CredentialStore, bruteForce *ratelimit.BruteForce, metrics *observability.Metrics) *AuthHandlers {
	return &AuthHandlers{
		codec:       codec,
		credentials: credentials,
		bruteForce:  bruteForce,
		metrics:     metrics,
	}
}

type tokenResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// login handles POST /auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "email and password are required")
		return
	}

	ctx := r.Context()
	ip := contextkeys.GetClientIP(ctx)
	identity := ip + "|" + strings.ToLower(req.Email)

	acct, err := h.credentials.Lookup(ctx, req.Email)
	if err != nil || !VerifyPassword(acct.PasswordHash, req.Password) {
		h.recordFailure(ctx, r, identity, ip)
		// Unknown email and wrong password are indistinguishable to the
		// caller.
		httputil.WriteUnauthenticated(w)
		return
	}

	// A successful login does not clear earlier failures; they count
	// against the brute-force threshold until their TTL expires.
	pair, err := h.codec.Issue(acct.ID, acct.Role, acct.Verified)
	if err != nil {
		observability.FromContext(ctx).WithError(err).Error("Token issue failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteData(w, r, http.StatusOK, tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

// recordFailure counts the failed attempt and blocks the source IP when it
// crosses the threshold.
func (h *AuthHandlers) recordFailure(ctx context.Context, r *http.Request, identity, ip string) {
	triggered, err := h.bruteForce.TrackFailedAttempt(ctx, identity, ip)
	if err != nil {
		observability.FromContext(ctx).WithError(err).Warn("Brute force tracking failed")
		return
	}
	if !triggered {
		return
	}

	h.metrics.BruteForceBlocksTotal.Inc()
	observability.FromContext(ctx).WithField("ip", ip).Warn("IP blocked for repeated failed logins")

	rec := audit.NewRecord(ctx, r, audit.ActionSecurityBruteForceBlock, audit.OutcomeDenied)
	rec.Resource = audit.ResourceIP
	rec.ResourceID = ip
	sink := audit.FromContext(ctx)
	async.SafeGo(context.WithoutCancel(ctx), auditWriteTimeout, "brute force audit", func(writeCtx context.Context) error {
		return sink.Log(writeCtx, rec)
	})
}

// refresh handles POST /auth/refresh
func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.WriteBadRequest(w, "refreshToken is required")
		return
	}

	pair, err := h.codec.Refresh(req.RefreshToken)
	if err != nil {
		if !errors.Is(err, token.ErrInvalidRefreshToken) {
			observability.FromContext(r.Context()).WithError(err).Error("Refresh failed unexpectedly")
		}
		httputil.WriteUnauthenticated(w)
		return
	}

	httputil.WriteData(w, r, http.StatusOK, tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

// logout handles POST /auth/logout. Tokens are stateless, so logout is a
// client-side discard; the request exists for the audit trail.
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, r, http.StatusOK, map[string]string{"status": "logged out"})
}
