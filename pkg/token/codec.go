package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 14 * 24 * time.Hour
	defaultIssuer     = "caregate"
)

// Kind discriminates access tokens from refresh tokens so one can never be
// substituted for the other.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	ErrTokenExpired        = errors.New("token: expired")
	ErrTokenMalformed      = errors.New("token: malformed")
	ErrSignatureInvalid    = errors.New("token: signature invalid")
	ErrWrongTokenType      = errors.New("token: wrong token type")
	ErrSubjectNotFound     = errors.New("token: subject not found")
	ErrInvalidRefreshToken = errors.New("token: invalid refresh token")
)

// SubjectResolver reports whether a subject id is still known to the caller.
// It is supplied by the host application; the codec itself never queries
// storage.
type SubjectResolver func(subject string) bool

// claims is the JWT payload: {sub, role, verified, iat, exp, typ}.
type claims struct {
	Role     string `json:"role"`
	Verified bool   `json:"verified"`
	Kind     string `json:"typ"`
	jwt.RegisteredClaims
}

// Pair holds a freshly issued access/refresh token pair.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Codec signs and verifies session tokens.
type Codec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	resolver   SubjectResolver
}

// Option configures Codec behavior.
type Option func(*Codec) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(c *Codec) error {
		if strings.TrimSpace(issuer) != "" {
			c.issuer = strings.TrimSpace(issuer)
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(c *Codec) error {
		if ttl > 0 {
			c.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(c *Codec) error {
		if ttl > 0 {
			c.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(c *Codec) error {
		if fn != nil {
			c.now = fn
		}
		return nil
	}
}

// WithSubjectResolver installs a callback consulted after signature and
// expiry checks; unknown subjects fail verification with ErrSubjectNotFound.
func WithSubjectResolver(fn SubjectResolver) Option {
	return func(c *Codec) error {
		c.resolver = fn
		return nil
	}
}

// NewCodec constructs a Codec signing with the given HMAC secret.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token: signing secret is required")
	}
	c := &Codec{
		secret:     []byte(secret),
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Issue produces a signed access/refresh token pair for the subject.
func (c *Codec) Issue(subject string, role Role, verified bool) (Pair, error) {
	if strings.TrimSpace(subject) == "" {
		return Pair{}, errors.New("token: subject is required")
	}
	if !role.Valid() {
		return Pair{}, fmt.Errorf("token: unknown role %q", role)
	}

	now := c.now()
	access, accessExp, err := c.sign(subject, role, verified, KindAccess, now, c.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := c.sign(subject, role, verified, KindRefresh, now, c.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Verify validates an access token and returns the embedded Principal.
// Signature and expiry are checked before any claim is trusted.
func (c *Codec) Verify(raw string) (*Principal, error) {
	return c.verify(raw, KindAccess)
}

// Refresh validates a refresh token and re-issues both tokens. Any failure,
// including presenting an access token here, surfaces as
// ErrInvalidRefreshToken.
func (c *Codec) Refresh(refreshToken string) (Pair, error) {
	principal, err := c.verify(refreshToken, KindRefresh)
	if err != nil {
		return Pair{}, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}
	return c.Issue(principal.Subject, principal.Role, principal.Verified)
}

func (c *Codec) sign(subject string, role Role, verified bool, kind Kind, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	cl := claims{
		Role:     string(role),
		Verified: verified,
		Kind:     string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, exp, nil
}

func (c *Codec) verify(raw string, kind Kind) (*Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenMalformed
	}

	var cl claims
	parsed, err := jwt.ParseWithClaims(raw, &cl, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}
	if !parsed.Valid {
		return nil, ErrSignatureInvalid
	}

	if Kind(cl.Kind) != kind {
		return nil, ErrWrongTokenType
	}
	role, err := ParseRole(cl.Role)
	if err != nil {
		return nil, ErrTokenMalformed
	}
	if cl.Subject == "" {
		return nil, ErrTokenMalformed
	}
	if c.resolver != nil && !c.resolver(cl.Subject) {
		return nil, ErrSubjectNotFound
	}

	p := &Principal{
		Subject:  cl.Subject,
		Role:     role,
		Verified: cl.Verified,
	}
	if cl.IssuedAt != nil {
		p.IssuedAt = cl.IssuedAt.Time
	}
	if cl.ExpiresAt != nil {
		p.ExpiresAt = cl.ExpiresAt.Time
	}
	return p, nil
}

// mapJWTError translates jwt/v5 parse failures into this package's sentinel
// errors. Expiry is checked for first so an expired token never surfaces as
// malformed.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrSignatureInvalid
	default:
		return ErrTokenMalformed
	}
}
