package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-signing-secret"

// fakeClock is a movable time source for expiry tests.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestCodec(t *testing.T, opts ...Option) (*Codec, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	codec, err := NewCodec(testSecret, opts...)
	require.NoError(t, err)
	return codec, clock
}

func TestNewCodec_RequiresSecret(t *testing.T) {
	_, err := NewCodec("")
	assert.Error(t, err)

	_, err = NewCodec("   ")
	assert.Error(t, err)
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	codec, _ := newTestCodec(t)

	pair, err := codec.Issue("patient-42", RolePatient, true)
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(pair.AccessToken, ".")), "access token should have three segments")
	assert.Equal(t, 3, len(strings.Split(pair.RefreshToken, ".")), "refresh token should have three segments")

	principal, err := codec.Verify(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "patient-42", principal.Subject)
	assert.Equal(t, RolePatient, principal.Role)
	assert.True(t, principal.Verified)
	assert.Equal(t, pair.AccessExpiresAt.Unix(), principal.ExpiresAt.Unix())
}

func TestIssue_RejectsUnknownRole(t *testing.T) {
	codec, _ := newTestCodec(t)

	_, err := codec.Issue("u1", Role("superuser"), false)
	assert.Error(t, err)

	_, err = codec.Issue("", RolePatient, false)
	assert.Error(t, err)
}

func TestVerify_Expired(t *testing.T) {
	codec, clock := newTestCodec(t, WithAccessTTL(time.Minute))

	pair, err := codec.Issue("doctor-7", RoleDoctor, true)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	_, err = codec.Verify(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired, "expired token must fail with ErrTokenExpired, not another kind")
}

func TestVerify_SignatureInvalid(t *testing.T) {
	codec, _ := newTestCodec(t)
	other, err := NewCodec("a-different-secret", WithClock(codec.now))
	require.NoError(t, err)

	pair, err := other.Issue("patient-1", RolePatient, false)
	require.NoError(t, err)

	_, err = codec.Verify(pair.AccessToken)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerify_Malformed(t *testing.T) {
	codec, _ := newTestCodec(t)

	for _, raw := range []string{"", "garbage", "a.b", "a.b.c.d", "not.a.jwt"} {
		_, err := codec.Verify(raw)
		assert.ErrorIs(t, err, ErrTokenMalformed, "input %q", raw)
	}
}

func TestVerify_RefreshTokenRejected(t *testing.T) {
	codec, _ := newTestCodec(t)

	pair, err := codec.Issue("admin-1", RoleAdmin, true)
	require.NoError(t, err)

	_, err = codec.Verify(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestVerify_SubjectResolver(t *testing.T) {
	known := map[string]bool{"patient-9": true}
	codec, _ := newTestCodec(t, WithSubjectResolver(func(subject string) bool {
		return known[subject]
	}))

	pair, err := codec.Issue("patient-9", RolePatient, true)
	require.NoError(t, err)
	_, err = codec.Verify(pair.AccessToken)
	assert.NoError(t, err)

	gone, err := codec.Issue("patient-10", RolePatient, true)
	require.NoError(t, err)
	_, err = codec.Verify(gone.AccessToken)
	assert.ErrorIs(t, err, ErrSubjectNotFound)
	assert.NotErrorIs(t, err, ErrSignatureInvalid, "subject lookup failure must stay distinct from signature failure")
}

func TestRefresh_ReissuesBothTokens(t *testing.T) {
	codec, clock := newTestCodec(t)

	pair, err := codec.Issue("doctor-3", RoleDoctor, true)
	require.NoError(t, err)

	clock.Advance(time.Minute)

	next, err := codec.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, next.AccessToken)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	principal, err := codec.Verify(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "doctor-3", principal.Subject)
	assert.Equal(t, RoleDoctor, principal.Role)
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	codec, _ := newTestCodec(t)

	pair, err := codec.Issue("patient-5", RolePatient, false)
	require.NoError(t, err)

	_, err = codec.Refresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefresh_RejectsExpiredRefreshToken(t *testing.T) {
	codec, clock := newTestCodec(t, WithRefreshTTL(time.Hour))

	pair, err := codec.Issue("patient-5", RolePatient, false)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	_, err = codec.Refresh(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestPrincipal_Is(t *testing.T) {
	p := &Principal{Subject: "d1", Role: RoleDoctor}
	assert.True(t, p.Is(RoleDoctor, RoleAdmin))
	assert.False(t, p.Is(RoleAdmin))

	var nilPrincipal *Principal
	assert.False(t, nilPrincipal.Is(RolePatient))
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"patient", RolePatient, false},
		{"doctor", RoleDoctor, false},
		{"admin", RoleAdmin, false},
		{"", "", true},
		{"root", "", true},
		{"Patient", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestErrorsAreDistinct(t *testing.T) {
	kinds := []error{
		ErrTokenExpired, ErrTokenMalformed, ErrSignatureInvalid,
		ErrWrongTokenType, ErrSubjectNotFound, ErrInvalidRefreshToken,
	}
	for i, a := range kinds {
		for j, b := range kinds {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b), "%v should not match %v", a, b)
		}
	}
}
