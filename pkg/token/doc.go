// Package token issues and verifies the signed session tokens used by the
// patient portal.
//
// Tokens are JWTs (HS256) carrying the subject id, portal role, verification
// flag and a type discriminator separating short-lived access tokens from
// long-lived refresh tokens. Verification is pure computation: the codec
// never performs I/O, and an optional SubjectResolver callback lets the
// caller reject tokens for subjects that no longer exist without the codec
// touching storage.
//
// Failures are always typed sentinel errors (ErrTokenExpired,
// ErrTokenMalformed, ErrSignatureInvalid, ...) so callers can log the precise
// cause while surfacing a generic 401 to clients.
//
// Example:
//
//	codec, _ := token.NewCodec(secret, token.WithIssuer("caregate"))
//	pair, _ := codec.Issue("patient-42", token.RolePatient, true)
//	principal, err := codec.Verify(pair.AccessToken)
package token
