package token

import (
	"fmt"
	"time"
)

// Role is the portal role embedded in every token.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Valid reports whether the role is one of the three portal roles.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts a claim string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("token: unknown role %q", s)
	}
	return r, nil
}

// Principal is the identity resolved from a verified token. It lives for the
// duration of one request and is never persisted.
type Principal struct {
	Subject   string
	Role      Role
	Verified  bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Is reports whether the principal holds any of the given roles.
func (p *Principal) Is(roles ...Role) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}
