// Package authz decides whether a principal may perform a request.
//
// A route declares an ordered list of gates; every gate must allow the
// request (logical AND). The only disjunction lives inside OwnerOrRole,
// which admits the resource owner or any of the listed roles. Evaluation is
// a pure function over the principal and the caller-supplied resource owner;
// this package never touches storage.
package authz

import (
	"github.com/caregate/caregate/pkg/token"
)

// Reason explains a denial.
type Reason string

const (
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonForbidden       Reason = "forbidden"
	ReasonNotVerified     Reason = "not_verified"
)

// Decision is the outcome of evaluating a gate list.
type Decision struct {
	Allowed bool
	Reason  Reason
}

var allow = Decision{Allowed: true}

func deny(r Reason) Decision { return Decision{Reason: r} }

// GateKind identifies the rule a gate applies.
type GateKind int

const (
	// GatePublic always allows, principal or not.
	GatePublic GateKind = iota
	// GateOptional always allows; the principal is attached when resolvable
	// and absent otherwise.
	GateOptional
	// GateAuthenticated requires a principal resolved from a valid token.
	GateAuthenticated
	// GateRole requires an authenticated principal holding one of the roles.
	GateRole
	// GateOwnerOrRole admits the resource owner or any of the listed roles.
	GateOwnerOrRole
	// GateVerifiedOnly additionally requires a verified account.
	GateVerifiedOnly
)

// Gate is a single authorization rule.
type Gate struct {
	Kind  GateKind
	Roles []token.Role
}

// Convenience constructors mirroring route declarations.

func Public() Gate        { return Gate{Kind: GatePublic} }
func Optional() Gate      { return Gate{Kind: GateOptional} }
func Authenticated() Gate { return Gate{Kind: GateAuthenticated} }
func VerifiedOnly() Gate  { return Gate{Kind: GateVerifiedOnly} }

func Role(roles ...token.Role) Gate {
	return Gate{Kind: GateRole, Roles: roles}
}

func OwnerOrRole(roles ...token.Role) Gate {
	return Gate{Kind: GateOwnerOrRole, Roles: roles}
}

// RequiresPrincipal reports whether any gate in the list needs a resolved
// principal. Used by the pipeline to decide between mandatory and optional
// credential resolution.
func RequiresPrincipal(gates []Gate) bool {
	for _, g := range gates {
		switch g.Kind {
		case GateAuthenticated, GateRole, GateOwnerOrRole, GateVerifiedOnly:
			return true
		}
	}
	return false
}

// Evaluate runs the gate list against the principal. principal may be nil
// (unauthenticated); ownerID may be empty when the route has no owned
// resource. The first failing gate short-circuits.
func Evaluate(principal *token.Principal, gates []Gate, ownerID string) Decision {
	for _, g := range gates {
		if d := evaluateGate(principal, g, ownerID); !d.Allowed {
			return d
		}
	}
	return allow
}

func evaluateGate(principal *token.Principal, g Gate, ownerID string) Decision {
	switch g.Kind {
	case GatePublic, GateOptional:
		return allow

	case GateAuthenticated:
		if principal == nil {
			return deny(ReasonUnauthenticated)
		}
		return allow

	case GateRole:
		if principal == nil {
			return deny(ReasonUnauthenticated)
		}
		if !principal.Is(g.Roles...) {
			return deny(ReasonForbidden)
		}
		return allow

	case GateOwnerOrRole:
		if principal == nil {
			return deny(ReasonUnauthenticated)
		}
		if ownerID != "" && principal.Subject == ownerID {
			return allow
		}
		if principal.Is(g.Roles...) {
			return allow
		}
		return deny(ReasonForbidden)

	case GateVerifiedOnly:
		if principal == nil {
			return deny(ReasonUnauthenticated)
		}
		if !principal.Verified {
			return deny(ReasonNotVerified)
		}
		return allow
	}
	// Unknown gate kinds deny rather than silently allow.
	return deny(ReasonForbidden)
}
