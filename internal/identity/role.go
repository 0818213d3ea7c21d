// Package identity holds the caller-supplied role labels. Nothing here
// authenticates anyone; the presentation layer owns identity verification.
package identity

import (
	"context"
	"strings"

	"beaconhealth.org/internal/apperr"
)

type Role string

const (
	Patient  Role = "patient"
	Provider Role = "provider"
	Admin    Role = "admin"
)

// ParseRole normalises a role label and rejects unknown values.
func ParseRole(field, raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch r {
	case Patient, Provider, Admin:
		return r, nil
	case "":
		return "", apperr.Invalid(field, "is required")
	default:
		return "", apperr.Invalid(field, "unknown role %q", raw)
	}
}

// Actor is the explicit identity attached to a call.
type Actor struct {
	Role Role
	ID   string
}

func (a Actor) IsZero() bool { return a.Role == "" && a.ID == "" }

type ctxKey struct{}

// ContextWithActor attaches the caller label to ctx. Zero actors are not stored.
func ContextWithActor(ctx context.Context, a Actor) context.Context {
	if a.IsZero() {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, a)
}

// ActorFromContext returns the caller label set by ContextWithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
