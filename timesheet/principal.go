/*
principal.go - Caller identity

PURPOSE:
  Supplies the principal every operation acts for. Authentication happens
  outside the engine; a missing principal fails with ErrUnauthenticated.

SEE ALSO:
  - api/principal.go: Reads the principal from a request header
  - cmd/server/cmd_admin.go: StaticPrincipal for the week command
*/
package timesheet

import (
	"context"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
)

// PrincipalProvider supplies the identity of the caller. Authentication
// itself happens outside the engine.
type PrincipalProvider interface {
	CurrentPrincipal(ctx context.Context) (generic.PrincipalID, bool)
}

type principalKey struct{}

// WithPrincipal attaches an authenticated principal to ctx.
func WithPrincipal(ctx context.Context, principal generic.PrincipalID) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// ContextPrincipal reads the principal set by WithPrincipal.
type ContextPrincipal struct{}

func (ContextPrincipal) CurrentPrincipal(ctx context.Context) (generic.PrincipalID, bool) {
	p, ok := ctx.Value(principalKey{}).(generic.PrincipalID)
	return p, ok && p != ""
}

// StaticPrincipal always returns the same identity (CLI and tests).
type StaticPrincipal generic.PrincipalID

func (s StaticPrincipal) CurrentPrincipal(context.Context) (generic.PrincipalID, bool) {
	return generic.PrincipalID(s), s != ""
}

func requirePrincipal(ctx context.Context, provider PrincipalProvider) (generic.PrincipalID, error) {
	p, ok := provider.CurrentPrincipal(ctx)
	if !ok {
		return "", generic.ErrUnauthenticated
	}
	return p, nil
}
