package auth

import (
	"context"

	"github.com/google/uuid"

	"crimesleuth/internal/model"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	ID    uuid.UUID
	Email string
	Role  model.Role
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
