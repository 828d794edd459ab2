package shared

import (
	"context"

	"github.com/google/uuid"
)

// Principal is the authenticated caller as established by the identity layer.
// TenantID is nil for global (platform-level) accounts.
type Principal struct {
	UserID   uuid.UUID
	TenantID *uuid.UUID
	TokenID  string
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context, nil when absent.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
