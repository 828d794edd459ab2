package authz

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// ScopeResolver decides whether a scope-requiring permission held by a user
// is satisfied against a target scope id. The default rule is tenant
// equality; installations with fleet or regional hierarchies can plug their
// own resolver, but the tenant-equality base must stay the floor.
type ScopeResolver interface {
	Allows(user *UserGrants, perm *Permission, scopeID uuid.UUID) bool
}

// TenantEqualityScope is the base scope rule: the user's tenant must equal
// the requested scope id.
type TenantEqualityScope struct{}

// Allows implements ScopeResolver.
func (TenantEqualityScope) Allows(user *UserGrants, _ *Permission, scopeID uuid.UUID) bool {
	return user.TenantID != nil && *user.TenantID == scopeID
}

// validateScope applies the scope rules for an already-matched permission:
//   - global users (nil tenant) pass unconditionally; they are platform-level
//     accounts,
//   - unknown or scope-exempt permissions pass,
//   - otherwise the pluggable resolver decides.
//
// A directory failure during the permission lookup denies: the check cannot
// be conclusively resolved, so it fails closed.
func (e *Engine) validateScope(ctx context.Context, user *UserGrants, code Code, scopeID uuid.UUID) bool {
	if user.TenantID == nil {
		return true
	}

	perm, err := e.dir.FindPermissionByCode(ctx, code)
	if err != nil {
		e.logger.Warn("scope permission lookup failed", slog.String("code", string(code)), slog.Any("error", err))
		return false
	}
	if perm == nil || !perm.RequiresScope {
		return true
	}

	return e.scopes.Allows(user, perm, scopeID)
}
