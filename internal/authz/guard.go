package authz

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate/internal/shared"
)

// Escalation guard: inline checks the assignment flows run before mutating
// role membership or permission attachments. Each returns nil when the actor
// has the authority, shared.ErrPermissionDenied otherwise, and propagates
// directory failures unchanged.

// CheckRoleAssignment verifies the actor may assign every role in the set:
// roles carrying SUPER_ADMIN demand a SUPER_ADMIN actor, and a role scoped to
// another tenant demands SUPER_ADMIN too.
func (e *Engine) CheckRoleAssignment(ctx context.Context, actorID uuid.UUID, roles []Role) error {
	super, err := e.hasPermission(ctx, actorID, CodeSuperAdmin, nil)
	if err != nil {
		return err
	}
	if super {
		return nil
	}

	for _, role := range roles {
		if role.CarriesSuperAdmin() {
			return fmt.Errorf("%w: role %q carries %s", shared.ErrPermissionDenied, role.Name, CodeSuperAdmin)
		}
	}

	actor, err := e.resolver.grants(ctx, actorID)
	if err != nil {
		return err
	}
	if actor == nil {
		return fmt.Errorf("%w: unknown actor", shared.ErrPermissionDenied)
	}
	for _, role := range roles {
		if role.TenantID == nil || actor.TenantID == nil || *role.TenantID != *actor.TenantID {
			return fmt.Errorf("%w: role %q belongs to another tenant", shared.ErrPermissionDenied, role.Name)
		}
	}
	return nil
}

// CheckPermissionAttachment verifies the actor may attach every listed code
// within the target tenant. Run before creating permission records or
// changing a role's permission set.
func (e *Engine) CheckPermissionAttachment(ctx context.Context, actorID uuid.UUID, codes []Code, targetTenantID *uuid.UUID) error {
	for _, code := range codes {
		ok, err := e.canGrantPermission(ctx, actorID, code, targetTenantID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: cannot grant %s", shared.ErrPermissionDenied, code)
		}
	}
	return nil
}
