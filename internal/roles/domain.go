package roles

import (
	"time"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate/internal/authz"
)

// Role is the administrative view of a role record.
type Role struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Scope       authz.RoleScope   `json:"scope"`
	TenantID    *uuid.UUID        `json:"tenant_id,omitempty"`
	Active      bool              `json:"active"`
	Permissions []authz.Permission `json:"permissions,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	DeletedAt   *time.Time        `json:"-"`
}

// Grantable converts to the decision engine's role shape for guard checks.
func (r Role) Grantable() authz.Role {
	return authz.Role{
		ID:          r.ID,
		Name:        r.Name,
		Active:      r.Active,
		TenantID:    r.TenantID,
		Scope:       r.Scope,
		Permissions: r.Permissions,
	}
}
