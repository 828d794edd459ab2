package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate/internal/authz"
	"github.com/fleetgate/fleetgate/internal/shared"
)

// RepositoryPort defines data access for roles.
type RepositoryPort interface {
	Create(ctx context.Context, role *Role) error
	GetByID(ctx context.Context, id uuid.UUID) (*Role, error)
	List(ctx context.Context, filter ListFilter) ([]Role, int, error)
	Update(ctx context.Context, role *Role) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	ExistsByName(ctx context.Context, name string, tenantID *uuid.UUID) (bool, error)
	SetPermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error
	FindPermissionsByIDs(ctx context.Context, ids []uuid.UUID) ([]authz.Permission, error)
}

// Authorizer is the slice of the decision engine this service consumes.
type Authorizer interface {
	HasPermission(ctx context.Context, userID uuid.UUID, code authz.Code, scopeID *uuid.UUID) (bool, error)
	CheckPermissionAttachment(ctx context.Context, actorID uuid.UUID, codes []authz.Code, targetTenantID *uuid.UUID) error
}

// ListFilter narrows role listings.
type ListFilter struct {
	TenantID *uuid.UUID
	Active   *bool
	Limit    int
	Offset   int
}

// Service handles role administration.
type Service struct {
	repo   RepositoryPort
	authz  Authorizer
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, az Authorizer, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, authz: az, audit: audit, logger: logger}
}

// CreateInput carries new-role fields.
type CreateInput struct {
	Name        string
	Description string
	Scope       authz.RoleScope
	TenantID    *uuid.UUID
}

// validateScopeTenant enforces the pairing rule between a role's scope and
// its tenant column.
func validateScopeTenant(scope authz.RoleScope, tenantID *uuid.UUID) error {
	switch scope {
	case authz.ScopeGlobal:
		if tenantID != nil {
			return fmt.Errorf("%w: global roles must not carry a tenant", shared.ErrValidation)
		}
	case authz.ScopeTenant, authz.ScopeFleet, authz.ScopeRegional:
		if tenantID == nil {
			return fmt.Errorf("%w: %s roles require a tenant", shared.ErrValidation, scope)
		}
	default:
		return fmt.Errorf("%w: unknown role scope %q", shared.ErrValidation, scope)
	}
	return nil
}

// Create provisions a new role.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, input CreateInput) (*Role, error) {
	if err := s.requirePermission(ctx, actorID, authz.CodeRoleCreate, input.TenantID); err != nil {
		return nil, err
	}

	name := strings.ToLower(strings.TrimSpace(input.Name))
	if name == "" {
		return nil, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	if err := validateScopeTenant(input.Scope, input.TenantID); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByName(ctx, name, input.TenantID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: role %q already exists", shared.ErrConflict, name)
	}

	role := &Role{
		ID:          uuid.New(),
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Scope:       input.Scope,
		TenantID:    input.TenantID,
		Active:      true,
	}
	if err := s.repo.Create(ctx, role); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "role.create", role.ID.String(), map[string]any{"name": role.Name})
	return role, nil
}

// Get fetches a role.
func (s *Service) Get(ctx context.Context, actorID, id uuid.UUID) (*Role, error) {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requirePermission(ctx, actorID, authz.CodeRoleRead, role.TenantID); err != nil {
		return nil, err
	}
	return role, nil
}

// List returns roles matching the filter.
func (s *Service) List(ctx context.Context, actorID uuid.UUID, filter ListFilter) ([]Role, int, error) {
	if err := s.requirePermission(ctx, actorID, authz.CodeRoleRead, filter.TenantID); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, filter)
}

// UpdateInput carries mutable role fields.
type UpdateInput struct {
	Name        string
	Description string
	Active      *bool
}

// Update mutates a role. Scope and tenant are immutable after creation.
func (s *Service) Update(ctx context.Context, actorID, id uuid.UUID, input UpdateInput) (*Role, error) {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requirePermission(ctx, actorID, authz.CodeRoleUpdate, role.TenantID); err != nil {
		return nil, err
	}

	if name := strings.ToLower(strings.TrimSpace(input.Name)); name != "" && name != role.Name {
		exists, err := s.repo.ExistsByName(ctx, name, role.TenantID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: role %q already exists", shared.ErrConflict, name)
		}
		role.Name = name
	}
	if input.Description != "" {
		role.Description = strings.TrimSpace(input.Description)
	}
	if input.Active != nil {
		role.Active = *input.Active
	}

	if err := s.repo.Update(ctx, role); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "role.update", role.ID.String(), map[string]any{"active": role.Active})
	return role, nil
}

// Delete soft-deletes a role. Grants through it disappear on the next
// resolution since deleted roles never load.
func (s *Service) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requirePermission(ctx, actorID, authz.CodeRoleDelete, role.TenantID); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "role.delete", id.String(), map[string]any{"name": role.Name})
	return nil
}

// SetPermissions replaces the role's permission set. The attachment guard
// requires the actor to hold (or outrank) everything being attached.
func (s *Service) SetPermissions(ctx context.Context, actorID, roleID uuid.UUID, permissionIDs []uuid.UUID) (*Role, error) {
	role, err := s.repo.GetByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if err := s.requirePermission(ctx, actorID, authz.CodeRoleUpdate, role.TenantID); err != nil {
		return nil, err
	}

	perms, err := s.repo.FindPermissionsByIDs(ctx, permissionIDs)
	if err != nil {
		return nil, err
	}
	if len(perms) != len(permissionIDs) {
		return nil, fmt.Errorf("%w: one or more permissions do not exist", shared.ErrNotFound)
	}
	codes := make([]authz.Code, len(perms))
	for i, p := range perms {
		codes[i] = p.Code
	}
	if err := s.authz.CheckPermissionAttachment(ctx, actorID, codes, role.TenantID); err != nil {
		return nil, err
	}

	if err := s.repo.SetPermissions(ctx, roleID, permissionIDs); err != nil {
		return nil, err
	}
	role.Permissions = perms
	s.record(ctx, actorID, "role.set_permissions", roleID.String(), map[string]any{"count": len(permissionIDs)})
	return role, nil
}

func (s *Service) requirePermission(ctx context.Context, actorID uuid.UUID, code authz.Code, scopeID *uuid.UUID) error {
	ok, err := s.authz.HasPermission(ctx, actorID, code, scopeID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s required", shared.ErrPermissionDenied, code)
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID uuid.UUID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "role", EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
