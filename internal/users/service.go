package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fleetgate/fleetgate/internal/authz"
	"github.com/fleetgate/fleetgate/internal/devices"
	"github.com/fleetgate/fleetgate/internal/shared"
	"github.com/fleetgate/fleetgate/internal/vehicles"
)

// RepositoryPort defines data access for users and their asset assignments.
type RepositoryPort interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	List(ctx context.Context, filter ListFilter) ([]User, int, error)
	Update(ctx context.Context, u *User) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	ReplaceRoles(ctx context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error
	AssignDevice(ctx context.Context, userID, deviceID uuid.UUID) error
	CountDeviceAssignments(ctx context.Context, deviceID uuid.UUID) (int, error)
	AssignVehicle(ctx context.Context, userID, vehicleID uuid.UUID) error
	CountVehicleAssignments(ctx context.Context, vehicleID uuid.UUID) (int, error)
}

// RoleSource loads role records for assignment validation.
type RoleSource interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]authz.Role, error)
}

// DeviceSource loads device records for assignment validation.
type DeviceSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*devices.Device, error)
}

// VehicleSource loads vehicle records for assignment validation.
type VehicleSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*vehicles.Vehicle, error)
}

// Authorizer is the slice of the decision engine this service consumes.
type Authorizer interface {
	HasPermission(ctx context.Context, userID uuid.UUID, code authz.Code, scopeID *uuid.UUID) (bool, error)
	CanAccessTenant(ctx context.Context, userID, tenantID uuid.UUID) (bool, error)
	CanManageUser(ctx context.Context, managerID, targetUserID uuid.UUID) (bool, error)
	GetAllUserPermissions(ctx context.Context, userID uuid.UUID) (authz.Set, error)
	CheckRoleAssignment(ctx context.Context, actorID uuid.UUID, roles []authz.Role) error
}

// ListFilter narrows user listings.
type ListFilter struct {
	TenantID *uuid.UUID
	Active   *bool
	Search   string
	Limit    int
	Offset   int
}

// Service handles user administration.
type Service struct {
	repo     RepositoryPort
	roles    RoleSource
	devices  DeviceSource
	vehicles VehicleSource
	authz    Authorizer
	audit    *shared.AuditLogger
	logger   *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, roles RoleSource, devs DeviceSource, vehs VehicleSource, az Authorizer, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roles, devices: devs, vehicles: vehs, authz: az, audit: audit, logger: logger}
}

// CreateInput carries new-account fields.
type CreateInput struct {
	Username string
	Email    string
	FullName string
	Phone    string
	Password string
	TenantID *uuid.UUID
}

// Create provisions a new account within the caller's authority.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, input CreateInput) (*User, error) {
	if err := s.requirePermission(ctx, actorID, authz.CodeUserCreate, input.TenantID); err != nil {
		return nil, err
	}

	username := strings.ToLower(strings.TrimSpace(input.Username))
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" || email == "" {
		return nil, fmt.Errorf("%w: username and email required", shared.ErrValidation)
	}
	if len(input.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", shared.ErrValidation)
	}

	exists, err := s.repo.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: username or email already taken", shared.ErrConflict)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		FullName:     strings.TrimSpace(input.FullName),
		Phone:        strings.TrimSpace(input.Phone),
		PasswordHash: string(hash),
		Active:       true,
		TenantID:     input.TenantID,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "user.create", user.ID.String(), map[string]any{"username": user.Username})
	return user, nil
}

// Get fetches a user, enforcing read permission and tenant access. Accounts
// without a tenant are visible only to super admins.
func (s *Service) Get(ctx context.Context, actorID, id uuid.UUID) (*User, error) {
	if err := s.requirePermission(ctx, actorID, authz.CodeUserRead, nil); err != nil {
		return nil, err
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.TenantID == nil {
		ok, err := s.authz.HasPermission(ctx, actorID, authz.CodeSuperAdmin, nil)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: global accounts require super admin", shared.ErrPermissionDenied)
		}
		return user, nil
	}
	ok, err := s.authz.CanAccessTenant(ctx, actorID, *user.TenantID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: user belongs to another tenant", shared.ErrPermissionDenied)
	}
	return user, nil
}

// List returns users matching the filter, scoped by read permission.
func (s *Service) List(ctx context.Context, actorID uuid.UUID, filter ListFilter) ([]User, int, error) {
	if err := s.requirePermission(ctx, actorID, authz.CodeUserRead, filter.TenantID); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, filter)
}

// UpdateInput carries mutable account fields.
type UpdateInput struct {
	Email    string
	FullName string
	Phone    string
	Password string
}

// Update mutates an account. The management rule decides who may touch whom;
// self-edits by non-admins are rejected there.
func (s *Service) Update(ctx context.Context, actorID, id uuid.UUID, input UpdateInput) (*User, error) {
	ok, err := s.authz.CanManageUser(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: cannot manage this user", shared.ErrPermissionDenied)
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if email := strings.ToLower(strings.TrimSpace(input.Email)); email != "" && email != user.Email {
		exists, err := s.repo.ExistsByUsernameOrEmail(ctx, "", email)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: email already taken", shared.ErrConflict)
		}
		user.Email = email
	}
	if input.FullName != "" {
		user.FullName = strings.TrimSpace(input.FullName)
	}
	if input.Phone != "" {
		user.Phone = strings.TrimSpace(input.Phone)
	}
	if input.Password != "" {
		if len(input.Password) < 8 {
			return nil, fmt.Errorf("%w: password must be at least 8 characters", shared.ErrValidation)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = string(hash)
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "user.update", user.ID.String(), nil)
	return user, nil
}

// Deactivate soft-deletes an account. Self-deactivation is refused so a
// tenant cannot lock out its last administrator by accident.
func (s *Service) Deactivate(ctx context.Context, actorID, id uuid.UUID) error {
	if actorID == id {
		return fmt.Errorf("%w: cannot deactivate own account", shared.ErrInvalidState)
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requirePermission(ctx, actorID, authz.CodeUserDelete, user.TenantID); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.deactivate", id.String(), map[string]any{"username": user.Username})
	return nil
}

// AssignRoles replaces the target user's role set. Inactive roles are
// rejected, and the escalation guard decides whether the actor may hand out
// these particular roles.
func (s *Service) AssignRoles(ctx context.Context, actorID, userID uuid.UUID, roleIDs []uuid.UUID) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.requirePermission(ctx, actorID, authz.CodeRoleAssign, user.TenantID); err != nil {
		return err
	}

	roles, err := s.roles.FindByIDs(ctx, roleIDs)
	if err != nil {
		return err
	}
	if len(roles) != len(roleIDs) {
		return fmt.Errorf("%w: one or more roles do not exist", shared.ErrNotFound)
	}
	for _, role := range roles {
		if !role.Active {
			return fmt.Errorf("%w: role %s is inactive", shared.ErrInvalidState, role.Name)
		}
	}
	if err := s.authz.CheckRoleAssignment(ctx, actorID, roles); err != nil {
		return err
	}

	if err := s.repo.ReplaceRoles(ctx, userID, roleIDs); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.assign_roles", userID.String(), map[string]any{"count": len(roleIDs)})
	return nil
}

// AssignDevice links a device to a user. Decommissioned devices cannot be
// assigned, tenants must match, and a device is shared by at most
// MaxUsersPerDevice accounts.
func (s *Service) AssignDevice(ctx context.Context, actorID, userID, deviceID uuid.UUID) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.requirePermission(ctx, actorID, authz.CodeDeviceAssign, user.TenantID); err != nil {
		return err
	}

	device, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if device.Status == devices.StatusDecommissioned {
		return fmt.Errorf("%w: device %s is decommissioned", shared.ErrInvalidState, device.IMEI)
	}
	if !tenantMatch(user.TenantID, device.TenantID) {
		return fmt.Errorf("%w: device belongs to another tenant", shared.ErrPermissionDenied)
	}

	count, err := s.repo.CountDeviceAssignments(ctx, deviceID)
	if err != nil {
		return err
	}
	if count >= MaxUsersPerDevice {
		return fmt.Errorf("%w: device already assigned to %d users", shared.ErrInvalidState, count)
	}

	if err := s.repo.AssignDevice(ctx, userID, deviceID); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.assign_device", userID.String(), map[string]any{"device_id": deviceID.String()})
	return nil
}

// AssignVehicle links a vehicle to a user. Retired vehicles cannot be
// assigned, tenants must match, and a vehicle is shared by at most
// MaxUsersPerVehicle accounts.
func (s *Service) AssignVehicle(ctx context.Context, actorID, userID, vehicleID uuid.UUID) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.requirePermission(ctx, actorID, authz.CodeVehicleAssign, user.TenantID); err != nil {
		return err
	}

	vehicle, err := s.vehicles.GetByID(ctx, vehicleID)
	if err != nil {
		return err
	}
	if vehicle.Status == vehicles.StatusRetired {
		return fmt.Errorf("%w: vehicle %s is retired", shared.ErrInvalidState, vehicle.PlateNumber)
	}
	if !tenantMatch(user.TenantID, vehicle.TenantID) {
		return fmt.Errorf("%w: vehicle belongs to another tenant", shared.ErrPermissionDenied)
	}

	count, err := s.repo.CountVehicleAssignments(ctx, vehicleID)
	if err != nil {
		return err
	}
	if count >= MaxUsersPerVehicle {
		return fmt.Errorf("%w: vehicle already assigned to %d users", shared.ErrInvalidState, count)
	}

	if err := s.repo.AssignVehicle(ctx, userID, vehicleID); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.assign_vehicle", userID.String(), map[string]any{"vehicle_id": vehicleID.String()})
	return nil
}

// Permissions returns the target user's effective permission codes.
func (s *Service) Permissions(ctx context.Context, actorID, userID uuid.UUID) ([]authz.Code, error) {
	if _, err := s.Get(ctx, actorID, userID); err != nil {
		return nil, err
	}
	set, err := s.authz.GetAllUserPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return set.Codes(), nil
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

func tenantMatch(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func (s *Service) record(ctx context.Context, actorID uuid.UUID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "user", EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
