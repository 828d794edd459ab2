package devices

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate/internal/authz"
	"github.com/fleetgate/fleetgate/internal/shared"
)

// RepositoryPort defines data access for devices.
type RepositoryPort interface {
	Create(ctx context.Context, d *Device) error
	GetByID(ctx context.Context, id uuid.UUID) (*Device, error)
	List(ctx context.Context, filter ListFilter) ([]Device, int, error)
	Update(ctx context.Context, d *Device) error
	Delete(ctx context.Context, id uuid.UUID) error
	ExistsByIMEI(ctx context.Context, imei string) (bool, error)
}

// Authorizer is the slice of the decision engine this service consumes.
type Authorizer interface {
	HasPermission(ctx context.Context, userID uuid.UUID, code authz.Code, scopeID *uuid.UUID) (bool, error)
	CanAccessTenant(ctx context.Context, userID, tenantID uuid.UUID) (bool, error)
}

// ListFilter narrows device listings.
type ListFilter struct {
	TenantID *uuid.UUID
	Status   *Status
	IMEI     string
	Limit    int
	Offset   int
}

// Service handles device business logic.
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

// CreateInput carries device registration fields.
type CreateInput struct {
	IMEI            string
	Model           string
	FirmwareVersion string
	SIMNumber       string
	TenantID        *uuid.UUID
	RegisteredBySMS bool
	InstallerPhone  string
}

// Create registers a new device within the caller's authority.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, input CreateInput) (*Device, error) {
	if err := s.requirePermission(ctx, actorID, authz.CodeDeviceRegister, input.TenantID); err != nil {
		return nil, err
	}

	imei := strings.TrimSpace(input.IMEI)
	if imei == "" {
		return nil, fmt.Errorf("%w: imei required", shared.ErrValidation)
	}
	exists, err := s.repo.ExistsByIMEI(ctx, imei)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: device with IMEI %s already exists", shared.ErrConflict, imei)
	}

	device := &Device{
		ID:              uuid.New(),
		IMEI:            imei,
		Model:           strings.TrimSpace(input.Model),
		FirmwareVersion: strings.TrimSpace(input.FirmwareVersion),
		SIMNumber:       strings.TrimSpace(input.SIMNumber),
		Status:          StatusRegistered,
		TenantID:        input.TenantID,
		RegisteredBySMS: input.RegisteredBySMS,
		InstallerPhone:  strings.TrimSpace(input.InstallerPhone),
	}
	if err := s.repo.Create(ctx, device); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "device.register", device.ID.String(), map[string]any{"imei": device.IMEI})
	return device, nil
}

// Get fetches a device, enforcing read permission and tenant access.
func (s *Service) Get(ctx context.Context, actorID, id uuid.UUID) (*Device, error) {
	if err := s.requirePermission(ctx, actorID, authz.CodeDeviceRead, nil); err != nil {
		return nil, err
	}
	device, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if device.TenantID != nil {
		ok, err := s.authz.CanAccessTenant(ctx, actorID, *device.TenantID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: device belongs to another tenant", shared.ErrPermissionDenied)
		}
	}
	return device, nil
}

// List returns devices matching the filter, scoped by read permission.
func (s *Service) List(ctx context.Context, actorID uuid.UUID, filter ListFilter) ([]Device, int, error) {
	if err := s.requirePermission(ctx, actorID, authz.CodeDeviceRead, filter.TenantID); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, filter)
}

// UpdateInput carries mutable device fields.
type UpdateInput struct {
	IMEI            string
	Model           string
	FirmwareVersion string
	SIMNumber       string
	Status          Status
	InstallerPhone  string
}

// Update mutates a device record.
func (s *Service) Update(ctx context.Context, actorID, id uuid.UUID, input UpdateInput) (*Device, error) {
	device, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requirePermission(ctx, actorID, authz.CodeDeviceUpdate, device.TenantID); err != nil {
		return nil, err
	}

	imei := strings.TrimSpace(input.IMEI)
	if imei != "" && imei != device.IMEI {
		exists, err := s.repo.ExistsByIMEI(ctx, imei)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: device with IMEI %s already exists", shared.ErrConflict, imei)
		}
		device.IMEI = imei
	}
	if input.Model != "" {
		device.Model = strings.TrimSpace(input.Model)
	}
	if input.FirmwareVersion != "" {
		device.FirmwareVersion = strings.TrimSpace(input.FirmwareVersion)
	}
	if input.SIMNumber != "" {
		device.SIMNumber = strings.TrimSpace(input.SIMNumber)
	}
	if input.InstallerPhone != "" {
		device.InstallerPhone = strings.TrimSpace(input.InstallerPhone)
	}
	if input.Status != "" {
		device.Status = input.Status
	}

	if err := s.repo.Update(ctx, device); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "device.update", device.ID.String(), map[string]any{"status": string(device.Status)})
	return device, nil
}

// Delete removes a device record.
func (s *Service) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	device, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requirePermission(ctx, actorID, authz.CodeDeviceDelete, device.TenantID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "device.delete", id.String(), map[string]any{"imei": device.IMEI})
	return nil
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
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "device", EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
