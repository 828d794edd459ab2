package vehicles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate/internal/authz"
	"github.com/fleetgate/fleetgate/internal/shared"
)

// RepositoryPort defines data access for vehicles.
type RepositoryPort interface {
	Create(ctx context.Context, v *Vehicle) error
	GetByID(ctx context.Context, id uuid.UUID) (*Vehicle, error)
	List(ctx context.Context, filter ListFilter) ([]Vehicle, int, error)
	Update(ctx context.Context, v *Vehicle) error
	Delete(ctx context.Context, id uuid.UUID) error
	ExistsByPlateOrVIN(ctx context.Context, plate, vin string) (bool, error)
}

// Authorizer is the slice of the decision engine this service consumes.
type Authorizer interface {
	HasPermission(ctx context.Context, userID uuid.UUID, code authz.Code, scopeID *uuid.UUID) (bool, error)
	CanAccessTenant(ctx context.Context, userID, tenantID uuid.UUID) (bool, error)
}

// ListFilter narrows vehicle listings.
type ListFilter struct {
	TenantID *uuid.UUID
	Status   *Status
	Type     *VehicleType
	Limit    int
	Offset   int
}

// Service handles vehicle business logic.
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

// CreateInput carries vehicle registration fields.
type CreateInput struct {
	PlateNumber string
	VIN         string
	Make        string
	Model       string
	Year        int
	Type        VehicleType
	TenantID    *uuid.UUID
	OdometerKM  float64
}

// Create registers a new vehicle within the caller's authority.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, input CreateInput) (*Vehicle, error) {
	if err := s.requirePermission(ctx, actorID, authz.CodeVehicleCreate, input.TenantID); err != nil {
		return nil, err
	}

	plate := strings.ToUpper(strings.TrimSpace(input.PlateNumber))
	vin := strings.ToUpper(strings.TrimSpace(input.VIN))
	if plate == "" {
		return nil, fmt.Errorf("%w: plate number required", shared.ErrValidation)
	}
	exists, err := s.repo.ExistsByPlateOrVIN(ctx, plate, vin)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: vehicle with plate %s or VIN %s already exists", shared.ErrConflict, plate, vin)
	}

	vtype := input.Type
	if vtype == "" {
		vtype = TypeOther
	}
	vehicle := &Vehicle{
		ID:          uuid.New(),
		PlateNumber: plate,
		VIN:         vin,
		Make:        strings.TrimSpace(input.Make),
		Model:       strings.TrimSpace(input.Model),
		Year:        input.Year,
		Type:        vtype,
		Status:      StatusActive,
		TenantID:    input.TenantID,
		OdometerKM:  input.OdometerKM,
	}
	if err := s.repo.Create(ctx, vehicle); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "vehicle.create", vehicle.ID.String(), map[string]any{"plate": vehicle.PlateNumber})
	return vehicle, nil
}

// Get fetches a vehicle, enforcing read permission and tenant access.
func (s *Service) Get(ctx context.Context, actorID, id uuid.UUID) (*Vehicle, error) {
	if err := s.requirePermission(ctx, actorID, authz.CodeVehicleRead, nil); err != nil {
		return nil, err
	}
	vehicle, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if vehicle.TenantID != nil {
		ok, err := s.authz.CanAccessTenant(ctx, actorID, *vehicle.TenantID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: vehicle belongs to another tenant", shared.ErrPermissionDenied)
		}
	}
	return vehicle, nil
}

// List returns vehicles matching the filter, scoped by read permission.
func (s *Service) List(ctx context.Context, actorID uuid.UUID, filter ListFilter) ([]Vehicle, int, error) {
	if err := s.requirePermission(ctx, actorID, authz.CodeVehicleRead, filter.TenantID); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, filter)
}

// UpdateInput carries mutable vehicle fields. Zero values leave the
// corresponding field untouched.
type UpdateInput struct {
	PlateNumber string
	VIN         string
	Make        string
	Model       string
	Year        int
	Type        VehicleType
	Status      Status
	OdometerKM  *float64
}

// Update mutates a vehicle record.
func (s *Service) Update(ctx context.Context, actorID, id uuid.UUID, input UpdateInput) (*Vehicle, error) {
	vehicle, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requirePermission(ctx, actorID, authz.CodeVehicleUpdate, vehicle.TenantID); err != nil {
		return nil, err
	}

	plate := strings.ToUpper(strings.TrimSpace(input.PlateNumber))
	vin := strings.ToUpper(strings.TrimSpace(input.VIN))
	if (plate != "" && plate != vehicle.PlateNumber) || (vin != "" && vin != vehicle.VIN) {
		checkPlate := vehicle.PlateNumber
		if plate != "" {
			checkPlate = plate
		}
		checkVIN := vehicle.VIN
		if vin != "" {
			checkVIN = vin
		}
		exists, err := s.repo.ExistsByPlateOrVIN(ctx, checkPlate, checkVIN)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: vehicle with plate %s or VIN %s already exists", shared.ErrConflict, checkPlate, checkVIN)
		}
		vehicle.PlateNumber = checkPlate
		vehicle.VIN = checkVIN
	}
	if input.Make != "" {
		vehicle.Make = strings.TrimSpace(input.Make)
	}
	if input.Model != "" {
		vehicle.Model = strings.TrimSpace(input.Model)
	}
	if input.Year != 0 {
		vehicle.Year = input.Year
	}
	if input.Type != "" {
		vehicle.Type = input.Type
	}
	if input.Status != "" {
		vehicle.Status = input.Status
	}
	if input.OdometerKM != nil {
		vehicle.OdometerKM = *input.OdometerKM
	}

	if err := s.repo.Update(ctx, vehicle); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "vehicle.update", vehicle.ID.String(), map[string]any{"status": string(vehicle.Status)})
	return vehicle, nil
}

// Delete removes a vehicle record.
func (s *Service) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	vehicle, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requirePermission(ctx, actorID, authz.CodeVehicleDelete, vehicle.TenantID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "vehicle.delete", id.String(), map[string]any{"plate": vehicle.PlateNumber})
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
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "vehicle", EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
