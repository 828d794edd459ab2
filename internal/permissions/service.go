// Package permissions manages the permission catalogue. Records here are the
// raw material the decision engine resolves against; mutating them requires
// the caller to already hold (or outrank) the code being touched.
package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate/internal/authz"
	"github.com/fleetgate/fleetgate/internal/shared"
)

// RepositoryPort defines data access for permission records.
type RepositoryPort interface {
	Create(ctx context.Context, p *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	List(ctx context.Context, filter ListFilter) ([]Record, int, error)
	Update(ctx context.Context, p *Record) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	ExistsByCode(ctx context.Context, code authz.Code) (bool, error)
}

// Authorizer is the slice of the decision engine this service consumes.
type Authorizer interface {
	HasPermission(ctx context.Context, userID uuid.UUID, code authz.Code, scopeID *uuid.UUID) (bool, error)
	CanGrantPermission(ctx context.Context, grantorID uuid.UUID, code authz.Code, targetTenantID *uuid.UUID) (bool, error)
}

// ListFilter narrows permission listings.
type ListFilter struct {
	Category string
	Active   *bool
	Limit    int
	Offset   int
}

// Service handles permission catalogue administration.
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

// CreateInput carries new-permission fields.
type CreateInput struct {
	Code          string
	Name          string
	Description   string
	Category      string
	RequiresScope bool
}

// Create adds a record to the catalogue.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, input CreateInput) (*Record, error) {
	code := authz.NormalizeCode(input.Code)
	if code == "" {
		return nil, fmt.Errorf("%w: permission code required", shared.ErrValidation)
	}
	if err := s.requireGrantable(ctx, actorID, code); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: permission %s already exists", shared.ErrConflict, code)
	}

	record := &Record{
		ID:            uuid.New(),
		Code:          code,
		Name:          strings.TrimSpace(input.Name),
		Description:   strings.TrimSpace(input.Description),
		Category:      strings.TrimSpace(input.Category),
		Active:        true,
		RequiresScope: input.RequiresScope,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "permission.create", record.ID.String(), map[string]any{"code": string(record.Code)})
	return record, nil
}

// Get fetches a record.
func (s *Service) Get(ctx context.Context, actorID, id uuid.UUID) (*Record, error) {
	if err := s.requirePermission(ctx, actorID, authz.CodePermissionRead); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// List returns records matching the filter.
func (s *Service) List(ctx context.Context, actorID uuid.UUID, filter ListFilter) ([]Record, int, error) {
	if err := s.requirePermission(ctx, actorID, authz.CodePermissionRead); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, filter)
}

// UpdateInput carries mutable permission fields. The code itself is
// immutable once created.
type UpdateInput struct {
	Name          string
	Description   string
	Category      string
	Active        *bool
	RequiresScope *bool
}

// Update mutates a record.
func (s *Service) Update(ctx context.Context, actorID, id uuid.UUID, input UpdateInput) (*Record, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireGrantable(ctx, actorID, record.Code); err != nil {
		return nil, err
	}

	if input.Name != "" {
		record.Name = strings.TrimSpace(input.Name)
	}
	if input.Description != "" {
		record.Description = strings.TrimSpace(input.Description)
	}
	if input.Category != "" {
		record.Category = strings.TrimSpace(input.Category)
	}
	if input.Active != nil {
		record.Active = *input.Active
	}
	if input.RequiresScope != nil {
		record.RequiresScope = *input.RequiresScope
	}

	if err := s.repo.Update(ctx, record); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "permission.update", record.ID.String(), map[string]any{"active": record.Active})
	return record, nil
}

// Delete soft-deletes a record. Roles that referenced it lose the grant on
// the next resolution.
func (s *Service) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireGrantable(ctx, actorID, record.Code); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "permission.delete", id.String(), map[string]any{"code": string(record.Code)})
	return nil
}

func (s *Service) requireGrantable(ctx context.Context, actorID uuid.UUID, code authz.Code) error {
	ok, err := s.authz.CanGrantPermission(ctx, actorID, code, nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: cannot administer %s", shared.ErrPermissionDenied, code)
	}
	return nil
}

func (s *Service) requirePermission(ctx context.Context, actorID uuid.UUID, code authz.Code) error {
	ok, err := s.authz.HasPermission(ctx, actorID, code, nil)
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
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "permission", EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
