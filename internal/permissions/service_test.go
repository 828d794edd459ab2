package permissions_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fleetgate/fleetgate/internal/authz"
	"github.com/fleetgate/fleetgate/internal/permissions"
	"github.com/fleetgate/fleetgate/internal/shared"
	_ "github.com/fleetgate/fleetgate/testing"
)

type memoryDirectory struct {
	users map[uuid.UUID]*authz.UserGrants
	perms map[authz.Code]*authz.Permission
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{
		users: map[uuid.UUID]*authz.UserGrants{},
		perms: map[authz.Code]*authz.Permission{},
	}
}

func (d *memoryDirectory) FindUserWithGrants(_ context.Context, id uuid.UUID) (*authz.UserGrants, error) {
	return d.users[id], nil
}

func (d *memoryDirectory) FindPermissionByCode(_ context.Context, code authz.Code) (*authz.Permission, error) {
	return d.perms[code], nil
}

func (d *memoryDirectory) addUser(tenantID *uuid.UUID, codes ...authz.Code) uuid.UUID {
	id := uuid.New()
	perms := make([]authz.Permission, 0, len(codes))
	for _, c := range codes {
		p := authz.Permission{ID: uuid.New(), Code: c, Active: true}
		d.perms[c] = &p
		perms = append(perms, p)
	}
	d.users[id] = &authz.UserGrants{
		ID:       id,
		TenantID: tenantID,
		Active:   true,
		Roles: []authz.Role{{
			ID:          uuid.New(),
			Name:        "fixture",
			Active:      true,
			TenantID:    tenantID,
			Scope:       authz.ScopeTenant,
			Permissions: perms,
		}},
	}
	return id
}

type memoryPermRepo struct {
	records map[uuid.UUID]*permissions.Record
}

func newMemoryPermRepo() *memoryPermRepo {
	return &memoryPermRepo{records: map[uuid.UUID]*permissions.Record{}}
}

func (r *memoryPermRepo) Create(_ context.Context, p *permissions.Record) error {
	cp := *p
	r.records[p.ID] = &cp
	return nil
}

func (r *memoryPermRepo) GetByID(_ context.Context, id uuid.UUID) (*permissions.Record, error) {
	p, ok := r.records[id]
	if !ok || p.DeletedAt != nil {
		return nil, shared.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryPermRepo) List(_ context.Context, filter permissions.ListFilter) ([]permissions.Record, int, error) {
	out := []permissions.Record{}
	for _, p := range r.records {
		if p.DeletedAt != nil {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (r *memoryPermRepo) Update(_ context.Context, p *permissions.Record) error {
	if _, ok := r.records[p.ID]; !ok {
		return shared.ErrNotFound
	}
	cp := *p
	r.records[p.ID] = &cp
	return nil
}

func (r *memoryPermRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	p, ok := r.records[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.Active = false
	now := time.Now()
	p.DeletedAt = &now
	return nil
}

func (r *memoryPermRepo) ExistsByCode(_ context.Context, code authz.Code) (bool, error) {
	for _, p := range r.records {
		if p.DeletedAt == nil && p.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func newService(t *testing.T) (*permissions.Service, *memoryDirectory, *memoryPermRepo) {
	t.Helper()
	dir := newMemoryDirectory()
	repo := newMemoryPermRepo()
	engine := authz.NewEngine(dir, slog.Default(), authz.EngineConfig{})
	svc := permissions.NewService(repo, engine, nil, slog.Default())
	return svc, dir, repo
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func TestCreateNormalizesCode(t *testing.T) {
	svc, dir, _ := newService(t)
	super := dir.addUser(nil, authz.CodeSuperAdmin)

	record, err := svc.Create(context.Background(), super, permissions.CreateInput{
		Code: "  route_optimize  ", Name: "Optimize routes", Category: "routing",
	})
	require.NoError(t, err)
	require.Equal(t, authz.Code("ROUTE_OPTIMIZE"), record.Code)
	require.True(t, record.Active)
}

func TestCreateRequiresGrantAuthority(t *testing.T) {
	svc, dir, _ := newService(t)
	tenant := uuid.New()
	plain := dir.addUser(ptr(tenant), authz.CodePermissionRead)

	_, err := svc.Create(context.Background(), plain, permissions.CreateInput{
		Code: "ROUTE_OPTIMIZE", Name: "Optimize routes",
	})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestCreateDuplicateCodeConflict(t *testing.T) {
	svc, dir, _ := newService(t)
	super := dir.addUser(nil, authz.CodeSuperAdmin)

	input := permissions.CreateInput{Code: "ROUTE_OPTIMIZE", Name: "Optimize routes"}
	_, err := svc.Create(context.Background(), super, input)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), super, input)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestSuperAdminCodeNotGrantableByHolder(t *testing.T) {
	svc, dir, _ := newService(t)
	tenant := uuid.New()
	// Even a user who somehow holds a SUPER_ADMIN-coded permission through an
	// inactive flag cannot administer it through the generic path.
	holder := dir.addUser(ptr(tenant), authz.CodePermissionRead)

	_, err := svc.Create(context.Background(), holder, permissions.CreateInput{
		Code: string(authz.CodeSuperAdmin), Name: "Root",
	})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestReadRequiresPermissionRead(t *testing.T) {
	svc, dir, repo := newService(t)
	tenant := uuid.New()
	reader := dir.addUser(ptr(tenant), authz.CodePermissionRead)
	outsider := dir.addUser(ptr(tenant), authz.CodeUserRead)

	record := &permissions.Record{ID: uuid.New(), Code: "ROUTE_OPTIMIZE", Name: "Optimize routes", Active: true}
	require.NoError(t, repo.Create(context.Background(), record))

	_, err := svc.Get(context.Background(), reader, record.ID)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), outsider, record.ID)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestDeleteSoftDeletes(t *testing.T) {
	svc, dir, repo := newService(t)
	super := dir.addUser(nil, authz.CodeSuperAdmin)

	record, err := svc.Create(context.Background(), super, permissions.CreateInput{
		Code: "ROUTE_OPTIMIZE", Name: "Optimize routes",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), super, record.ID))
	_, err = repo.GetByID(context.Background(), record.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeactivationThroughUpdate(t *testing.T) {
	svc, dir, _ := newService(t)
	super := dir.addUser(nil, authz.CodeSuperAdmin)

	record, err := svc.Create(context.Background(), super, permissions.CreateInput{
		Code: "ROUTE_OPTIMIZE", Name: "Optimize routes",
	})
	require.NoError(t, err)

	off := false
	updated, err := svc.Update(context.Background(), super, record.ID, permissions.UpdateInput{Active: &off})
	require.NoError(t, err)
	require.False(t, updated.Active)
}
