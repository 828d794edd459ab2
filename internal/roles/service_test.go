package roles_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fleetgate/fleetgate/internal/authz"
	"github.com/fleetgate/fleetgate/internal/roles"
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
		p := authz.Permission{ID: uuid.New(), Code: c, Active: true, RequiresScope: true}
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

type memoryRoleRepo struct {
	roles map[uuid.UUID]*roles.Role
	perms map[uuid.UUID]authz.Permission
}

func newMemoryRoleRepo() *memoryRoleRepo {
	return &memoryRoleRepo{
		roles: map[uuid.UUID]*roles.Role{},
		perms: map[uuid.UUID]authz.Permission{},
	}
}

func (r *memoryRoleRepo) Create(_ context.Context, role *roles.Role) error {
	cp := *role
	r.roles[role.ID] = &cp
	return nil
}

func (r *memoryRoleRepo) GetByID(_ context.Context, id uuid.UUID) (*roles.Role, error) {
	role, ok := r.roles[id]
	if !ok || role.DeletedAt != nil {
		return nil, shared.ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (r *memoryRoleRepo) List(_ context.Context, filter roles.ListFilter) ([]roles.Role, int, error) {
	out := []roles.Role{}
	for _, role := range r.roles {
		if role.DeletedAt != nil {
			continue
		}
		if filter.TenantID != nil && (role.TenantID == nil || *role.TenantID != *filter.TenantID) {
			continue
		}
		out = append(out, *role)
	}
	return out, len(out), nil
}

func (r *memoryRoleRepo) Update(_ context.Context, role *roles.Role) error {
	if _, ok := r.roles[role.ID]; !ok {
		return shared.ErrNotFound
	}
	cp := *role
	r.roles[role.ID] = &cp
	return nil
}

func (r *memoryRoleRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	role, ok := r.roles[id]
	if !ok {
		return shared.ErrNotFound
	}
	role.Active = false
	now := time.Now()
	role.DeletedAt = &now
	return nil
}

func (r *memoryRoleRepo) ExistsByName(_ context.Context, name string, tenantID *uuid.UUID) (bool, error) {
	for _, role := range r.roles {
		if role.DeletedAt != nil || role.Name != name {
			continue
		}
		if (role.TenantID == nil) != (tenantID == nil) {
			continue
		}
		if role.TenantID == nil || *role.TenantID == *tenantID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRoleRepo) SetPermissions(_ context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	role, ok := r.roles[roleID]
	if !ok {
		return shared.ErrNotFound
	}
	role.Permissions = nil
	for _, id := range permissionIDs {
		role.Permissions = append(role.Permissions, r.perms[id])
	}
	return nil
}

func (r *memoryRoleRepo) FindPermissionsByIDs(_ context.Context, ids []uuid.UUID) ([]authz.Permission, error) {
	out := []authz.Permission{}
	for _, id := range ids {
		if p, ok := r.perms[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func newService(t *testing.T) (*roles.Service, *memoryDirectory, *memoryRoleRepo) {
	t.Helper()
	dir := newMemoryDirectory()
	repo := newMemoryRoleRepo()
	engine := authz.NewEngine(dir, slog.Default(), authz.EngineConfig{})
	svc := roles.NewService(repo, engine, nil, slog.Default())
	return svc, dir, repo
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func TestCreateTenantRoleRequiresTenant(t *testing.T) {
	svc, dir, _ := newService(t)
	admin := dir.addUser(nil, authz.CodeSuperAdmin)

	_, err := svc.Create(context.Background(), admin, roles.CreateInput{
		Name: "dispatcher", Scope: authz.ScopeTenant,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateGlobalRoleRejectsTenant(t *testing.T) {
	svc, dir, _ := newService(t)
	admin := dir.addUser(nil, authz.CodeSuperAdmin)
	tenant := uuid.New()

	_, err := svc.Create(context.Background(), admin, roles.CreateInput{
		Name: "platform-ops", Scope: authz.ScopeGlobal, TenantID: ptr(tenant),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateDuplicateNameWithinTenant(t *testing.T) {
	svc, dir, _ := newService(t)
	tenant := uuid.New()
	admin := dir.addUser(ptr(tenant), authz.CodeRoleCreate)

	input := roles.CreateInput{Name: "dispatcher", Scope: authz.ScopeTenant, TenantID: ptr(tenant)}
	_, err := svc.Create(context.Background(), admin, input)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), admin, input)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateNormalizesName(t *testing.T) {
	svc, dir, _ := newService(t)
	tenant := uuid.New()
	admin := dir.addUser(ptr(tenant), authz.CodeRoleCreate)

	role, err := svc.Create(context.Background(), admin, roles.CreateInput{
		Name: "  Fleet Dispatcher ", Scope: authz.ScopeTenant, TenantID: ptr(tenant),
	})
	require.NoError(t, err)
	require.Equal(t, "fleet dispatcher", role.Name)
}

func TestCreateRequiresRoleCreatePermission(t *testing.T) {
	svc, dir, _ := newService(t)
	tenant := uuid.New()
	reader := dir.addUser(ptr(tenant), authz.CodeRoleRead)

	_, err := svc.Create(context.Background(), reader, roles.CreateInput{
		Name: "dispatcher", Scope: authz.ScopeTenant, TenantID: ptr(tenant),
	})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestDeleteSoftDeletes(t *testing.T) {
	svc, dir, repo := newService(t)
	tenant := uuid.New()
	admin := dir.addUser(ptr(tenant), authz.CodeRoleCreate, authz.CodeRoleDelete)

	role, err := svc.Create(context.Background(), admin, roles.CreateInput{
		Name: "dispatcher", Scope: authz.ScopeTenant, TenantID: ptr(tenant),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), admin, role.ID))
	_, err = repo.GetByID(context.Background(), role.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSetPermissionsRequiresPossession(t *testing.T) {
	svc, dir, repo := newService(t)
	tenant := uuid.New()
	admin := dir.addUser(ptr(tenant), authz.CodeRoleCreate, authz.CodeRoleUpdate)

	role, err := svc.Create(context.Background(), admin, roles.CreateInput{
		Name: "dispatcher", Scope: authz.ScopeTenant, TenantID: ptr(tenant),
	})
	require.NoError(t, err)

	// The actor does not hold VIEW_LOCATION_LIVE, so attaching it is refused.
	permID := uuid.New()
	repo.perms[permID] = authz.Permission{ID: permID, Code: authz.CodeViewLocationLive, Active: true}

	_, err = svc.SetPermissions(context.Background(), admin, role.ID, []uuid.UUID{permID})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestSetPermissionsBySuperAdmin(t *testing.T) {
	svc, dir, repo := newService(t)
	tenant := uuid.New()
	super := dir.addUser(nil, authz.CodeSuperAdmin)

	role, err := svc.Create(context.Background(), super, roles.CreateInput{
		Name: "dispatcher", Scope: authz.ScopeTenant, TenantID: ptr(tenant),
	})
	require.NoError(t, err)

	permID := uuid.New()
	repo.perms[permID] = authz.Permission{ID: permID, Code: authz.CodeViewLocationLive, Active: true}

	updated, err := svc.SetPermissions(context.Background(), super, role.ID, []uuid.UUID{permID})
	require.NoError(t, err)
	require.Len(t, updated.Permissions, 1)
}

func TestSetPermissionsUnknownPermission(t *testing.T) {
	svc, dir, _ := newService(t)
	tenant := uuid.New()
	super := dir.addUser(nil, authz.CodeSuperAdmin)

	role, err := svc.Create(context.Background(), super, roles.CreateInput{
		Name: "dispatcher", Scope: authz.ScopeTenant, TenantID: ptr(tenant),
	})
	require.NoError(t, err)

	_, err = svc.SetPermissions(context.Background(), super, role.ID, []uuid.UUID{uuid.New()})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
