package authz_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fleetgate/fleetgate/internal/authz"
)

type memoryDirectory struct {
	users      map[uuid.UUID]*authz.UserGrants
	perms      map[authz.Code]*authz.Permission
	grantsErr  error
	permErr    error
	fetchCount int
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{
		users: make(map[uuid.UUID]*authz.UserGrants),
		perms: make(map[authz.Code]*authz.Permission),
	}
}

func (d *memoryDirectory) FindUserWithGrants(_ context.Context, userID uuid.UUID) (*authz.UserGrants, error) {
	d.fetchCount++
	if d.grantsErr != nil {
		return nil, d.grantsErr
	}
	return d.users[userID], nil
}

func (d *memoryDirectory) FindPermissionByCode(_ context.Context, code authz.Code) (*authz.Permission, error) {
	if d.permErr != nil {
		return nil, d.permErr
	}
	return d.perms[code], nil
}

func (d *memoryDirectory) addUser(u *authz.UserGrants) {
	d.users[u.ID] = u
	for _, role := range u.Roles {
		for _, p := range role.Permissions {
			perm := p
			d.perms[p.Code] = &perm
		}
	}
}

func perm(code authz.Code, active, requiresScope bool) authz.Permission {
	return authz.Permission{ID: uuid.New(), Code: code, Active: active, RequiresScope: requiresScope}
}

func role(name string, active bool, tenantID *uuid.UUID, perms ...authz.Permission) authz.Role {
	scope := authz.ScopeTenant
	if tenantID == nil {
		scope = authz.ScopeGlobal
	}
	return authz.Role{ID: uuid.New(), Name: name, Active: active, TenantID: tenantID, Scope: scope, Permissions: perms}
}

func user(tenantID *uuid.UUID, active bool, roles ...authz.Role) *authz.UserGrants {
	return &authz.UserGrants{ID: uuid.New(), TenantID: tenantID, Active: active, Roles: roles}
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func newEngine(dir authz.Directory) *authz.Engine {
	return authz.NewEngine(dir, slog.Default(), authz.EngineConfig{})
}

func TestSuperAdminBypassesEveryCheck(t *testing.T) {
	dir := newMemoryDirectory()
	tenant := uuid.New()
	admin := user(nil, true, role("platform-admin", true, nil, perm(authz.CodeSuperAdmin, true, false)))
	dir.addUser(admin)
	engine := newEngine(dir)
	ctx := context.Background()

	for _, code := range []authz.Code{authz.CodeDeviceDelete, authz.CodeVehicleCreate, "NO_SUCH_CODE"} {
		granted, err := engine.HasPermission(ctx, admin.ID, code, ptr(tenant))
		require.NoError(t, err)
		require.True(t, granted, "super admin must pass %s", code)
	}

	granted, err := engine.CanAccessTenant(ctx, admin.ID, tenant)
	require.NoError(t, err)
	require.True(t, granted)
}

func TestInactiveUserIsDeniedEverything(t *testing.T) {
	dir := newMemoryDirectory()
	tenant := uuid.New()
	u := user(ptr(tenant), false, role("dispatcher", true, ptr(tenant), perm(authz.CodeAlertRead, true, false)))
	dir.addUser(u)
	engine := newEngine(dir)
	ctx := context.Background()

	granted, err := engine.HasPermission(ctx, u.ID, authz.CodeAlertRead, nil)
	require.NoError(t, err)
	require.False(t, granted)

	granted, err = engine.HasAnyPermission(ctx, u.ID, []authz.Code{authz.CodeAlertRead, authz.CodeUserRead}, nil)
	require.NoError(t, err)
	require.False(t, granted)

	granted, err = engine.HasAllPermissions(ctx, u.ID, []authz.Code{authz.CodeAlertRead}, nil)
	require.NoError(t, err)
	require.False(t, granted)

	set, err := engine.GetAllUserPermissions(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, set)
}

func TestHasAllPermissionsVacuousTruth(t *testing.T) {
	engine := newEngine(newMemoryDirectory())

	// Even an unknown user satisfies the empty requirement.
	granted, err := engine.HasAllPermissions(context.Background(), uuid.New(), nil, nil)
	require.NoError(t, err)
	require.True(t, granted)
}

func TestHasAnyPermissionEmptySetDenied(t *testing.T) {
	dir := newMemoryDirectory()
	admin := user(nil, true, role("platform-admin", true, nil, perm(authz.CodeSuperAdmin, true, false)))
	dir.addUser(admin)
	engine := newEngine(dir)

	granted, err := engine.HasAnyPermission(context.Background(), admin.ID, nil, nil)
	require.NoError(t, err)
	require.False(t, granted)
}

func TestMissingUserAndNilArgumentsDenied(t *testing.T) {
	engine := newEngine(newMemoryDirectory())
	ctx := context.Background()

	granted, err := engine.HasPermission(ctx, uuid.New(), authz.CodeUserRead, nil)
	require.NoError(t, err)
	require.False(t, granted)

	granted, err = engine.HasPermission(ctx, uuid.Nil, authz.CodeUserRead, nil)
	require.NoError(t, err)
	require.False(t, granted)

	granted, err = engine.HasPermission(ctx, uuid.New(), "", nil)
	require.NoError(t, err)
	require.False(t, granted)
}

func TestResolveIdempotentWithoutWrites(t *testing.T) {
	dir := newMemoryDirectory()
	tenant := uuid.New()
	u := user(ptr(tenant), true, role("dispatcher", true, ptr(tenant),
		perm(authz.CodeViewLocationLive, true, true),
		perm(authz.CodeAlertRead, true, false),
	))
	dir.addUser(u)
	engine := newEngine(dir)
	ctx := context.Background()

	first, err := engine.GetAllUserPermissions(ctx, u.ID)
	require.NoError(t, err)
	second, err := engine.GetAllUserPermissions(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, first.Codes(), second.Codes())
}

func TestScopeMonotonicityForScopeExemptPermission(t *testing.T) {
	dir := newMemoryDirectory()
	tenant := uuid.New()
	other := uuid.New()
	u := user(ptr(tenant), true, role("dispatcher", true, ptr(tenant), perm(authz.CodeAlertRead, true, false)))
	dir.addUser(u)
	engine := newEngine(dir)
	ctx := context.Background()

	unscoped, err := engine.HasPermission(ctx, u.ID, authz.CodeAlertRead, nil)
	require.NoError(t, err)
	for _, scope := range []uuid.UUID{tenant, other} {
		scoped, err := engine.HasPermission(ctx, u.ID, authz.CodeAlertRead, ptr(scope))
		require.NoError(t, err)
		require.Equal(t, unscoped, scoped)
	}
}

func TestDispatcherScenario(t *testing.T) {
	dir := newMemoryDirectory()
	t1 := uuid.New()
	t2 := uuid.New()
	dispatcher := user(ptr(t1), true, role("dispatcher", true, ptr(t1),
		perm(authz.CodeViewLocationLive, true, true),
		perm(authz.CodeAlertRead, true, false),
	))
	dir.addUser(dispatcher)
	engine := newEngine(dir)
	ctx := context.Background()

	granted, err := engine.HasPermission(ctx, dispatcher.ID, authz.CodeViewLocationLive, ptr(t1))
	require.NoError(t, err)
	require.True(t, granted)

	granted, err = engine.HasPermission(ctx, dispatcher.ID, authz.CodeVehicleDelete, ptr(t1))
	require.NoError(t, err)
	require.False(t, granted)

	granted, err = engine.HasPermission(ctx, dispatcher.ID, authz.CodeViewLocationLive, ptr(t2))
	require.NoError(t, err)
	require.False(t, granted, "scope-requiring permission must not cross tenants")
}

func TestRoleDeactivationVisibleImmediately(t *testing.T) {
	dir := newMemoryDirectory()
	t1 := uuid.New()
	dispatcher := user(ptr(t1), true, role("dispatcher", true, ptr(t1), perm(authz.CodeViewLocationLive, true, true)))
	dir.addUser(dispatcher)
	engine := newEngine(dir)
	ctx := context.Background()

	granted, err := engine.HasPermission(ctx, dispatcher.ID, authz.CodeViewLocationLive, ptr(t1))
	require.NoError(t, err)
	require.True(t, granted)

	// Deactivate the role in the directory; no cache sits in between.
	dir.users[dispatcher.ID].Roles[0].Active = false

	granted, err = engine.HasPermission(ctx, dispatcher.ID, authz.CodeViewLocationLive, ptr(t1))
	require.NoError(t, err)
	require.False(t, granted)
}

func TestSuperAdminResolvesFullPermissionSet(t *testing.T) {
	dir := newMemoryDirectory()
	all := []authz.Permission{
		perm(authz.CodeSuperAdmin, true, false),
		perm(authz.CodeUserCreate, true, false),
		perm(authz.CodeDeviceRegister, true, true),
		perm(authz.CodeVehicleCreate, true, true),
	}
	admin := user(nil, true, role("platform-admin", true, nil, all...))
	dir.addUser(admin)
	engine := newEngine(dir)

	set, err := engine.GetAllUserPermissions(context.Background(), admin.ID)
	require.NoError(t, err)
	require.Len(t, set, len(all))
	for _, p := range all {
		require.True(t, set.Has(p.Code))
	}
}

func TestInactivePermissionExcludedFromEffectiveSet(t *testing.T) {
	dir := newMemoryDirectory()
	t1 := uuid.New()
	u := user(ptr(t1), true, role("dispatcher", true, ptr(t1),
		perm(authz.CodeAlertRead, true, false),
		perm(authz.CodeViewLocationLive, false, true),
	))
	dir.addUser(u)
	engine := newEngine(dir)

	set, err := engine.GetAllUserPermissions(context.Background(), u.ID)
	require.NoError(t, err)
	require.True(t, set.Has(authz.CodeAlertRead))
	require.False(t, set.Has(authz.CodeViewLocationLive))
}

func TestCanAccessTenant(t *testing.T) {
	dir := newMemoryDirectory()
	t1 := uuid.New()
	t2 := uuid.New()
	member := user(ptr(t1), true, role("dispatcher", true, ptr(t1), perm(authz.CodeAlertRead, true, false)))
	global := user(nil, true, role("auditor", true, nil, perm(authz.CodeUserRead, true, false)))
	dir.addUser(member)
	dir.addUser(global)
	engine := newEngine(dir)
	ctx := context.Background()

	granted, err := engine.CanAccessTenant(ctx, member.ID, t1)
	require.NoError(t, err)
	require.True(t, granted)

	granted, err = engine.CanAccessTenant(ctx, member.ID, t2)
	require.NoError(t, err)
	require.False(t, granted)

	// A global user without SUPER_ADMIN does not pass tenant access, even
	// though the same account passes scope validation. Different question.
	granted, err = engine.CanAccessTenant(ctx, global.ID, t1)
	require.NoError(t, err)
	require.False(t, granted)

	granted, err = engine.CanAccessTenant(ctx, uuid.Nil, t1)
	require.NoError(t, err)
	require.False(t, granted)

	granted, err = engine.CanAccessTenant(ctx, member.ID, uuid.Nil)
	require.NoError(t, err)
	require.False(t, granted)
}

func TestGlobalUserPassesScopeValidation(t *testing.T) {
	dir := newMemoryDirectory()
	tenant := uuid.New()
	global := user(nil, true, role("auditor", true, nil, perm(authz.CodeDeviceRead, true, true)))
	dir.addUser(global)
	engine := newEngine(dir)

	granted, err := engine.HasPermission(context.Background(), global.ID, authz.CodeDeviceRead, ptr(tenant))
	require.NoError(t, err)
	require.True(t, granted)
}

func TestUnknownPermissionRecordIsScopeExempt(t *testing.T) {
	dir := newMemoryDirectory()
	tenant := uuid.New()
	other := uuid.New()
	u := user(ptr(tenant), true, role("dispatcher", true, ptr(tenant), perm(authz.CodeAlertRead, true, false)))
	dir.addUser(u)
	// Drop the permission record: the code stays in the effective set but the
	// scope lookup cannot find it.
	delete(dir.perms, authz.CodeAlertRead)
	engine := newEngine(dir)

	granted, err := engine.HasPermission(context.Background(), u.ID, authz.CodeAlertRead, ptr(other))
	require.NoError(t, err)
	require.True(t, granted)
}

func TestScopeLookupFailureDenies(t *testing.T) {
	dir := newMemoryDirectory()
	tenant := uuid.New()
	u := user(ptr(tenant), true, role("dispatcher", true, ptr(tenant), perm(authz.CodeViewLocationLive, true, true)))
	dir.addUser(u)
	dir.permErr = errors.New("directory unreachable")
	engine := newEngine(dir)

	granted, err := engine.HasPermission(context.Background(), u.ID, authz.CodeViewLocationLive, ptr(tenant))
	require.NoError(t, err)
	require.False(t, granted)
}

func TestDirectoryFailurePropagates(t *testing.T) {
	dir := newMemoryDirectory()
	dir.grantsErr = errors.New("directory unreachable")
	engine := newEngine(dir)

	granted, err := engine.HasPermission(context.Background(), uuid.New(), authz.CodeUserRead, nil)
	require.Error(t, err)
	require.False(t, granted)
}

func TestCanGrantPermissionMatchesSuperAdminPossession(t *testing.T) {
	dir := newMemoryDirectory()
	tenant := uuid.New()
	admin := user(nil, true, role("platform-admin", true, nil, perm(authz.CodeSuperAdmin, true, false)))
	manager := user(ptr(tenant), true, role("fleet-manager", true, ptr(tenant),
		perm(authz.CodeDeviceRegister, true, true),
	))
	dir.addUser(admin)
	dir.addUser(manager)
	engine := newEngine(dir)
	ctx := context.Background()

	for _, tc := range []struct {
		name    string
		grantor uuid.UUID
	}{
		{"super admin", admin.ID},
		{"tenant manager", manager.ID},
		{"unknown grantor", uuid.New()},
	} {
		holds, err := engine.HasPermission(ctx, tc.grantor, authz.CodeSuperAdmin, nil)
		require.NoError(t, err)
		canGrant, err := engine.CanGrantPermission(ctx, tc.grantor, authz.CodeSuperAdmin, ptr(tenant))
		require.NoError(t, err)
		require.Equal(t, holds, canGrant, tc.name)
	}
}

func TestCanGrantPermissionRequiresPossession(t *testing.T) {
	dir := newMemoryDirectory()
	tenant := uuid.New()
	manager := user(ptr(tenant), true, role("fleet-manager", true, ptr(tenant),
		perm(authz.CodeDeviceRegister, true, true),
	))
	dir.addUser(manager)
	engine := newEngine(dir)
	ctx := context.Background()

	granted, err := engine.CanGrantPermission(ctx, manager.ID, authz.CodeDeviceRegister, ptr(tenant))
	require.NoError(t, err)
	require.True(t, granted)

	granted, err = engine.CanGrantPermission(ctx, manager.ID, authz.CodeVehicleDelete, ptr(tenant))
	require.NoError(t, err)
	require.False(t, granted)
}

func TestCanManageUser(t *testing.T) {
	dir := newMemoryDirectory()
	t1 := uuid.New()
	t2 := uuid.New()
	admin := user(nil, true, role("platform-admin", true, nil, perm(authz.CodeSuperAdmin, true, false)))
	manager := user(ptr(t1), true, role("tenant-admin", true, ptr(t1), perm(authz.CodeUserUpdate, true, false)))
	peer := user(ptr(t1), true, role("dispatcher", true, ptr(t1), perm(authz.CodeAlertRead, true, false)))
	outsider := user(ptr(t2), true, role("dispatcher", true, ptr(t2), perm(authz.CodeAlertRead, true, false)))
	for _, u := range []*authz.UserGrants{admin, manager, peer, outsider} {
		dir.addUser(u)
	}
	engine := newEngine(dir)
	ctx := context.Background()

	// SUPER_ADMIN bypass runs before the self-management block.
	granted, err := engine.CanManageUser(ctx, admin.ID, admin.ID)
	require.NoError(t, err)
	require.True(t, granted)

	granted, err = engine.CanManageUser(ctx, manager.ID, manager.ID)
	require.NoError(t, err)
	require.False(t, granted, "self-management denied without super admin")

	granted, err = engine.CanManageUser(ctx, manager.ID, peer.ID)
	require.NoError(t, err)
	require.True(t, granted)

	granted, err = engine.CanManageUser(ctx, manager.ID, outsider.ID)
	require.NoError(t, err)
	require.False(t, granted, "cross-tenant management denied")

	granted, err = engine.CanManageUser(ctx, peer.ID, manager.ID)
	require.NoError(t, err)
	require.False(t, granted, "missing USER_UPDATE")
}
