package authz_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fleetgate/fleetgate/internal/authz"
	"github.com/fleetgate/fleetgate/internal/shared"
)

func TestCheckRoleAssignmentBlocksSuperAdminCarriers(t *testing.T) {
	dir := newMemoryDirectory()
	tenant := uuid.New()
	actor := user(ptr(tenant), true, role("tenant-admin", true, ptr(tenant), perm(authz.CodeRoleAssign, true, false)))
	dir.addUser(actor)
	engine := newEngine(dir)

	elevated := role("platform-admin", true, nil, perm(authz.CodeSuperAdmin, true, false))
	err := engine.CheckRoleAssignment(context.Background(), actor.ID, []authz.Role{elevated})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestCheckRoleAssignmentBlocksInactiveSuperAdminCarrierToo(t *testing.T) {
	dir := newMemoryDirectory()
	tenant := uuid.New()
	actor := user(ptr(tenant), true, role("tenant-admin", true, ptr(tenant), perm(authz.CodeRoleAssign, true, false)))
	dir.addUser(actor)
	engine := newEngine(dir)

	// The permission flag is inactive, but the role still carries the grant.
	carrier := role("dormant-admin", true, ptr(tenant), perm(authz.CodeSuperAdmin, false, false))
	err := engine.CheckRoleAssignment(context.Background(), actor.ID, []authz.Role{carrier})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestCheckRoleAssignmentBlocksCrossTenant(t *testing.T) {
	dir := newMemoryDirectory()
	t1 := uuid.New()
	t2 := uuid.New()
	actor := user(ptr(t1), true, role("tenant-admin", true, ptr(t1), perm(authz.CodeRoleAssign, true, false)))
	dir.addUser(actor)
	engine := newEngine(dir)
	ctx := context.Background()

	foreign := role("dispatcher", true, ptr(t2), perm(authz.CodeAlertRead, true, false))
	err := engine.CheckRoleAssignment(ctx, actor.ID, []authz.Role{foreign})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	local := role("dispatcher", true, ptr(t1), perm(authz.CodeAlertRead, true, false))
	require.NoError(t, engine.CheckRoleAssignment(ctx, actor.ID, []authz.Role{local}))
}

func TestCheckRoleAssignmentSuperAdminActorUnrestricted(t *testing.T) {
	dir := newMemoryDirectory()
	t2 := uuid.New()
	admin := user(nil, true, role("platform-admin", true, nil, perm(authz.CodeSuperAdmin, true, false)))
	dir.addUser(admin)
	engine := newEngine(dir)

	roles := []authz.Role{
		role("platform-admin", true, nil, perm(authz.CodeSuperAdmin, true, false)),
		role("dispatcher", true, ptr(t2), perm(authz.CodeAlertRead, true, false)),
	}
	require.NoError(t, engine.CheckRoleAssignment(context.Background(), admin.ID, roles))
}

func TestCheckPermissionAttachment(t *testing.T) {
	dir := newMemoryDirectory()
	tenant := uuid.New()
	manager := user(ptr(tenant), true, role("fleet-manager", true, ptr(tenant),
		perm(authz.CodeDeviceRegister, true, true),
		perm(authz.CodeDeviceRead, true, false),
	))
	dir.addUser(manager)
	engine := newEngine(dir)
	ctx := context.Background()

	err := engine.CheckPermissionAttachment(ctx, manager.ID, []authz.Code{authz.CodeDeviceRegister, authz.CodeDeviceRead}, ptr(tenant))
	require.NoError(t, err)

	err = engine.CheckPermissionAttachment(ctx, manager.ID, []authz.Code{authz.CodeDeviceRegister, authz.CodeVehicleDelete}, ptr(tenant))
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	err = engine.CheckPermissionAttachment(ctx, manager.ID, []authz.Code{authz.CodeSuperAdmin}, nil)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}
