package authz_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fleetgate/fleetgate/internal/authz"
)

func TestResolveIsSingleFetch(t *testing.T) {
	dir := newMemoryDirectory()
	tenant := uuid.New()
	u := user(ptr(tenant), true,
		role("dispatcher", true, ptr(tenant), perm(authz.CodeAlertRead, true, false)),
		role("fleet-manager", true, ptr(tenant), perm(authz.CodeDeviceRead, true, true)),
	)
	dir.addUser(u)
	resolver := authz.NewResolver(dir)

	_, err := resolver.Resolve(context.Background(), u.ID)
	require.NoError(t, err)
	require.Equal(t, 1, dir.fetchCount, "resolution must not fan out into per-role fetches")
}

func TestResolveCollapsesDuplicateCodes(t *testing.T) {
	dir := newMemoryDirectory()
	tenant := uuid.New()
	u := user(ptr(tenant), true,
		role("dispatcher", true, ptr(tenant), perm(authz.CodeAlertRead, true, false)),
		role("supervisor", true, ptr(tenant), perm(authz.CodeAlertRead, true, false), perm(authz.CodeUserRead, true, false)),
	)
	dir.addUser(u)
	resolver := authz.NewResolver(dir)

	set, err := resolver.Resolve(context.Background(), u.ID)
	require.NoError(t, err)
	require.Equal(t, []authz.Code{authz.CodeAlertRead, authz.CodeUserRead}, set.Codes())
}

func TestResolveSkipsInactiveRoles(t *testing.T) {
	dir := newMemoryDirectory()
	tenant := uuid.New()
	u := user(ptr(tenant), true,
		role("dispatcher", false, ptr(tenant), perm(authz.CodeAlertRead, true, false)),
		role("viewer", true, ptr(tenant), perm(authz.CodeUserRead, true, false)),
	)
	dir.addUser(u)
	resolver := authz.NewResolver(dir)

	set, err := resolver.Resolve(context.Background(), u.ID)
	require.NoError(t, err)
	require.Equal(t, []authz.Code{authz.CodeUserRead}, set.Codes())
}

func TestResolveMissingUserYieldsEmptySet(t *testing.T) {
	resolver := authz.NewResolver(newMemoryDirectory())

	set, err := resolver.Resolve(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Empty(t, set)

	set, err = resolver.Resolve(context.Background(), uuid.Nil)
	require.NoError(t, err)
	require.Empty(t, set)
}
