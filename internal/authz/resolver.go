package authz

import (
	"context"

	"github.com/google/uuid"
)

// Directory is the read-only view of the user/role/permission graph. The
// engine never writes through it; relationship ownership belongs to the
// administrative services.
type Directory interface {
	// FindUserWithGrants loads a user with every role and permission in one
	// logical fetch. Returns (nil, nil) when the user does not exist.
	FindUserWithGrants(ctx context.Context, userID uuid.UUID) (*UserGrants, error)
	// FindPermissionByCode returns (nil, nil) when no such code is registered.
	FindPermissionByCode(ctx context.Context, code Code) (*Permission, error)
}

// Resolver computes effective permission sets. It holds no state between
// calls, so a role revoked in one request is invisible to the very next
// check.
type Resolver struct {
	dir Directory
}

// NewResolver constructs a Resolver over the directory.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve returns the effective permission set for a user: the union of
// active permission codes across active roles. Missing or inactive users
// yield an empty set, not an error.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (Set, error) {
	grants, err := r.grants(ctx, userID)
	if err != nil {
		return nil, err
	}
	return EffectiveSet(grants), nil
}

// grants loads the joined read model, mapping missing and inactive users to
// nil so every caller fails closed the same way.
func (r *Resolver) grants(ctx context.Context, userID uuid.UUID) (*UserGrants, error) {
	if userID == uuid.Nil {
		return nil, nil
	}
	grants, err := r.dir.FindUserWithGrants(ctx, userID)
	if err != nil {
		return nil, err
	}
	if grants == nil || !grants.Active {
		return nil, nil
	}
	return grants, nil
}

// EffectiveSet filters the grants graph by active flags and collapses it to
// the set of codes. A nil grants value produces an empty set.
func EffectiveSet(grants *UserGrants) Set {
	set := make(Set)
	if grants == nil {
		return set
	}
	for _, role := range grants.Roles {
		if !role.Active {
			continue
		}
		for _, perm := range role.Permissions {
			if !perm.Active {
				continue
			}
			set.Add(perm.Code)
		}
	}
	return set
}
