package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the PostgreSQL-backed Directory. The grants query joins the whole
// user→roles→permissions graph in one round trip; active filtering happens in
// memory so the read path stays a single statement.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store over the pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ Directory = (*Store)(nil)

const userGrantsQuery = `
SELECT u.id, u.tenant_id, u.active,
       r.id, r.name, r.active, r.tenant_id, r.scope,
       p.id, p.code, p.name, p.category, p.active, p.requires_scope
FROM users u
LEFT JOIN user_roles ur ON ur.user_id = u.id
LEFT JOIN roles r ON r.id = ur.role_id
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id
WHERE u.id = $1
ORDER BY r.id`

// FindUserWithGrants loads the user's full grant graph. Returns (nil, nil)
// when the user does not exist.
func (s *Store) FindUserWithGrants(ctx context.Context, userID uuid.UUID) (*UserGrants, error) {
	rows, err := s.pool.Query(ctx, userGrantsQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("authz: query user grants: %w", err)
	}
	defer rows.Close()

	var grants *UserGrants
	roleIndex := make(map[uuid.UUID]int)

	for rows.Next() {
		var (
			uID       uuid.UUID
			uTenant   *uuid.UUID
			uActive   bool
			rID       *uuid.UUID
			rName     *string
			rActive   *bool
			rTenant   *uuid.UUID
			rScope    *string
			pID       *uuid.UUID
			pCode     *string
			pName     *string
			pCategory *string
			pActive   *bool
			pScoped   *bool
		)
		if err := rows.Scan(&uID, &uTenant, &uActive,
			&rID, &rName, &rActive, &rTenant, &rScope,
			&pID, &pCode, &pName, &pCategory, &pActive, &pScoped); err != nil {
			return nil, fmt.Errorf("authz: scan user grants: %w", err)
		}

		if grants == nil {
			grants = &UserGrants{ID: uID, TenantID: uTenant, Active: uActive}
		}
		if rID == nil {
			continue
		}
		idx, ok := roleIndex[*rID]
		if !ok {
			grants.Roles = append(grants.Roles, Role{
				ID:       *rID,
				Name:     deref(rName),
				Active:   rActive != nil && *rActive,
				TenantID: rTenant,
				Scope:    RoleScope(deref(rScope)),
			})
			idx = len(grants.Roles) - 1
			roleIndex[*rID] = idx
		}
		if pID == nil {
			continue
		}
		grants.Roles[idx].Permissions = append(grants.Roles[idx].Permissions, Permission{
			ID:            *pID,
			Code:          Code(deref(pCode)),
			Name:          deref(pName),
			Category:      deref(pCategory),
			Active:        pActive != nil && *pActive,
			RequiresScope: pScoped != nil && *pScoped,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("authz: read user grants: %w", err)
	}
	return grants, nil
}

// FindPermissionByCode looks up a permission record. Returns (nil, nil) when
// the code is not registered.
func (s *Store) FindPermissionByCode(ctx context.Context, code Code) (*Permission, error) {
	var perm Permission
	err := s.pool.QueryRow(ctx,
		`SELECT id, code, name, category, active, requires_scope FROM permissions WHERE code = $1`,
		string(code),
	).Scan(&perm.ID, &perm.Code, &perm.Name, &perm.Category, &perm.Active, &perm.RequiresScope)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("authz: query permission: %w", err)
	}
	return &perm, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
