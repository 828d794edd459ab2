package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetgate/fleetgate/internal/authz"
	"github.com/fleetgate/fleetgate/internal/platform/db"
	"github.com/fleetgate/fleetgate/internal/shared"
)

// PGRepository persists roles in Postgres. Soft-deleted rows are invisible
// to every query here, including the grant loaders the decision engine
// depends on.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository returns a Postgres-backed role repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const roleColumns = `id, name, description, scope, tenant_id, active, created_at, updated_at`

// Create inserts a role row.
func (r *PGRepository) Create(ctx context.Context, role *Role) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (id, name, description, scope, tenant_id, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		role.ID, role.Name, role.Description, role.Scope, role.TenantID, role.Active,
	)
	return row.Scan(&role.CreatedAt, &role.UpdatedAt)
}

// GetByID fetches a role with its attached permissions.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1 AND deleted_at IS NULL`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: role %s", shared.ErrNotFound, id)
		}
		return nil, err
	}

	perms, err := r.permissionsForRole(ctx, id)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return role, nil
}

// List returns roles matching the filter plus the total count.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Role, int, error) {
	conds := []string{"deleted_at IS NULL"}
	args := []any{}
	idx := 1
	if filter.TenantID != nil {
		conds = append(conds, fmt.Sprintf("tenant_id = $%d", idx))
		args = append(args, *filter.TenantID)
		idx++
	}
	if filter.Active != nil {
		conds = append(conds, fmt.Sprintf("active = $%d", idx))
		args = append(args, *filter.Active)
		idx++
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM roles WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM roles WHERE %s ORDER BY name LIMIT $%d OFFSET $%d`, roleColumns, where, idx, idx+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Role, 0, limit)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *role)
	}
	return out, total, rows.Err()
}

// Update rewrites the mutable columns of a role.
func (r *PGRepository) Update(ctx context.Context, role *Role) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE roles
		SET name = $2, description = $3, active = $4, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		role.ID, role.Name, role.Description, role.Active,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: role %s", shared.ErrNotFound, role.ID)
	}
	return nil
}

// SoftDelete marks a role deleted and removes its user links.
func (r *PGRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE roles SET active = FALSE, deleted_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND deleted_at IS NULL`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: role %s", shared.ErrNotFound, id)
		}
		_, err = tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, id)
		return err
	})
}

// ExistsByName reports whether a live role claims the name within the tenant.
func (r *PGRepository) ExistsByName(ctx context.Context, name string, tenantID *uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM roles
			WHERE deleted_at IS NULL AND name = $1 AND tenant_id IS NOT DISTINCT FROM $2
		)`, name, tenantID).Scan(&exists)
	return exists, err
}

// SetPermissions swaps the role's permission set atomically.
func (r *PGRepository) SetPermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, permID := range permissionIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, permID); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindPermissionsByIDs loads permission records in one round trip.
func (r *PGRepository) FindPermissionsByIDs(ctx context.Context, ids []uuid.UUID) ([]authz.Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, name, category, active, requires_scope
		FROM permissions WHERE id = ANY($1) AND deleted_at IS NULL`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]authz.Permission, 0, len(ids))
	for rows.Next() {
		var p authz.Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.Active, &p.RequiresScope); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindByIDs loads roles with their permission sets in the shape the decision
// engine's guards expect.
func (r *PGRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]authz.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.name, r.active, r.tenant_id, r.scope,
		       p.id, p.code, p.name, p.category, p.active, p.requires_scope
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id AND p.deleted_at IS NULL
		WHERE r.id = ANY($1) AND r.deleted_at IS NULL
		ORDER BY r.id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	index := map[uuid.UUID]int{}
	out := []authz.Role{}
	for rows.Next() {
		var (
			role     authz.Role
			permID   *uuid.UUID
			code     *string
			name     *string
			category *string
			active   *bool
			scoped   *bool
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.Active, &role.TenantID, &role.Scope,
			&permID, &code, &name, &category, &active, &scoped); err != nil {
			return nil, err
		}
		pos, ok := index[role.ID]
		if !ok {
			pos = len(out)
			index[role.ID] = pos
			out = append(out, role)
		}
		if permID != nil {
			out[pos].Permissions = append(out[pos].Permissions, authz.Permission{
				ID:            *permID,
				Code:          authz.Code(deref(code)),
				Name:          deref(name),
				Category:      deref(category),
				Active:        active != nil && *active,
				RequiresScope: scoped != nil && *scoped,
			})
		}
	}
	return out, rows.Err()
}

func (r *PGRepository) permissionsForRole(ctx context.Context, roleID uuid.UUID) ([]authz.Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.code, p.name, p.category, p.active, p.requires_scope
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id AND p.deleted_at IS NULL
		WHERE rp.role_id = $1
		ORDER BY p.code`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []authz.Permission{}
	for rows.Next() {
		var p authz.Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.Active, &p.RequiresScope); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanRole(row pgx.Row) (*Role, error) {
	var role Role
	if err := row.Scan(
		&role.ID, &role.Name, &role.Description, &role.Scope, &role.TenantID,
		&role.Active, &role.CreatedAt, &role.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &role, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
