package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetgate/fleetgate/internal/authz"
	"github.com/fleetgate/fleetgate/internal/shared"
)

// PGRepository persists permission records in Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository returns a Postgres-backed permission repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const permColumns = `id, code, name, description, category, active, requires_scope, created_at, updated_at`

// Create inserts a permission row.
func (r *PGRepository) Create(ctx context.Context, p *Record) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (id, code, name, description, category, active, requires_scope)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		p.ID, p.Code, p.Name, p.Description, p.Category, p.Active, p.RequiresScope,
	)
	return row.Scan(&p.CreatedAt, &p.UpdatedAt)
}

// GetByID fetches a single record.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permColumns+` FROM permissions WHERE id = $1 AND deleted_at IS NULL`, id)
	p, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: permission %s", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return p, nil
}

// List returns records matching the filter plus the total count.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Record, int, error) {
	conds := []string{"deleted_at IS NULL"}
	args := []any{}
	idx := 1
	if filter.Category != "" {
		conds = append(conds, fmt.Sprintf("category = $%d", idx))
		args = append(args, filter.Category)
		idx++
	}
	if filter.Active != nil {
		conds = append(conds, fmt.Sprintf("active = $%d", idx))
		args = append(args, *filter.Active)
		idx++
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM permissions WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM permissions WHERE %s ORDER BY code LIMIT $%d OFFSET $%d`, permColumns, where, idx, idx+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		p, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

// Update rewrites the mutable columns of a record.
func (r *PGRepository) Update(ctx context.Context, p *Record) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE permissions
		SET name = $2, description = $3, category = $4, active = $5, requires_scope = $6, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		p.ID, p.Name, p.Description, p.Category, p.Active, p.RequiresScope,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: permission %s", shared.ErrNotFound, p.ID)
	}
	return nil
}

// SoftDelete marks a record deleted.
func (r *PGRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE permissions SET active = FALSE, deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: permission %s", shared.ErrNotFound, id)
	}
	return nil
}

// ExistsByCode reports whether a live record claims the code.
func (r *PGRepository) ExistsByCode(ctx context.Context, code authz.Code) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM permissions WHERE code = $1 AND deleted_at IS NULL)`, code).Scan(&exists)
	return exists, err
}

func scanRecord(row pgx.Row) (*Record, error) {
	var p Record
	if err := row.Scan(
		&p.ID, &p.Code, &p.Name, &p.Description, &p.Category,
		&p.Active, &p.RequiresScope, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}
