package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetgate/fleetgate/internal/platform/db"
	"github.com/fleetgate/fleetgate/internal/shared"
)

// PGRepository persists users in Postgres. Soft-deleted rows are invisible
// to every query here.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository returns a Postgres-backed user repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, username, email, full_name, phone, password_hash, active, tenant_id, last_login, created_at, updated_at`

// Create inserts a user row.
func (r *PGRepository) Create(ctx context.Context, u *User) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, email, full_name, phone, password_hash, active, tenant_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		u.ID, u.Username, u.Email, u.FullName, u.Phone, u.PasswordHash, u.Active, u.TenantID,
	)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return shared.ErrConflict
		}
		return err
	}
	return nil
}

// GetByID fetches a single user.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return u, nil
}

// List returns users matching the filter plus the total count.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]User, int, error) {
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
	if filter.Search != "" {
		conds = append(conds, fmt.Sprintf("(username ILIKE $%d OR email ILIKE $%d OR full_name ILIKE $%d)", idx, idx, idx))
		args = append(args, "%"+filter.Search+"%")
		idx++
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, userColumns, where, idx, idx+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *u)
	}
	return out, total, rows.Err()
}

// Update rewrites the mutable columns of a user.
func (r *PGRepository) Update(ctx context.Context, u *User) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET email = $2, full_name = $3, phone = $4, password_hash = $5, active = $6, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		u.ID, u.Email, u.FullName, u.Phone, u.PasswordHash, u.Active,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s", shared.ErrNotFound, u.ID)
	}
	return nil
}

// Deactivate soft-deletes a user and revokes its role links.
func (r *PGRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE users SET active = FALSE, deleted_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND deleted_at IS NULL`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: user %s", shared.ErrNotFound, id)
		}
		_, err = tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id)
		return err
	})
}

// ExistsByUsernameOrEmail reports whether a live row claims either value.
// Blank arguments are skipped.
func (r *PGRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM users
			WHERE deleted_at IS NULL
			  AND (($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2))
		)`, username, email).Scan(&exists)
	return exists, err
}

// ReplaceRoles swaps the user's role set atomically.
func (r *PGRepository) ReplaceRoles(ctx context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return err
		}
		for _, roleID := range roleIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, userID, roleID); err != nil {
				return err
			}
		}
		return nil
	})
}

// AssignDevice links a device to a user, idempotently.
func (r *PGRepository) AssignDevice(ctx context.Context, userID, deviceID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_devices (user_id, device_id) VALUES ($1, $2)
		ON CONFLICT (user_id, device_id) DO NOTHING`, userID, deviceID)
	return err
}

// CountDeviceAssignments returns how many users share the device.
func (r *PGRepository) CountDeviceAssignments(ctx context.Context, deviceID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_devices WHERE device_id = $1`, deviceID).Scan(&n)
	return n, err
}

// AssignVehicle links a vehicle to a user, idempotently.
func (r *PGRepository) AssignVehicle(ctx context.Context, userID, vehicleID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_vehicles (user_id, vehicle_id) VALUES ($1, $2)
		ON CONFLICT (user_id, vehicle_id) DO NOTHING`, userID, vehicleID)
	return err
}

// CountVehicleAssignments returns how many users share the vehicle.
func (r *PGRepository) CountVehicleAssignments(ctx context.Context, vehicleID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_vehicles WHERE vehicle_id = $1`, vehicleID).Scan(&n)
	return n, err
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.FullName, &u.Phone, &u.PasswordHash,
		&u.Active, &u.TenantID, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}
