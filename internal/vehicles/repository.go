package vehicles

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

// PGRepository persists vehicles in Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository returns a Postgres-backed vehicle repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const vehicleColumns = `id, plate_number, vin, make, model, year, type, status, tenant_id, odometer_km, created_at, updated_at`

// Create inserts a vehicle row.
func (r *PGRepository) Create(ctx context.Context, v *Vehicle) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO vehicles (id, plate_number, vin, make, model, year, type, status, tenant_id, odometer_km)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		v.ID, v.PlateNumber, v.VIN, v.Make, v.Model, v.Year, v.Type, v.Status, v.TenantID, v.OdometerKM,
	)
	if err := row.Scan(&v.CreatedAt, &v.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return shared.ErrConflict
		}
		return err
	}
	return nil
}

// GetByID fetches a single vehicle.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Vehicle, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id)
	v, err := scanVehicle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: vehicle %s", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return v, nil
}

// List returns vehicles matching the filter plus the total count.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Vehicle, int, error) {
	conds := []string{"1=1"}
	args := []any{}
	idx := 1
	if filter.TenantID != nil {
		conds = append(conds, fmt.Sprintf("tenant_id = $%d", idx))
		args = append(args, *filter.TenantID)
		idx++
	}
	if filter.Status != nil {
		conds = append(conds, fmt.Sprintf("status = $%d", idx))
		args = append(args, *filter.Status)
		idx++
	}
	if filter.Type != nil {
		conds = append(conds, fmt.Sprintf("type = $%d", idx))
		args = append(args, *filter.Type)
		idx++
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vehicles WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM vehicles WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, vehicleColumns, where, idx, idx+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Vehicle, 0, limit)
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *v)
	}
	return out, total, rows.Err()
}

// Update rewrites the mutable columns of a vehicle.
func (r *PGRepository) Update(ctx context.Context, v *Vehicle) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE vehicles
		SET plate_number = $2, vin = $3, make = $4, model = $5, year = $6,
		    type = $7, status = $8, odometer_km = $9, updated_at = NOW()
		WHERE id = $1`,
		v.ID, v.PlateNumber, v.VIN, v.Make, v.Model, v.Year, v.Type, v.Status, v.OdometerKM,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: vehicle %s", shared.ErrNotFound, v.ID)
	}
	return nil
}

// Delete removes a vehicle row.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM vehicles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: vehicle %s", shared.ErrNotFound, id)
	}
	return nil
}

// ExistsByPlateOrVIN reports whether another vehicle already uses the plate or VIN.
func (r *PGRepository) ExistsByPlateOrVIN(ctx context.Context, plate, vin string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vehicles WHERE plate_number = $1 OR vin = $2)`, plate, vin).Scan(&exists)
	return exists, err
}

func scanVehicle(row pgx.Row) (*Vehicle, error) {
	var v Vehicle
	if err := row.Scan(
		&v.ID, &v.PlateNumber, &v.VIN, &v.Make, &v.Model, &v.Year, &v.Type, &v.Status,
		&v.TenantID, &v.OdometerKM, &v.CreatedAt, &v.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &v, nil
}
