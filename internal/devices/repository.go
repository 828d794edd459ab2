package devices

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

// PGRepository persists devices in Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository returns a Postgres-backed device repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const deviceColumns = `id, imei, model, firmware_version, sim_number, status, tenant_id, registered_by_sms, installer_phone, last_heartbeat, expiry_at, installed_at, created_at, updated_at`

// Create inserts a device row.
func (r *PGRepository) Create(ctx context.Context, d *Device) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO devices (id, imei, model, firmware_version, sim_number, status, tenant_id, registered_by_sms, installer_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		d.ID, d.IMEI, d.Model, d.FirmwareVersion, d.SIMNumber, d.Status, d.TenantID, d.RegisteredBySMS, d.InstallerPhone,
	)
	if err := row.Scan(&d.CreatedAt, &d.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return shared.ErrConflict
		}
		return err
	}
	return nil
}

// GetByID fetches a single device.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Device, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: device %s", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return d, nil
}

// List returns devices matching the filter plus the total count.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Device, int, error) {
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
	if filter.IMEI != "" {
		conds = append(conds, fmt.Sprintf("imei = $%d", idx))
		args = append(args, filter.IMEI)
		idx++
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM devices WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM devices WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, deviceColumns, where, idx, idx+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Device, 0, limit)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

// Update rewrites the mutable columns of a device.
func (r *PGRepository) Update(ctx context.Context, d *Device) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE devices
		SET imei = $2, model = $3, firmware_version = $4, sim_number = $5, status = $6,
		    installer_phone = $7, last_heartbeat = $8, expiry_at = $9, installed_at = $10, updated_at = NOW()
		WHERE id = $1`,
		d.ID, d.IMEI, d.Model, d.FirmwareVersion, d.SIMNumber, d.Status,
		d.InstallerPhone, d.LastHeartbeat, d.ExpiryAt, d.InstalledAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: device %s", shared.ErrNotFound, d.ID)
	}
	return nil
}

// Delete removes a device row.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: device %s", shared.ErrNotFound, id)
	}
	return nil
}

// ExistsByIMEI reports whether a device with the IMEI is already registered.
func (r *PGRepository) ExistsByIMEI(ctx context.Context, imei string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM devices WHERE imei = $1)`, imei).Scan(&exists)
	return exists, err
}

func scanDevice(row pgx.Row) (*Device, error) {
	var d Device
	if err := row.Scan(
		&d.ID, &d.IMEI, &d.Model, &d.FirmwareVersion, &d.SIMNumber, &d.Status, &d.TenantID,
		&d.RegisteredBySMS, &d.InstallerPhone, &d.LastHeartbeat, &d.ExpiryAt, &d.InstalledAt,
		&d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}
