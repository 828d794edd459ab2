package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetgate/fleetgate/internal/shared"
)

// Repository defines credential lookups for the identity layer.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*Account, error)
	TouchLastLogin(ctx context.Context, accountID string) error
}

// PGRepository is the PostgreSQL-backed Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByUsername loads an account by username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*Account, error) {
	var acc Account
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, active, tenant_id, last_login FROM users WHERE username = $1`,
		username,
	).Scan(&acc.ID, &acc.Username, &acc.Email, &acc.PasswordHash, &acc.Active, &acc.TenantID, &acc.LastLogin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	return &acc, nil
}

// TouchLastLogin records a successful login.
func (r *PGRepository) TouchLastLogin(ctx context.Context, accountID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login = NOW() WHERE id = $1`, accountID)
	return err
}
