package users

import (
	"time"

	"github.com/google/uuid"
)

// Limits on asset sharing. Exceeding either is a lifecycle violation.
const (
	MaxUsersPerDevice  = 10
	MaxUsersPerVehicle = 5
)

// User is an account managed through the admin surface. PasswordHash is
// never serialized.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	Phone        string     `json:"phone,omitempty"`
	PasswordHash string     `json:"-"`
	Active       bool       `json:"active"`
	TenantID     *uuid.UUID `json:"tenant_id,omitempty"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"-"`
}
