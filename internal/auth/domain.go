// Package auth is the identity layer: credential verification, access token
// issuance, and the middleware that turns a bearer token into a Principal.
// The authorization core never sees tokens, only the (userID, tenantID) pair.
package auth

import (
	"time"

	"github.com/google/uuid"
)

// Account is a login-capable user record.
type Account struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	Active       bool
	TenantID     *uuid.UUID
	LastLogin    *time.Time
}
