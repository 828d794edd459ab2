package permissions

import (
	"time"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate/internal/authz"
)

// Record is the administrative view of a permission row.
type Record struct {
	ID            uuid.UUID  `json:"id"`
	Code          authz.Code `json:"code"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Category      string     `json:"category,omitempty"`
	Active        bool       `json:"active"`
	RequiresScope bool       `json:"requires_scope"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"-"`
}
