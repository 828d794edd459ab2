// Package devices manages tracker hardware records.
package devices

import (
	"time"

	"github.com/google/uuid"
)

// Status is the device lifecycle state.
type Status string

// Device lifecycle states. DECOMMISSIONED devices cannot be assigned.
const (
	StatusRegistered     Status = "REGISTERED"
	StatusActive         Status = "ACTIVE"
	StatusInactive       Status = "INACTIVE"
	StatusMaintenance    Status = "MAINTENANCE"
	StatusDecommissioned Status = "DECOMMISSIONED"
)

// Device is a tracking unit installed in a vehicle.
type Device struct {
	ID              uuid.UUID
	IMEI            string
	Model           string
	FirmwareVersion string
	SIMNumber       string
	Status          Status
	TenantID        *uuid.UUID
	RegisteredBySMS bool
	InstallerPhone  string
	LastHeartbeat   *time.Time
	ExpiryAt        *time.Time
	InstalledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
