package vehicles

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a vehicle.
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusInactive    Status = "INACTIVE"
	StatusMaintenance Status = "MAINTENANCE"
	StatusRetired     Status = "RETIRED"
)

// VehicleType classifies the vehicle.
type VehicleType string

const (
	TypeCar        VehicleType = "CAR"
	TypeTruck      VehicleType = "TRUCK"
	TypeVan        VehicleType = "VAN"
	TypeMotorcycle VehicleType = "MOTORCYCLE"
	TypeBus        VehicleType = "BUS"
	TypeOther      VehicleType = "OTHER"
)

// Vehicle is a tracked fleet asset.
type Vehicle struct {
	ID           uuid.UUID   `json:"id"`
	PlateNumber  string      `json:"plate_number"`
	VIN          string      `json:"vin"`
	Make         string      `json:"make"`
	Model        string      `json:"model"`
	Year         int         `json:"year"`
	Type         VehicleType `json:"type"`
	Status       Status      `json:"status"`
	TenantID     *uuid.UUID  `json:"tenant_id,omitempty"`
	OdometerKM   float64     `json:"odometer_km"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}
