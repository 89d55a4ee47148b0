package models

import (
	"time"

	"gorm.io/gorm"
)

// Driver represents a driver and their last known position
type Driver struct {
	gorm.Model
	Name               string     `json:"name" gorm:"not null"`
	Phone              string     `json:"phone" gorm:"not null;uniqueIndex"`
	Tier               string     `json:"tier" gorm:"not null;default:'standard'"`
	Status             string     `json:"status" gorm:"not null;default:'offline'"`
	Latitude           *float64   `json:"lat,omitempty"`
	Longitude          *float64   `json:"lng,omitempty"`
	LastLocationUpdate *time.Time `json:"lastLocationUpdate,omitempty"`
}

// TableName specifies the table name
func (Driver) TableName() string {
	return "drivers"
}

// HasLocation reports whether the driver has ever reported a position.
func (d *Driver) HasLocation() bool {
	return d.Latitude != nil && d.Longitude != nil
}

// DriverStatus constants
const (
	DriverStatusOffline   = "offline"
	DriverStatusAvailable = "available"
	DriverStatusOnTrip    = "on_trip"
)

// Tier constants
const (
	TierStandard = "standard"
	TierPremium  = "premium"
	TierXL       = "xl"
)

// ValidTier reports whether t is a recognized service tier.
func ValidTier(t string) bool {
	switch t {
	case TierStandard, TierPremium, TierXL:
		return true
	}
	return false
}
