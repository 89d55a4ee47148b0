package models

import (
	"gorm.io/gorm"
)

// Ride represents a ride request and its lifecycle state
type Ride struct {
	gorm.Model
	RiderID         uint     `json:"riderId" gorm:"not null;index"`
	DriverID        *uint    `json:"driverId,omitempty"`
	PickupLat       float64  `json:"pickupLat" gorm:"not null"`
	PickupLng       float64  `json:"pickupLng" gorm:"not null"`
	DestLat         float64  `json:"destLat" gorm:"not null"`
	DestLng         float64  `json:"destLng" gorm:"not null"`
	PickupAddr      string   `json:"pickupAddress,omitempty"`
	DestAddr        string   `json:"destAddress,omitempty"`
	Tier            string   `json:"tier" gorm:"not null;default:'standard'"`
	PaymentMethod   string   `json:"paymentMethod" gorm:"not null;default:'card'"`
	Status          string   `json:"status" gorm:"not null;default:'requested';index"`
	SurgeMultiplier float64  `json:"surgeMultiplier" gorm:"not null;default:1.0"`
	EstimatedFare   float64  `json:"estimatedFare"`
	FinalFare       *float64 `json:"finalFare,omitempty"`
	IdempotencyKey  *string  `json:"idempotencyKey,omitempty" gorm:"uniqueIndex"`
	Rider           *Rider   `json:"rider,omitempty" gorm:"foreignKey:RiderID"`
	Driver          *Driver  `json:"driver,omitempty" gorm:"foreignKey:DriverID"`
}

// TableName specifies the table name
func (Ride) TableName() string {
	return "rides"
}

// RideStatus constants
const (
	RideStatusRequested  = "requested"
	RideStatusSearching  = "searching"
	RideStatusMatched    = "matched"
	RideStatusAccepted   = "accepted"
	RideStatusInProgress = "in_progress"
	RideStatusPaused     = "paused"
	RideStatusCompleted  = "completed"
	RideStatusCancelled  = "cancelled"
)

// AllowedTransitions encodes the ride state flow. completed and
// cancelled are terminal.
var AllowedTransitions = map[string][]string{
	RideStatusRequested:  {RideStatusSearching, RideStatusCancelled},
	RideStatusSearching:  {RideStatusMatched, RideStatusCancelled},
	RideStatusMatched:    {RideStatusAccepted, RideStatusCancelled},
	RideStatusAccepted:   {RideStatusInProgress},
	RideStatusInProgress: {RideStatusPaused, RideStatusCompleted},
	RideStatusPaused:     {RideStatusInProgress, RideStatusCompleted},
}

// CanTransition reports whether a ride may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TerminalStatus reports whether a ride status admits no further transitions.
func TerminalStatus(s string) bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// PaymentMethod constants
const (
	PaymentMethodCard   = "card"
	PaymentMethodCash   = "cash"
	PaymentMethodWallet = "wallet"
)

// ValidPaymentMethod reports whether m is an accepted payment method.
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodCard, PaymentMethodCash, PaymentMethodWallet:
		return true
	}
	return false
}
