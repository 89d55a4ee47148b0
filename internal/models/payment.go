package models

import (
	"gorm.io/gorm"
)

// Payment represents a settlement attempt for a completed ride
type Payment struct {
	gorm.Model
	RideID         uint    `json:"rideId" gorm:"not null;index"`
	RiderID        uint    `json:"riderId" gorm:"not null"`
	Amount         float64 `json:"amount" gorm:"not null"`
	Method         string  `json:"method" gorm:"not null"`
	Status         string  `json:"status" gorm:"not null;default:'pending'"`
	PSPRef         *string `json:"pspRef,omitempty"`
	IdempotencyKey *string `json:"idempotencyKey,omitempty" gorm:"uniqueIndex"`
	Ride           *Ride   `json:"ride,omitempty" gorm:"foreignKey:RideID"`
	Rider          *Rider  `json:"rider,omitempty" gorm:"foreignKey:RiderID"`
}

// TableName specifies the table name
func (Payment) TableName() string {
	return "payments"
}

// PaymentStatus constants
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusSuccess    = "success"
	PaymentStatusFailed     = "failed"
)

// TerminalPaymentStatus reports whether a payment has reached its final state.
func TerminalPaymentStatus(s string) bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFailed
}
