package models

import (
	"time"

	"gorm.io/gorm"
)

// Trip tracks the on-road portion of a ride. Created when the assigned
// driver accepts, so a ride cancelled while searching never acquires one.
type Trip struct {
	gorm.Model
	RideID          uint       `json:"rideId" gorm:"not null;uniqueIndex"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	PausedAt        *time.Time `json:"pausedAt,omitempty"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	DistanceKm      float64    `json:"distanceKm" gorm:"not null;default:0"`
	DurationMinutes float64    `json:"durationMinutes" gorm:"not null;default:0"`
	Fare            *float64   `json:"fare,omitempty"`
	Ride            *Ride      `json:"ride,omitempty" gorm:"foreignKey:RideID"`
}

// TableName specifies the table name
func (Trip) TableName() string {
	return "trips"
}
