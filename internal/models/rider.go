package models

import (
	"gorm.io/gorm"
)

// Rider represents a registered rider. Re-registering the same phone
// updates the name instead of creating a new identity.
type Rider struct {
	gorm.Model
	Name  string  `json:"name" gorm:"not null"`
	Phone string  `json:"phone" gorm:"not null;uniqueIndex"`
	Email *string `json:"email,omitempty"`
}

// TableName specifies the table name
func (Rider) TableName() string {
	return "riders"
}
