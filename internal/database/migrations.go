package database

import (
	"gorm.io/gorm"

	"github.com/dheerajbunny/gocomet-ride/internal/models"
)

func RunMigrations(db *gorm.DB) error {
	// Create tables if they don't exist
	err := db.AutoMigrate(
		&models.Rider{},
		&models.Driver{},
		&models.Ride{},
		&models.Trip{},
		&models.Payment{},
	)
	if err != nil {
		return err
	}

	// The dispatch scan and the matcher candidate query are the two hot
	// reads; AutoMigrate does not cover these composite indexes.
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_rides_status_updated ON rides (status, updated_at)`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_drivers_status_tier ON drivers (status, tier)`).Error; err != nil {
		return err
	}

	return nil
}
