package rides

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dheerajbunny/gocomet-ride/internal/apperrors"
	"github.com/dheerajbunny/gocomet-ride/internal/models"
	"github.com/dheerajbunny/gocomet-ride/pkg/utils"
)

// Store is the persistence boundary of the lifecycle engine. Every
// method that touches more than one record executes as a single atomic
// unit; rows are locked ride before driver to keep a fixed lock order
// across transactions.
type Store interface {
	UpsertRider(ctx context.Context, rider *models.Rider) error
	GetRider(ctx context.Context, id uint) (*models.Rider, error)

	UpsertDriver(ctx context.Context, driver *models.Driver) error
	GetDriver(ctx context.Context, id uint) (*models.Driver, error)
	SetDriverStatus(ctx context.Context, driverID uint, status string) (*models.Driver, error)
	UpdateDriverLocation(ctx context.Context, driverID uint, lat, lng float64) (*models.Driver, error)
	AvailableDrivers(ctx context.Context, tier string) ([]models.Driver, error)

	// CreateRide persists a new ride. For rides carrying an idempotency
	// key a conflicting insert resolves to the existing row; the bool
	// reports whether a new row was actually created.
	CreateRide(ctx context.Context, ride *models.Ride) (bool, error)
	GetRide(ctx context.Context, id uint) (*models.Ride, error)
	GetTrip(ctx context.Context, id uint) (*models.Trip, error)

	MarkSearching(ctx context.Context, rideID uint) error
	CancelSearch(ctx context.Context, rideID uint) error
	AssignDriver(ctx context.Context, rideID, driverID uint) error
	AcceptRide(ctx context.Context, rideID, driverID uint) (*models.Trip, error)
	StartTrip(ctx context.Context, tripID uint) (*models.Trip, *models.Ride, error)
	PauseTrip(ctx context.Context, tripID uint) (*models.Trip, *models.Ride, error)
	CompleteTrip(ctx context.Context, tripID uint, distanceKm, durationMinutes float64) (*models.Trip, *models.Ride, error)

	StalledDispatch(ctx context.Context, olderThan time.Duration) ([]models.Ride, error)
}

// GormStore implements Store on PostgreSQL via GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps a connected gorm DB.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) UpsertRider(ctx context.Context, rider *models.Rider) error {
	// Re-registering the same phone updates the name, not the identity.
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).Create(rider).Error
}

func (s *GormStore) GetRider(ctx context.Context, id uint) (*models.Rider, error) {
	var rider models.Rider
	if err := s.db.WithContext(ctx).First(&rider, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("rider %d", id)
		}
		return nil, err
	}
	return &rider, nil
}

func (s *GormStore) UpsertDriver(ctx context.Context, driver *models.Driver) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).Create(driver).Error
}

func (s *GormStore) GetDriver(ctx context.Context, id uint) (*models.Driver, error) {
	var driver models.Driver
	if err := s.db.WithContext(ctx).First(&driver, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("driver %d", id)
		}
		return nil, err
	}
	return &driver, nil
}

// SetDriverStatus flips a driver between offline and available. A driver
// on a trip is released only by trip completion, never by this command.
func (s *GormStore) SetDriverStatus(ctx context.Context, driverID uint, status string) (*models.Driver, error) {
	var driver *models.Driver
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := lockDriver(tx, driverID)
		if err != nil {
			return err
		}
		if d.Status == models.DriverStatusOnTrip {
			return apperrors.Conflict("driver %d is on a trip", driverID)
		}
		d.Status = status
		if err := tx.Save(d).Error; err != nil {
			return err
		}
		driver = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return driver, nil
}

// UpdateDriverLocation is the high-frequency path: a single-row update,
// never a status change.
func (s *GormStore) UpdateDriverLocation(ctx context.Context, driverID uint, lat, lng float64) (*models.Driver, error) {
	var driver models.Driver
	if err := s.db.WithContext(ctx).First(&driver, driverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("driver %d", driverID)
		}
		return nil, err
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&driver).Updates(map[string]interface{}{
		"latitude":             lat,
		"longitude":            lng,
		"last_location_update": now,
	}).Error; err != nil {
		return nil, err
	}

	driver.Latitude = &lat
	driver.Longitude = &lng
	driver.LastLocationUpdate = &now
	return &driver, nil
}

func (s *GormStore) AvailableDrivers(ctx context.Context, tier string) ([]models.Driver, error) {
	var drivers []models.Driver
	err := s.db.WithContext(ctx).
		Where("status = ? AND tier = ? AND latitude IS NOT NULL AND longitude IS NOT NULL",
			models.DriverStatusAvailable, tier).
		Order("id").
		Find(&drivers).Error
	return drivers, err
}

func (s *GormStore) CreateRide(ctx context.Context, ride *models.Ride) (bool, error) {
	if ride.IdempotencyKey == nil {
		return true, s.db.WithContext(ctx).Create(ride).Error
	}

	// A duplicate token must not create a second row even when two
	// identical requests race: the conflicting insert is a no-op and we
	// hand back the row that won.
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(ride)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		var existing models.Ride
		if err := s.db.WithContext(ctx).
			Where("idempotency_key = ?", *ride.IdempotencyKey).
			First(&existing).Error; err != nil {
			return false, err
		}
		*ride = existing
		return false, nil
	}
	return true, nil
}

func (s *GormStore) GetRide(ctx context.Context, id uint) (*models.Ride, error) {
	var ride models.Ride
	if err := s.db.WithContext(ctx).First(&ride, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("ride %d", id)
		}
		return nil, err
	}
	return &ride, nil
}

func (s *GormStore) GetTrip(ctx context.Context, id uint) (*models.Trip, error) {
	var trip models.Trip
	if err := s.db.WithContext(ctx).First(&trip, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("trip %d", id)
		}
		return nil, err
	}
	return &trip, nil
}

// MarkSearching moves a ride into searching when dispatch picks it up.
// A ride already searching stays put so the reaper can re-enqueue it.
func (s *GormStore) MarkSearching(ctx context.Context, rideID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ride, err := lockRide(tx, rideID)
		if err != nil {
			return err
		}
		if ride.Status == models.RideStatusSearching {
			return nil
		}
		if !models.CanTransition(ride.Status, models.RideStatusSearching) {
			return apperrors.Conflict("ride %d is '%s', not dispatchable", rideID, ride.Status)
		}
		return tx.Model(ride).Update("status", models.RideStatusSearching).Error
	})
}

// CancelSearch cancels a ride whose driver search was exhausted.
func (s *GormStore) CancelSearch(ctx context.Context, rideID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ride, err := lockRide(tx, rideID)
		if err != nil {
			return err
		}
		if ride.Status != models.RideStatusSearching {
			return apperrors.Conflict("ride %d is '%s', not searching", rideID, ride.Status)
		}
		return tx.Model(ride).Update("status", models.RideStatusCancelled).Error
	})
}

// AssignDriver reserves a driver for a searching ride. The driver row is
// re-checked under lock so two dispatchers racing for the same driver
// cannot both win.
func (s *GormStore) AssignDriver(ctx context.Context, rideID, driverID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ride, err := lockRide(tx, rideID)
		if err != nil {
			return err
		}
		if ride.Status != models.RideStatusSearching {
			return apperrors.Conflict("ride %d is '%s', not searching", rideID, ride.Status)
		}

		driver, err := lockDriver(tx, driverID)
		if err != nil {
			return err
		}
		if driver.Status != models.DriverStatusAvailable {
			return apperrors.ErrDriverUnavailable
		}

		if err := tx.Model(driver).Update("status", models.DriverStatusOnTrip).Error; err != nil {
			return err
		}
		return tx.Model(ride).Updates(map[string]interface{}{
			"driver_id": driverID,
			"status":    models.RideStatusMatched,
		}).Error
	})
}

// AcceptRide is driver-initiated: the ride must be matched and assigned
// to the accepting driver. The trip record is created and its clock
// started in the same transaction as the status change.
func (s *GormStore) AcceptRide(ctx context.Context, rideID, driverID uint) (*models.Trip, error) {
	var trip models.Trip
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ride, err := lockRide(tx, rideID)
		if err != nil {
			return err
		}
		if ride.DriverID == nil || *ride.DriverID != driverID {
			return apperrors.NotFound("ride %d not assigned to driver %d", rideID, driverID)
		}
		if ride.Status != models.RideStatusMatched {
			return apperrors.Conflict("cannot accept ride in '%s' state", ride.Status)
		}

		if err := tx.Model(ride).Update("status", models.RideStatusAccepted).Error; err != nil {
			return err
		}

		now := time.Now()
		trip = models.Trip{RideID: rideID, StartedAt: &now}
		return tx.Create(&trip).Error
	})
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

// StartTrip moves an accepted ride into in_progress, restamping the trip
// start time. It also resumes a paused ride.
func (s *GormStore) StartTrip(ctx context.Context, tripID uint) (*models.Trip, *models.Ride, error) {
	return s.tripTransition(ctx, tripID, func(tx *gorm.DB, trip *models.Trip, ride *models.Ride) error {
		switch ride.Status {
		case models.RideStatusAccepted, models.RideStatusInProgress:
			now := time.Now()
			if err := tx.Model(trip).Update("started_at", now).Error; err != nil {
				return err
			}
			trip.StartedAt = &now
		case models.RideStatusPaused:
			if err := tx.Model(trip).Update("paused_at", nil).Error; err != nil {
				return err
			}
			trip.PausedAt = nil
		default:
			return apperrors.Conflict("cannot start trip in ride state '%s'", ride.Status)
		}
		if err := tx.Model(ride).Update("status", models.RideStatusInProgress).Error; err != nil {
			return err
		}
		ride.Status = models.RideStatusInProgress
		return nil
	})
}

// PauseTrip parks an in-progress ride. Pausing has no fare impact.
func (s *GormStore) PauseTrip(ctx context.Context, tripID uint) (*models.Trip, *models.Ride, error) {
	return s.tripTransition(ctx, tripID, func(tx *gorm.DB, trip *models.Trip, ride *models.Ride) error {
		if ride.Status == models.RideStatusPaused {
			return nil
		}
		if ride.Status != models.RideStatusInProgress {
			return apperrors.Conflict("cannot pause trip in ride state '%s'", ride.Status)
		}
		now := time.Now()
		if err := tx.Model(trip).Update("paused_at", now).Error; err != nil {
			return err
		}
		trip.PausedAt = &now
		if err := tx.Model(ride).Update("status", models.RideStatusPaused).Error; err != nil {
			return err
		}
		ride.Status = models.RideStatusPaused
		return nil
	})
}

// CompleteTrip ends a trip: fare, timestamps, ride final state and the
// driver's release back to available all commit together or not at all.
func (s *GormStore) CompleteTrip(ctx context.Context, tripID uint, distanceKm, durationMinutes float64) (*models.Trip, *models.Ride, error) {
	return s.tripTransition(ctx, tripID, func(tx *gorm.DB, trip *models.Trip, ride *models.Ride) error {
		if ride.Status != models.RideStatusInProgress && ride.Status != models.RideStatusPaused {
			return apperrors.Conflict("cannot end trip in ride state '%s'", ride.Status)
		}
		if ride.DriverID == nil {
			return apperrors.Conflict("ride %d has no assigned driver", ride.ID)
		}

		fare := utils.CalculateFare(ride.Tier, distanceKm, durationMinutes, ride.SurgeMultiplier)
		now := time.Now()

		if err := tx.Model(trip).Updates(map[string]interface{}{
			"ended_at":         now,
			"distance_km":      distanceKm,
			"duration_minutes": durationMinutes,
			"fare":             fare,
		}).Error; err != nil {
			return err
		}
		trip.EndedAt = &now
		trip.DistanceKm = distanceKm
		trip.DurationMinutes = durationMinutes
		trip.Fare = &fare

		if err := tx.Model(ride).Updates(map[string]interface{}{
			"status":     models.RideStatusCompleted,
			"final_fare": fare,
		}).Error; err != nil {
			return err
		}
		ride.Status = models.RideStatusCompleted
		ride.FinalFare = &fare

		driver, err := lockDriver(tx, *ride.DriverID)
		if err != nil {
			return err
		}
		return tx.Model(driver).Update("status", models.DriverStatusAvailable).Error
	})
}

// StalledDispatch lists rides stuck in the dispatch pipeline. A ride
// can stall in requested as well as searching: a dropped queue job
// never reaches MarkSearching, so the scan must cover both.
func (s *GormStore) StalledDispatch(ctx context.Context, olderThan time.Duration) ([]models.Ride, error) {
	var stalled []models.Ride
	err := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]string{models.RideStatusRequested, models.RideStatusSearching},
			time.Now().Add(-olderThan)).
		Find(&stalled).Error
	return stalled, err
}

// tripTransition locks the trip and then its ride, applies fn and
// commits, returning the mutated records.
func (s *GormStore) tripTransition(ctx context.Context, tripID uint, fn func(tx *gorm.DB, trip *models.Trip, ride *models.Ride) error) (*models.Trip, *models.Ride, error) {
	var (
		trip models.Trip
		ride *models.Ride
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&trip, tripID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("trip %d", tripID)
			}
			return err
		}
		var err error
		ride, err = lockRide(tx, trip.RideID)
		if err != nil {
			return err
		}
		return fn(tx, &trip, ride)
	})
	if err != nil {
		return nil, nil, err
	}
	return &trip, ride, nil
}

func lockRide(tx *gorm.DB, rideID uint) (*models.Ride, error) {
	var ride models.Ride
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ride, rideID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("ride %d", rideID)
		}
		return nil, err
	}
	return &ride, nil
}

func lockDriver(tx *gorm.DB, driverID uint) (*models.Driver, error) {
	var driver models.Driver
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&driver, driverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("driver %d", driverID)
		}
		return nil, err
	}
	return &driver, nil
}
