package rides

import (
	"context"
	"sync"
	"time"

	"github.com/dheerajbunny/gocomet-ride/internal/apperrors"
	"github.com/dheerajbunny/gocomet-ride/internal/models"
	"github.com/dheerajbunny/gocomet-ride/pkg/utils"
)

// memStore is an in-memory Store with the same transition rules as the
// SQL implementation. The single mutex stands in for row locks, which
// is enough to make the concurrency tests meaningful.
type memStore struct {
	mu      sync.Mutex
	riders  map[uint]*models.Rider
	drivers map[uint]*models.Driver
	rides   map[uint]*models.Ride
	trips   map[uint]*models.Trip
	nextID  uint
}

func newMemStore() *memStore {
	return &memStore{
		riders:  make(map[uint]*models.Rider),
		drivers: make(map[uint]*models.Driver),
		rides:   make(map[uint]*models.Ride),
		trips:   make(map[uint]*models.Trip),
	}
}

func (m *memStore) id() uint {
	m.nextID++
	return m.nextID
}

func (m *memStore) UpsertRider(_ context.Context, rider *models.Rider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.riders {
		if r.Phone == rider.Phone {
			r.Name = rider.Name
			*rider = *r
			return nil
		}
	}
	rider.ID = m.id()
	cp := *rider
	m.riders[rider.ID] = &cp
	return nil
}

func (m *memStore) GetRider(_ context.Context, id uint) (*models.Rider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.riders[id]
	if !ok {
		return nil, apperrors.NotFound("rider %d", id)
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) UpsertDriver(_ context.Context, driver *models.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.drivers {
		if d.Phone == driver.Phone {
			d.Name = driver.Name
			*driver = *d
			return nil
		}
	}
	driver.ID = m.id()
	cp := *driver
	m.drivers[driver.ID] = &cp
	return nil
}

func (m *memStore) GetDriver(_ context.Context, id uint) (*models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, apperrors.NotFound("driver %d", id)
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) SetDriverStatus(_ context.Context, driverID uint, status string) (*models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok {
		return nil, apperrors.NotFound("driver %d", driverID)
	}
	if d.Status == models.DriverStatusOnTrip {
		return nil, apperrors.Conflict("driver %d is on a trip", driverID)
	}
	d.Status = status
	cp := *d
	return &cp, nil
}

func (m *memStore) UpdateDriverLocation(_ context.Context, driverID uint, lat, lng float64) (*models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok {
		return nil, apperrors.NotFound("driver %d", driverID)
	}
	now := time.Now()
	d.Latitude = &lat
	d.Longitude = &lng
	d.LastLocationUpdate = &now
	cp := *d
	return &cp, nil
}

func (m *memStore) AvailableDrivers(_ context.Context, tier string) ([]models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Driver
	for _, d := range m.drivers {
		if d.Status == models.DriverStatusAvailable && d.Tier == tier && d.HasLocation() {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memStore) CreateRide(_ context.Context, ride *models.Ride) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ride.IdempotencyKey != nil {
		for _, r := range m.rides {
			if r.IdempotencyKey != nil && *r.IdempotencyKey == *ride.IdempotencyKey {
				*ride = *r
				return false, nil
			}
		}
	}
	ride.ID = m.id()
	ride.UpdatedAt = time.Now()
	cp := *ride
	m.rides[ride.ID] = &cp
	return true, nil
}

func (m *memStore) GetRide(_ context.Context, id uint) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, apperrors.NotFound("ride %d", id)
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) GetTrip(_ context.Context, id uint) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr, ok := m.trips[id]
	if !ok {
		return nil, apperrors.NotFound("trip %d", id)
	}
	cp := *tr
	return &cp, nil
}

func (m *memStore) MarkSearching(_ context.Context, rideID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return apperrors.NotFound("ride %d", rideID)
	}
	if r.Status == models.RideStatusSearching {
		return nil
	}
	if !models.CanTransition(r.Status, models.RideStatusSearching) {
		return apperrors.Conflict("ride %d is '%s', not dispatchable", rideID, r.Status)
	}
	r.Status = models.RideStatusSearching
	r.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) CancelSearch(_ context.Context, rideID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return apperrors.NotFound("ride %d", rideID)
	}
	if r.Status != models.RideStatusSearching {
		return apperrors.Conflict("ride %d is '%s', not searching", rideID, r.Status)
	}
	r.Status = models.RideStatusCancelled
	r.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) AssignDriver(_ context.Context, rideID, driverID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return apperrors.NotFound("ride %d", rideID)
	}
	if r.Status != models.RideStatusSearching {
		return apperrors.Conflict("ride %d is '%s', not searching", rideID, r.Status)
	}
	d, ok := m.drivers[driverID]
	if !ok {
		return apperrors.NotFound("driver %d", driverID)
	}
	if d.Status != models.DriverStatusAvailable {
		return apperrors.ErrDriverUnavailable
	}
	d.Status = models.DriverStatusOnTrip
	r.DriverID = &d.ID
	r.Status = models.RideStatusMatched
	r.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) AcceptRide(_ context.Context, rideID, driverID uint) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, apperrors.NotFound("ride %d", rideID)
	}
	if r.DriverID == nil || *r.DriverID != driverID {
		return nil, apperrors.NotFound("ride %d not assigned to driver %d", rideID, driverID)
	}
	if r.Status != models.RideStatusMatched {
		return nil, apperrors.Conflict("cannot accept ride in '%s' state", r.Status)
	}
	r.Status = models.RideStatusAccepted
	r.UpdatedAt = time.Now()
	now := time.Now()
	trip := &models.Trip{RideID: rideID, StartedAt: &now}
	trip.ID = m.id()
	m.trips[trip.ID] = trip
	cp := *trip
	return &cp, nil
}

func (m *memStore) StartTrip(_ context.Context, tripID uint) (*models.Trip, *models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ride, err := m.tripAndRide(tripID)
	if err != nil {
		return nil, nil, err
	}
	switch ride.Status {
	case models.RideStatusAccepted, models.RideStatusInProgress:
		now := time.Now()
		trip.StartedAt = &now
	case models.RideStatusPaused:
		trip.PausedAt = nil
	default:
		return nil, nil, apperrors.Conflict("cannot start trip in ride state '%s'", ride.Status)
	}
	ride.Status = models.RideStatusInProgress
	ride.UpdatedAt = time.Now()
	tc, rc := *trip, *ride
	return &tc, &rc, nil
}

func (m *memStore) PauseTrip(_ context.Context, tripID uint) (*models.Trip, *models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ride, err := m.tripAndRide(tripID)
	if err != nil {
		return nil, nil, err
	}
	if ride.Status != models.RideStatusPaused {
		if ride.Status != models.RideStatusInProgress {
			return nil, nil, apperrors.Conflict("cannot pause trip in ride state '%s'", ride.Status)
		}
		now := time.Now()
		trip.PausedAt = &now
		ride.Status = models.RideStatusPaused
		ride.UpdatedAt = time.Now()
	}
	tc, rc := *trip, *ride
	return &tc, &rc, nil
}

func (m *memStore) CompleteTrip(_ context.Context, tripID uint, distanceKm, durationMinutes float64) (*models.Trip, *models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ride, err := m.tripAndRide(tripID)
	if err != nil {
		return nil, nil, err
	}
	if ride.Status != models.RideStatusInProgress && ride.Status != models.RideStatusPaused {
		return nil, nil, apperrors.Conflict("cannot end trip in ride state '%s'", ride.Status)
	}
	// Guards before mutations so a failed completion leaves no partial
	// state, matching the SQL store's rollback.
	if ride.DriverID == nil {
		return nil, nil, apperrors.Conflict("ride %d has no assigned driver", ride.ID)
	}
	fare := utils.CalculateFare(ride.Tier, distanceKm, durationMinutes, ride.SurgeMultiplier)
	now := time.Now()
	trip.EndedAt = &now
	trip.DistanceKm = distanceKm
	trip.DurationMinutes = durationMinutes
	trip.Fare = &fare
	ride.Status = models.RideStatusCompleted
	ride.FinalFare = &fare
	ride.UpdatedAt = now
	if d, ok := m.drivers[*ride.DriverID]; ok {
		d.Status = models.DriverStatusAvailable
	}
	tc, rc := *trip, *ride
	return &tc, &rc, nil
}

func (m *memStore) StalledDispatch(_ context.Context, olderThan time.Duration) ([]models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []models.Ride
	for _, r := range m.rides {
		stuck := r.Status == models.RideStatusRequested || r.Status == models.RideStatusSearching
		if stuck && r.UpdatedAt.Before(cutoff) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) tripAndRide(tripID uint) (*models.Trip, *models.Ride, error) {
	trip, ok := m.trips[tripID]
	if !ok {
		return nil, nil, apperrors.NotFound("trip %d", tripID)
	}
	ride, ok := m.rides[trip.RideID]
	if !ok {
		return nil, nil, apperrors.NotFound("ride %d", trip.RideID)
	}
	return trip, ride, nil
}
