package rides

import (
	"context"
	"encoding/json"
	"log"

	"github.com/dheerajbunny/gocomet-ride/internal/apperrors"
	"github.com/dheerajbunny/gocomet-ride/internal/models"
	"github.com/dheerajbunny/gocomet-ride/internal/observability"
	"github.com/dheerajbunny/gocomet-ride/internal/services"
	"github.com/dheerajbunny/gocomet-ride/pkg/utils"
)

// Surge resolves the demand multiplier for a pickup point.
type Surge interface {
	Multiplier(ctx context.Context, pickupLat, pickupLng float64) (float64, error)
}

// Idempotency replays a previously stored response for a client token.
type Idempotency interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, payload []byte) error
}

// DispatchQueue hands a freshly created ride to the async matcher.
type DispatchQueue interface {
	Enqueue(rideID uint, pickupLat, pickupLng float64, tier string)
}

// Service drives the ride lifecycle. Cache, Hub, Surge, Idem and
// Dispatch are all optional; a nil collaborator simply disables that
// side effect, which keeps the core testable against the store alone.
type Service struct {
	Store    Store
	Surge    Surge
	Idem     Idempotency
	Cache    *services.Cache
	Hub      *services.Hub
	Dispatch DispatchQueue
}

// CreateRideCommand is the validated input for ride creation.
type CreateRideCommand struct {
	RiderID        uint
	PickupLat      float64
	PickupLng      float64
	DestLat        float64
	DestLng        float64
	PickupAddr     string
	DestAddr       string
	Tier           string
	PaymentMethod  string
	IdempotencyKey string
}

// applyDefaults fills the optional request fields: standard tier, card
// payment.
func (cmd *CreateRideCommand) applyDefaults() {
	if cmd.Tier == "" {
		cmd.Tier = models.TierStandard
	}
	if cmd.PaymentMethod == "" {
		cmd.PaymentMethod = models.PaymentMethodCard
	}
}

func (cmd CreateRideCommand) validate() error {
	if cmd.RiderID == 0 {
		return apperrors.Validation("rider_id is required")
	}
	if !validCoords(cmd.PickupLat, cmd.PickupLng) || !validCoords(cmd.DestLat, cmd.DestLng) {
		return apperrors.Validation("coordinates out of range")
	}
	if !models.ValidTier(cmd.Tier) {
		return apperrors.Validation("unknown tier '%s'", cmd.Tier)
	}
	if !models.ValidPaymentMethod(cmd.PaymentMethod) {
		return apperrors.Validation("unknown payment method '%s'", cmd.PaymentMethod)
	}
	return nil
}

func validCoords(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// CreateRide quotes, persists and enqueues a new ride. A repeated
// idempotency key returns the original ride without a second quote or a
// second dispatch.
func (s *Service) CreateRide(ctx context.Context, cmd CreateRideCommand) (*models.Ride, error) {
	cmd.applyDefaults()
	if err := cmd.validate(); err != nil {
		return nil, err
	}
	if _, err := s.Store.GetRider(ctx, cmd.RiderID); err != nil {
		return nil, err
	}

	if cmd.IdempotencyKey != "" && s.Idem != nil {
		if payload, ok, err := s.Idem.Get(ctx, cmd.IdempotencyKey); err != nil {
			log.Printf("idempotency lookup failed for %q: %v", cmd.IdempotencyKey, err)
		} else if ok {
			var ride models.Ride
			if err := json.Unmarshal(payload, &ride); err == nil {
				return &ride, nil
			}
		}
	}

	surge := 1.0
	if s.Surge != nil {
		m, err := s.Surge.Multiplier(ctx, cmd.PickupLat, cmd.PickupLng)
		if err != nil {
			log.Printf("surge lookup failed, quoting at base rate: %v", err)
		} else {
			surge = m
		}
	}

	estimate := utils.EstimateFare(cmd.Tier, cmd.PickupLat, cmd.PickupLng, cmd.DestLat, cmd.DestLng, surge)

	ride := &models.Ride{
		RiderID:         cmd.RiderID,
		PickupLat:       cmd.PickupLat,
		PickupLng:       cmd.PickupLng,
		DestLat:         cmd.DestLat,
		DestLng:         cmd.DestLng,
		PickupAddr:      cmd.PickupAddr,
		DestAddr:        cmd.DestAddr,
		Tier:            cmd.Tier,
		PaymentMethod:   cmd.PaymentMethod,
		Status:          models.RideStatusRequested,
		SurgeMultiplier: surge,
		EstimatedFare:   estimate,
	}
	if cmd.IdempotencyKey != "" {
		key := cmd.IdempotencyKey
		ride.IdempotencyKey = &key
	}

	created, err := s.Store.CreateRide(ctx, ride)
	if err != nil {
		return nil, err
	}

	if cmd.IdempotencyKey != "" && s.Idem != nil {
		if payload, err := json.Marshal(ride); err == nil {
			if err := s.Idem.Save(ctx, cmd.IdempotencyKey, payload); err != nil {
				log.Printf("idempotency save failed for %q: %v", cmd.IdempotencyKey, err)
			}
		}
	}

	if created {
		observability.RidesCreated.Inc()
		if s.Dispatch != nil {
			s.Dispatch.Enqueue(ride.ID, ride.PickupLat, ride.PickupLng, ride.Tier)
		}
	}
	return ride, nil
}

// GetRide serves reads through the short-TTL snapshot cache.
func (s *Service) GetRide(ctx context.Context, rideID uint) (*models.Ride, error) {
	if s.Cache != nil {
		if ride, ok := s.Cache.GetRide(ctx, rideID); ok {
			return ride, nil
		}
	}
	ride, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		s.Cache.SetRide(ctx, ride)
	}
	return ride, nil
}

func (s *Service) GetTrip(ctx context.Context, tripID uint) (*models.Trip, error) {
	return s.Store.GetTrip(ctx, tripID)
}

// AcceptRide confirms the assignment on behalf of the matched driver and
// opens the trip record.
func (s *Service) AcceptRide(ctx context.Context, rideID, driverID uint) (*models.Trip, error) {
	trip, err := s.Store.AcceptRide(ctx, rideID, driverID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, rideID, models.RideStatusAccepted, &driverID, nil)
	return trip, nil
}

func (s *Service) StartTrip(ctx context.Context, tripID uint) (*models.Trip, error) {
	trip, ride, err := s.Store.StartTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, ride.ID, ride.Status, ride.DriverID, nil)
	return trip, nil
}

func (s *Service) PauseTrip(ctx context.Context, tripID uint) (*models.Trip, error) {
	trip, ride, err := s.Store.PauseTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, ride.ID, ride.Status, ride.DriverID, nil)
	return trip, nil
}

// EndTrip closes the trip with the actuals reported by the driver app.
func (s *Service) EndTrip(ctx context.Context, tripID uint, distanceKm, durationMinutes float64) (*models.Trip, *models.Ride, error) {
	if distanceKm < 0 || durationMinutes < 0 {
		return nil, nil, apperrors.Validation("distance and duration must be non-negative")
	}
	trip, ride, err := s.Store.CompleteTrip(ctx, tripID, distanceKm, durationMinutes)
	if err != nil {
		return nil, nil, err
	}
	s.notify(ctx, ride.ID, ride.Status, ride.DriverID, ride.FinalFare)
	if s.Cache != nil && ride.DriverID != nil {
		// Driver went back to available; the cached location snapshot
		// still says on_trip.
		s.Cache.InvalidateDriverLocation(ctx, *ride.DriverID)
	}
	return trip, ride, nil
}

// RegisterRider upserts a rider keyed by phone number.
func (s *Service) RegisterRider(ctx context.Context, rider *models.Rider) error {
	if rider.Name == "" || rider.Phone == "" {
		return apperrors.Validation("name and phone are required")
	}
	return s.Store.UpsertRider(ctx, rider)
}

func (s *Service) GetRider(ctx context.Context, id uint) (*models.Rider, error) {
	return s.Store.GetRider(ctx, id)
}

// RegisterDriver upserts a driver keyed by phone number.
func (s *Service) RegisterDriver(ctx context.Context, driver *models.Driver) error {
	if driver.Name == "" || driver.Phone == "" {
		return apperrors.Validation("name and phone are required")
	}
	if driver.Tier == "" {
		driver.Tier = models.TierStandard
	}
	if !models.ValidTier(driver.Tier) {
		return apperrors.Validation("unknown tier '%s'", driver.Tier)
	}
	if driver.Status == "" {
		driver.Status = models.DriverStatusOffline
	}
	return s.Store.UpsertDriver(ctx, driver)
}

func (s *Service) GetDriver(ctx context.Context, id uint) (*models.Driver, error) {
	return s.Store.GetDriver(ctx, id)
}

// SetDriverStatus toggles a driver between offline and available.
func (s *Service) SetDriverStatus(ctx context.Context, driverID uint, status string) (*models.Driver, error) {
	if status != models.DriverStatusAvailable && status != models.DriverStatusOffline {
		return nil, apperrors.Validation("status must be 'available' or 'offline'")
	}
	driver, err := s.Store.SetDriverStatus(ctx, driverID, status)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		s.Cache.InvalidateDriverLocation(ctx, driverID)
	}
	return driver, nil
}

// UpdateDriverLocation records a ping and refreshes the location cache.
func (s *Service) UpdateDriverLocation(ctx context.Context, driverID uint, lat, lng float64) (*models.Driver, error) {
	if !validCoords(lat, lng) {
		return nil, apperrors.Validation("coordinates out of range")
	}
	driver, err := s.Store.UpdateDriverLocation(ctx, driverID, lat, lng)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		if err := s.Cache.SetDriverLocation(ctx, driverID, lat, lng, driver.Tier, driver.Status); err != nil {
			log.Printf("driver %d location cache write failed: %v", driverID, err)
		}
	}
	return driver, nil
}

func (s *Service) notify(ctx context.Context, rideID uint, status string, driverID *uint, finalFare *float64) {
	if s.Cache != nil {
		s.Cache.InvalidateRide(ctx, rideID)
		if err := s.Cache.PublishRideUpdate(ctx, rideID, status); err != nil {
			log.Printf("ride %d update publish failed: %v", rideID, err)
		}
	}
	if s.Hub != nil {
		s.Hub.NotifyRide(services.RideUpdate{
			RideID:    rideID,
			Status:    status,
			DriverID:  driverID,
			FinalFare: finalFare,
		})
	}
}
