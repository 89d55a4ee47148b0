package rides

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dheerajbunny/gocomet-ride/internal/apperrors"
	"github.com/dheerajbunny/gocomet-ride/internal/models"
	"github.com/dheerajbunny/gocomet-ride/pkg/utils"
)

type fixedSurge struct{ m float64 }

func (f fixedSurge) Multiplier(context.Context, float64, float64) (float64, error) { return f.m, nil }

type memIdem struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemIdem() *memIdem { return &memIdem{m: make(map[string][]byte)} }

func (i *memIdem) Get(_ context.Context, key string) ([]byte, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	payload, ok := i.m[key]
	return payload, ok, nil
}

func (i *memIdem) Save(_ context.Context, key string, payload []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.m[key] = payload
	return nil
}

type recordingDispatch struct {
	mu   sync.Mutex
	jobs []uint
}

func (r *recordingDispatch) Enqueue(rideID uint, _, _ float64, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, rideID)
}

func newTestService(store *memStore) (*Service, *recordingDispatch) {
	disp := &recordingDispatch{}
	return &Service{
		Store:    store,
		Surge:    fixedSurge{m: 1.0},
		Idem:     newMemIdem(),
		Dispatch: disp,
	}, disp
}

func seedRider(t *testing.T, svc *Service) uint {
	t.Helper()
	rider := models.Rider{Name: "Asha", Phone: "+911111111111"}
	if err := svc.RegisterRider(context.Background(), &rider); err != nil {
		t.Fatal(err)
	}
	return rider.ID
}

func seedAvailableDriver(t *testing.T, svc *Service, phone string, lat, lng float64) uint {
	t.Helper()
	ctx := context.Background()
	driver := models.Driver{Name: "Ravi", Phone: phone, Tier: models.TierStandard}
	if err := svc.RegisterDriver(ctx, &driver); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SetDriverStatus(ctx, driver.ID, models.DriverStatusAvailable); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateDriverLocation(ctx, driver.ID, lat, lng); err != nil {
		t.Fatal(err)
	}
	return driver.ID
}

func baseCommand(riderID uint) CreateRideCommand {
	return CreateRideCommand{
		RiderID:       riderID,
		PickupLat:     12.9716,
		PickupLng:     77.5946,
		DestLat:       12.9352,
		DestLng:       77.6245,
		Tier:          models.TierStandard,
		PaymentMethod: models.PaymentMethodCash,
	}
}

func TestCreateRideQuotesAndDispatches(t *testing.T) {
	store := newMemStore()
	svc, disp := newTestService(store)
	svc.Surge = fixedSurge{m: 1.5}
	riderID := seedRider(t, svc)

	ride, err := svc.CreateRide(context.Background(), baseCommand(riderID))
	if err != nil {
		t.Fatal(err)
	}
	if ride.Status != models.RideStatusRequested {
		t.Fatalf("expected requested, got %s", ride.Status)
	}
	if ride.SurgeMultiplier != 1.5 {
		t.Fatalf("expected surge 1.5, got %f", ride.SurgeMultiplier)
	}
	want := utils.EstimateFare(models.TierStandard, 12.9716, 77.5946, 12.9352, 77.6245, 1.5)
	if ride.EstimatedFare != want {
		t.Fatalf("expected estimate %f, got %f", want, ride.EstimatedFare)
	}
	if len(disp.jobs) != 1 || disp.jobs[0] != ride.ID {
		t.Fatalf("expected one dispatch job for ride %d, got %v", ride.ID, disp.jobs)
	}
}

func TestCreateRideDefaultsTierAndPaymentMethod(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	riderID := seedRider(t, svc)

	cmd := baseCommand(riderID)
	cmd.Tier = ""
	cmd.PaymentMethod = ""

	ride, err := svc.CreateRide(context.Background(), cmd)
	if err != nil {
		t.Fatal(err)
	}
	if ride.Tier != models.TierStandard {
		t.Fatalf("expected standard tier by default, got %q", ride.Tier)
	}
	if ride.PaymentMethod != models.PaymentMethodCard {
		t.Fatalf("expected card payment by default, got %q", ride.PaymentMethod)
	}
}

func TestCreateRideValidation(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	riderID := seedRider(t, svc)

	cases := []struct {
		name   string
		mutate func(*CreateRideCommand)
	}{
		{"bad tier", func(c *CreateRideCommand) { c.Tier = "rickshaw" }},
		{"bad method", func(c *CreateRideCommand) { c.PaymentMethod = "barter" }},
		{"lat out of range", func(c *CreateRideCommand) { c.PickupLat = 91 }},
		{"lng out of range", func(c *CreateRideCommand) { c.DestLng = -181 }},
		{"missing rider", func(c *CreateRideCommand) { c.RiderID = 0 }},
	}
	for _, c := range cases {
		cmd := baseCommand(riderID)
		c.mutate(&cmd)
		if _, err := svc.CreateRide(context.Background(), cmd); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", c.name, err)
		}
	}

	cmd := baseCommand(riderID)
	cmd.RiderID = 999
	if _, err := svc.CreateRide(context.Background(), cmd); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown rider: expected not found, got %v", err)
	}
}

func TestCreateRideIdempotentReplay(t *testing.T) {
	store := newMemStore()
	svc, disp := newTestService(store)
	riderID := seedRider(t, svc)

	cmd := baseCommand(riderID)
	cmd.IdempotencyKey = "req-abc"

	first, err := svc.CreateRide(context.Background(), cmd)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.CreateRide(context.Background(), cmd)
	if err != nil {
		t.Fatal(err)
	}

	if first.ID != second.ID {
		t.Fatalf("replay created a second ride: %d vs %d", first.ID, second.ID)
	}
	if first.EstimatedFare != second.EstimatedFare {
		t.Fatalf("replay changed the quote: %f vs %f", first.EstimatedFare, second.EstimatedFare)
	}
	if len(store.rides) != 1 {
		t.Fatalf("expected one persisted ride, got %d", len(store.rides))
	}
	if len(disp.jobs) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(disp.jobs))
	}
}

func TestCreateRideConcurrentSameKey(t *testing.T) {
	store := newMemStore()
	svc, disp := newTestService(store)
	riderID := seedRider(t, svc)

	cmd := baseCommand(riderID)
	cmd.IdempotencyKey = "req-race"

	var wg sync.WaitGroup
	ids := make([]uint, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			ride, err := svc.CreateRide(context.Background(), cmd)
			if err != nil {
				t.Error(err)
				return
			}
			ids[slot] = ride.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("racing creates returned different rides: %v", ids)
		}
	}
	if len(store.rides) != 1 {
		t.Fatalf("expected one persisted ride, got %d", len(store.rides))
	}
	if len(disp.jobs) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(disp.jobs))
	}
}

func TestFullLifecycle(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()
	riderID := seedRider(t, svc)
	driverID := seedAvailableDriver(t, svc, "+912222222222", 12.9720, 77.5950)

	ride, err := svc.CreateRide(ctx, baseCommand(riderID))
	if err != nil {
		t.Fatal(err)
	}

	if err := store.MarkSearching(ctx, ride.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.AssignDriver(ctx, ride.ID, driverID); err != nil {
		t.Fatal(err)
	}

	trip, err := svc.AcceptRide(ctx, ride.ID, driverID)
	if err != nil {
		t.Fatal(err)
	}
	if trip.StartedAt == nil {
		t.Fatal("accept should start the trip clock")
	}

	if _, err := svc.StartTrip(ctx, trip.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.PauseTrip(ctx, trip.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.StartTrip(ctx, trip.ID); err != nil {
		t.Fatalf("resume from pause failed: %v", err)
	}

	endedTrip, endedRide, err := svc.EndTrip(ctx, trip.ID, 5, 15)
	if err != nil {
		t.Fatal(err)
	}
	// 30 + 12*5 + 1.5*15 at surge 1.0
	if endedTrip.Fare == nil || *endedTrip.Fare != 112.5 {
		t.Fatalf("expected fare 112.5, got %v", endedTrip.Fare)
	}
	if endedRide.FinalFare == nil || *endedRide.FinalFare != 112.5 {
		t.Fatalf("ride final fare not stamped: %v", endedRide.FinalFare)
	}
	if endedRide.Status != models.RideStatusCompleted {
		t.Fatalf("expected completed, got %s", endedRide.Status)
	}

	driver, err := svc.GetDriver(ctx, driverID)
	if err != nil {
		t.Fatal(err)
	}
	if driver.Status != models.DriverStatusAvailable {
		t.Fatalf("driver not released after trip: %s", driver.Status)
	}
}

func TestEndTripAppliesStoredSurge(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	svc.Surge = fixedSurge{m: 1.8}
	ctx := context.Background()
	riderID := seedRider(t, svc)
	driverID := seedAvailableDriver(t, svc, "+913333333333", 12.9720, 77.5950)

	ride, err := svc.CreateRide(ctx, baseCommand(riderID))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.MarkSearching(ctx, ride.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.AssignDriver(ctx, ride.ID, driverID); err != nil {
		t.Fatal(err)
	}
	trip, err := svc.AcceptRide(ctx, ride.ID, driverID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.StartTrip(ctx, trip.ID); err != nil {
		t.Fatal(err)
	}

	_, endedRide, err := svc.EndTrip(ctx, trip.ID, 5, 15)
	if err != nil {
		t.Fatal(err)
	}
	// 112.5 * 1.8, the multiplier frozen at creation time.
	if *endedRide.FinalFare != 202.5 {
		t.Fatalf("expected 202.5, got %f", *endedRide.FinalFare)
	}
}

func TestEndTripWithoutDriverLeavesRideUntouched(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()
	riderID := seedRider(t, svc)
	driverID := seedAvailableDriver(t, svc, "+916666666666", 12.9720, 77.5950)

	ride, err := svc.CreateRide(ctx, baseCommand(riderID))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.MarkSearching(ctx, ride.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.AssignDriver(ctx, ride.ID, driverID); err != nil {
		t.Fatal(err)
	}
	trip, err := svc.AcceptRide(ctx, ride.ID, driverID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.StartTrip(ctx, trip.ID); err != nil {
		t.Fatal(err)
	}

	// Simulate a corrupted row that lost its driver assignment.
	store.mu.Lock()
	store.rides[ride.ID].DriverID = nil
	store.mu.Unlock()

	if _, _, err := svc.EndTrip(ctx, trip.ID, 5, 15); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict ending driverless trip, got %v", err)
	}

	got, err := store.GetRide(ctx, ride.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.RideStatusInProgress {
		t.Fatalf("ride status changed on failed completion: %s", got.Status)
	}
	if got.FinalFare != nil {
		t.Fatalf("final fare stamped on failed completion: %v", got.FinalFare)
	}
	gotTrip, err := store.GetTrip(ctx, trip.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gotTrip.EndedAt != nil || gotTrip.Fare != nil {
		t.Fatal("trip mutated on failed completion")
	}
}

func TestAcceptRideGuards(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()
	riderID := seedRider(t, svc)
	driverID := seedAvailableDriver(t, svc, "+914444444444", 12.9720, 77.5950)
	otherID := seedAvailableDriver(t, svc, "+915555555555", 12.9730, 77.5960)

	ride, err := svc.CreateRide(ctx, baseCommand(riderID))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.MarkSearching(ctx, ride.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.AssignDriver(ctx, ride.ID, driverID); err != nil {
		t.Fatal(err)
	}

	// A driver the ride was not assigned to cannot accept it.
	if _, err := svc.AcceptRide(ctx, ride.ID, otherID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found for wrong driver, got %v", err)
	}

	if _, err := svc.AcceptRide(ctx, ride.ID, driverID); err != nil {
		t.Fatal(err)
	}
	// A second accept finds the ride past matched.
	if _, err := svc.AcceptRide(ctx, ride.ID, driverID); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict on double accept, got %v", err)
	}
}

func TestIllegalTransitions(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()
	riderID := seedRider(t, svc)
	driverID := seedAvailableDriver(t, svc, "+916666666666", 12.9720, 77.5950)

	ride, err := svc.CreateRide(ctx, baseCommand(riderID))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.MarkSearching(ctx, ride.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.AssignDriver(ctx, ride.ID, driverID); err != nil {
		t.Fatal(err)
	}
	trip, err := svc.AcceptRide(ctx, ride.ID, driverID)
	if err != nil {
		t.Fatal(err)
	}

	// Pause before start.
	if _, err := svc.PauseTrip(ctx, trip.ID); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict pausing an accepted ride, got %v", err)
	}
	// End before start.
	if _, _, err := svc.EndTrip(ctx, trip.ID, 1, 1); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict ending an accepted ride, got %v", err)
	}

	if _, err := svc.StartTrip(ctx, trip.ID); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.EndTrip(ctx, trip.ID, 1, 1); err != nil {
		t.Fatal(err)
	}
	// Everything is final after completion.
	if _, err := svc.StartTrip(ctx, trip.ID); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict starting a completed ride, got %v", err)
	}
	if _, _, err := svc.EndTrip(ctx, trip.ID, 1, 1); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict ending a completed ride, got %v", err)
	}
}

func TestEndTripRejectsNegativeActuals(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	if _, _, err := svc.EndTrip(context.Background(), 1, -1, 5); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSetDriverStatusGuards(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()
	riderID := seedRider(t, svc)
	driverID := seedAvailableDriver(t, svc, "+917777777777", 12.9720, 77.5950)

	if _, err := svc.SetDriverStatus(ctx, driverID, "on_trip"); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error for on_trip, got %v", err)
	}

	ride, err := svc.CreateRide(ctx, baseCommand(riderID))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.MarkSearching(ctx, ride.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.AssignDriver(ctx, ride.ID, driverID); err != nil {
		t.Fatal(err)
	}

	// An assigned driver cannot slip back to available by hand.
	if _, err := svc.SetDriverStatus(ctx, driverID, models.DriverStatusAvailable); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict for on-trip driver, got %v", err)
	}
}

func TestRegisterRiderUpsertsByPhone(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	first := models.Rider{Name: "Asha", Phone: "+918888888888"}
	if err := svc.RegisterRider(ctx, &first); err != nil {
		t.Fatal(err)
	}
	second := models.Rider{Name: "Asha K", Phone: "+918888888888"}
	if err := svc.RegisterRider(ctx, &second); err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatalf("re-registration created a new rider: %d vs %d", second.ID, first.ID)
	}
	got, err := svc.GetRider(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Asha K" {
		t.Fatalf("expected updated name, got %s", got.Name)
	}
}
