package dispatch

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/dheerajbunny/gocomet-ride/internal/apperrors"
	"github.com/dheerajbunny/gocomet-ride/internal/models"
	"github.com/dheerajbunny/gocomet-ride/internal/observability"
	"github.com/dheerajbunny/gocomet-ride/internal/services"
)

// Store is the slice of ride persistence dispatch needs.
type Store interface {
	MarkSearching(ctx context.Context, rideID uint) error
	CancelSearch(ctx context.Context, rideID uint) error
	AssignDriver(ctx context.Context, rideID, driverID uint) error
	StalledDispatch(ctx context.Context, olderThan time.Duration) ([]models.Ride, error)
}

// Job is one ride waiting for a driver.
type Job struct {
	RideID    uint
	PickupLat float64
	PickupLng float64
	Tier      string
}

// Dispatcher runs driver matching off the request path: a worker pool
// drains the job queue, and a reaper re-enqueues rides that sat in
// requested or searching past StallAfter (a worker crash or a dropped
// job must not strand a rider forever).
type Dispatcher struct {
	Store      Store
	Matcher    *Matcher
	Cache      *services.Cache
	Hub        *services.Hub
	Workers    int
	StallAfter time.Duration

	jobs chan Job
	wg   sync.WaitGroup
	once sync.Once
}

const jobQueueSize = 256

// Start launches the worker pool and the reaper. Workers exit when ctx
// is cancelled; Wait blocks until they have drained.
func (d *Dispatcher) Start(ctx context.Context) {
	d.once.Do(func() {
		d.jobs = make(chan Job, jobQueueSize)
	})

	workers := d.Workers
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-d.jobs:
					d.dispatch(ctx, job)
				}
			}
		}()
	}

	if d.StallAfter > 0 {
		d.wg.Add(1)
		go d.reapLoop(ctx)
	}
}

// Wait blocks until all workers have stopped.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Enqueue queues a ride for matching. A full queue drops the job; the
// reaper picks the ride up again once it shows as stalled.
func (d *Dispatcher) Enqueue(rideID uint, pickupLat, pickupLng float64, tier string) {
	d.once.Do(func() {
		d.jobs = make(chan Job, jobQueueSize)
	})
	select {
	case d.jobs <- Job{RideID: rideID, PickupLat: pickupLat, PickupLng: pickupLng, Tier: tier}:
	default:
		log.Printf("dispatch queue full, ride %d deferred to reaper", rideID)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, job Job) {
	start := time.Now()
	if err := d.Store.MarkSearching(ctx, job.RideID); err != nil {
		// Cancelled or already past searching; nothing to do.
		log.Printf("ride %d not dispatchable: %v", job.RideID, err)
		return
	}
	d.notify(ctx, services.RideUpdate{RideID: job.RideID, Status: models.RideStatusSearching})

	// One retry when the chosen driver is snatched between match and
	// assignment. A second snatch leaves the ride searching for the
	// reaper rather than looping here.
	for attempt := 0; attempt < 2; attempt++ {
		driver, etaMinutes, err := d.Matcher.NearestDriver(ctx, job.PickupLat, job.PickupLng, job.Tier)
		if err != nil {
			if errors.Is(err, apperrors.ErrUnavailable) {
				d.cancel(ctx, job.RideID)
				observability.MatchLatency.Observe(time.Since(start).Seconds())
				return
			}
			log.Printf("ride %d driver search failed: %v", job.RideID, err)
			return
		}

		err = d.Store.AssignDriver(ctx, job.RideID, driver.ID)
		if err == nil {
			if d.Cache != nil {
				d.Cache.InvalidateDriverLocation(ctx, driver.ID)
			}
			d.notify(ctx, services.RideUpdate{
				RideID:     job.RideID,
				Status:     models.RideStatusMatched,
				DriverID:   &driver.ID,
				EtaMinutes: etaMinutes,
			})
			observability.RidesMatched.Inc()
			observability.MatchLatency.Observe(time.Since(start).Seconds())
			return
		}
		if errors.Is(err, apperrors.ErrDriverUnavailable) {
			continue
		}
		log.Printf("ride %d assignment failed: %v", job.RideID, err)
		return
	}
	log.Printf("ride %d lost two assignment races, leaving it for the reaper", job.RideID)
}

func (d *Dispatcher) cancel(ctx context.Context, rideID uint) {
	if err := d.Store.CancelSearch(ctx, rideID); err != nil {
		log.Printf("ride %d cancel failed: %v", rideID, err)
		return
	}
	d.notify(ctx, services.RideUpdate{RideID: rideID, Status: models.RideStatusCancelled})
	observability.DispatchCancelled.Inc()
}

func (d *Dispatcher) reapLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.StallAfter)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Reap(ctx)
		}
	}
}

// Reap re-enqueues rides stuck in requested or searching longer than
// StallAfter.
func (d *Dispatcher) Reap(ctx context.Context) {
	stalled, err := d.Store.StalledDispatch(ctx, d.StallAfter)
	if err != nil {
		log.Printf("stalled ride scan failed: %v", err)
		return
	}
	for _, ride := range stalled {
		d.Enqueue(ride.ID, ride.PickupLat, ride.PickupLng, ride.Tier)
		observability.DispatchRequeued.Inc()
	}
}

func (d *Dispatcher) notify(ctx context.Context, update services.RideUpdate) {
	if d.Cache != nil {
		d.Cache.InvalidateRide(ctx, update.RideID)
		if err := d.Cache.PublishRideUpdate(ctx, update.RideID, update.Status); err != nil {
			log.Printf("ride %d update publish failed: %v", update.RideID, err)
		}
	}
	if d.Hub != nil {
		d.Hub.NotifyRide(update)
	}
}
