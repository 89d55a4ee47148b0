package services

import (
	"context"
	"fmt"
	"time"
)

// DemandCounter counts demand per geographic cell over a trailing window.
type DemandCounter interface {
	Incr(ctx context.Context, cell string, window time.Duration) (int64, error)
}

// SurgeEngine converts trailing-window demand into a fare multiplier.
// The multiplier is computed once at ride creation and stored on the
// ride; later fare computation reuses the stored value.
type SurgeEngine struct {
	counter DemandCounter
	window  time.Duration
}

// NewSurgeEngine creates a surge engine over a demand counter.
func NewSurgeEngine(counter DemandCounter) *SurgeEngine {
	return &SurgeEngine{counter: counter, window: demandWindow}
}

// Cell maps a pickup coordinate to its demand cell: coordinates rounded
// to 2 decimal degrees, roughly 1.1 km of resolution.
func Cell(lat, lng float64) string {
	return fmt.Sprintf("%.2f:%.2f", lat, lng)
}

// Multiplier increments the demand counter for the pickup cell and
// returns the multiplier for the post-increment count.
func (e *SurgeEngine) Multiplier(ctx context.Context, pickupLat, pickupLng float64) (float64, error) {
	count, err := e.counter.Incr(ctx, Cell(pickupLat, pickupLng), e.window)
	if err != nil {
		return 1.0, err
	}

	switch {
	case count < 5:
		return 1.0, nil
	case count < 10:
		return 1.2, nil
	case count < 20:
		return 1.5, nil
	case count < 40:
		return 1.8, nil
	default:
		return 2.0, nil
	}
}
