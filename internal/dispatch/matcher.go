package dispatch

import (
	"context"

	"github.com/dheerajbunny/gocomet-ride/internal/apperrors"
	"github.com/dheerajbunny/gocomet-ride/internal/models"
	"github.com/dheerajbunny/gocomet-ride/pkg/utils"
)

const (
	// DefaultSearchRadiusKm is the first search ring around the pickup.
	DefaultSearchRadiusKm = 5.0
	// MaxSearchRadiusKm caps the expansion; past this the search is over.
	MaxSearchRadiusKm = 20.0
)

// DriverSource lists candidate drivers for a tier. Implemented by the
// rides store.
type DriverSource interface {
	AvailableDrivers(ctx context.Context, tier string) ([]models.Driver, error)
}

// Matcher picks the nearest available driver of the requested tier,
// doubling the search radius until the ceiling.
type Matcher struct {
	Source DriverSource
}

// NearestDriver returns the closest candidate within the expanding
// radius and the estimated minutes for that driver to reach the pickup.
// Ties on distance break toward the lower driver id so repeated runs
// over the same fleet pick the same driver. Candidates are re-listed
// each ring because availability shifts while we search.
func (m *Matcher) NearestDriver(ctx context.Context, pickupLat, pickupLng float64, tier string) (*models.Driver, int, error) {
	for radius := DefaultSearchRadiusKm; radius <= MaxSearchRadiusKm; radius *= 2 {
		drivers, err := m.Source.AvailableDrivers(ctx, tier)
		if err != nil {
			return nil, 0, err
		}

		var (
			best     *models.Driver
			bestDist float64
		)
		for i := range drivers {
			d := &drivers[i]
			if !d.HasLocation() {
				continue
			}
			if !utils.IsWithinRadius(pickupLat, pickupLng, *d.Latitude, *d.Longitude, radius) {
				continue
			}
			dist := utils.HaversineDistance(pickupLat, pickupLng, *d.Latitude, *d.Longitude)
			if best == nil || dist < bestDist || (dist == bestDist && d.ID < best.ID) {
				best = d
				bestDist = dist
			}
		}
		if best != nil {
			return best, utils.CalculateETA(bestDist, utils.AverageSpeedKmh), nil
		}
	}
	return nil, 0, apperrors.Unavailable("no driver within %.0f km", MaxSearchRadiusKm)
}
