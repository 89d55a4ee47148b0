package utils

import (
	"math"
)

// Per-tier pricing constants in INR
var (
	baseFare = map[string]float64{
		"standard": 30,
		"premium":  60,
		"xl":       80,
	}
	ratePerKm = map[string]float64{
		"standard": 12,
		"premium":  20,
		"xl":       18,
	}
	ratePerMin = map[string]float64{
		"standard": 1.5,
		"premium":  2.5,
		"xl":       2.0,
	}
)

// CalculateFare calculates the trip fare for a tier, distance and
// duration with the given surge multiplier. An unrecognized tier falls
// back to the standard constants.
func CalculateFare(tier string, distanceKm, durationMinutes, surge float64) float64 {
	base, ok := baseFare[tier]
	if !ok {
		base = baseFare["standard"]
	}
	perKm, ok := ratePerKm[tier]
	if !ok {
		perKm = ratePerKm["standard"]
	}
	perMin, ok := ratePerMin[tier]
	if !ok {
		perMin = ratePerMin["standard"]
	}

	fare := (base + perKm*distanceKm + perMin*durationMinutes) * surge

	// Round to 2 decimal places
	return math.Round(fare*100) / 100
}

// EstimateFare estimates the fare before a trip starts: straight-line
// distance plus a duration derived from the city average speed, run
// through the same formula as the final fare.
func EstimateFare(tier string, pickupLat, pickupLng, destLat, destLng, surge float64) float64 {
	distance := HaversineDistance(pickupLat, pickupLng, destLat, destLng)
	duration := EstimateTripDuration(distance)
	return CalculateFare(tier, distance, duration, surge)
}
