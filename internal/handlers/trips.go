package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/dheerajbunny/gocomet-ride/internal/apperrors"
	"github.com/dheerajbunny/gocomet-ride/internal/rides"
)

func GetTrip(svc *rides.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(400, gin.H{"error": "invalid trip id"})
			return
		}
		trip, err := svc.GetTrip(c.Request.Context(), id)
		if err != nil {
			c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, trip)
	}
}

// StartTrip begins the ride or resumes it from a pause.
func StartTrip(svc *rides.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(400, gin.H{"error": "invalid trip id"})
			return
		}
		trip, err := svc.StartTrip(c.Request.Context(), id)
		if err != nil {
			c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, trip)
	}
}

func PauseTrip(svc *rides.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(400, gin.H{"error": "invalid trip id"})
			return
		}
		trip, err := svc.PauseTrip(c.Request.Context(), id)
		if err != nil {
			c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, trip)
	}
}

type EndTripInput struct {
	DistanceKm      *float64 `json:"distance_km" binding:"required"`
	DurationMinutes *float64 `json:"duration_minutes" binding:"required"`
}

// EndTrip settles the trip with the actual distance and duration; the
// final fare is computed and stamped atomically with the status change.
func EndTrip(svc *rides.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(400, gin.H{"error": "invalid trip id"})
			return
		}
		var input EndTripInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		trip, ride, err := svc.EndTrip(c.Request.Context(), id, *input.DistanceKm, *input.DurationMinutes)
		if err != nil {
			c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"trip": trip, "final_fare": ride.FinalFare})
	}
}
