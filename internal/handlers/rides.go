package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/dheerajbunny/gocomet-ride/internal/apperrors"
	"github.com/dheerajbunny/gocomet-ride/internal/rides"
)

type CreateRideInput struct {
	RiderID       uint     `json:"rider_id" binding:"required"`
	PickupLat     *float64 `json:"pickup_lat" binding:"required"`
	PickupLng     *float64 `json:"pickup_lng" binding:"required"`
	DestLat       *float64 `json:"dest_lat" binding:"required"`
	DestLng       *float64 `json:"dest_lng" binding:"required"`
	PickupAddr    string   `json:"pickup_addr"`
	DestAddr      string   `json:"dest_addr"`
	Tier          string   `json:"tier"`
	PaymentMethod string   `json:"payment_method"`
}

// CreateRide quotes and persists a ride request. Clients retrying a
// timed-out call send the same Idempotency-Key header and get the
// original ride back.
func CreateRide(svc *rides.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input CreateRideInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		cmd := rides.CreateRideCommand{
			RiderID:        input.RiderID,
			PickupLat:      *input.PickupLat,
			PickupLng:      *input.PickupLng,
			DestLat:        *input.DestLat,
			DestLng:        *input.DestLng,
			PickupAddr:     input.PickupAddr,
			DestAddr:       input.DestAddr,
			Tier:           input.Tier,
			PaymentMethod:  input.PaymentMethod,
			IdempotencyKey: c.GetHeader("Idempotency-Key"),
		}
		ride, err := svc.CreateRide(c.Request.Context(), cmd)
		if err != nil {
			c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(201, ride)
	}
}

func GetRide(svc *rides.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(400, gin.H{"error": "invalid ride id"})
			return
		}
		ride, err := svc.GetRide(c.Request.Context(), id)
		if err != nil {
			c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, ride)
	}
}
