package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/dheerajbunny/gocomet-ride/internal/apperrors"
	"github.com/dheerajbunny/gocomet-ride/internal/payments"
)

type CreatePaymentInput struct {
	RideID uint `json:"ride_id" binding:"required"`
}

// CreatePayment opens settlement for a completed ride. The response is
// the pending payment; settlement finishes asynchronously.
func CreatePayment(svc *payments.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input CreatePaymentInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		payment, err := svc.CreatePayment(c.Request.Context(), input.RideID, c.GetHeader("Idempotency-Key"))
		if err != nil {
			c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(202, payment)
	}
}

func GetPaymentForRide(svc *payments.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		rideID, err := parseID(c.Param("rideId"))
		if err != nil {
			c.JSON(400, gin.H{"error": "invalid ride id"})
			return
		}
		payment, err := svc.PaymentForRide(c.Request.Context(), rideID)
		if err != nil {
			c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, payment)
	}
}
