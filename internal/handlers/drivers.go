package handlers

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dheerajbunny/gocomet-ride/internal/apperrors"
	"github.com/dheerajbunny/gocomet-ride/internal/ingest"
	"github.com/dheerajbunny/gocomet-ride/internal/models"
	"github.com/dheerajbunny/gocomet-ride/internal/observability"
	"github.com/dheerajbunny/gocomet-ride/internal/rides"
)

type RegisterDriverInput struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone" binding:"required"`
	Tier  string `json:"tier"`
}

func RegisterDriver(svc *rides.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input RegisterDriverInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		driver := models.Driver{
			Name:  input.Name,
			Phone: input.Phone,
			Tier:  input.Tier,
		}
		if err := svc.RegisterDriver(c.Request.Context(), &driver); err != nil {
			c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(201, driver)
	}
}

func GetDriver(svc *rides.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(400, gin.H{"error": "invalid driver id"})
			return
		}
		driver, err := svc.GetDriver(c.Request.Context(), id)
		if err != nil {
			c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, driver)
	}
}

type DriverLocationInput struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

// UpdateDriverLocation is the hot path: persist the ping, refresh the
// cache and fan the event out to Kafka when a producer is wired.
func UpdateDriverLocation(svc *rides.Service, producer *ingest.KafkaProducer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(400, gin.H{"error": "invalid driver id"})
			return
		}
		var input DriverLocationInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		driver, err := svc.UpdateDriverLocation(c.Request.Context(), id, *input.Lat, *input.Lng)
		if err != nil {
			c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		observability.LocationUpdates.Inc()

		if producer != nil {
			ev := ingest.LocationEvent{
				DriverID: driver.ID,
				Lat:      *input.Lat,
				Lng:      *input.Lng,
				Tier:     driver.Tier,
				Status:   driver.Status,
				At:       time.Now(),
			}
			if err := producer.PublishLocation(ev); err != nil {
				log.Printf("driver %d location event not published: %v", driver.ID, err)
			}
		}
		c.JSON(200, driver)
	}
}

type DriverStatusInput struct {
	Status string `json:"status" binding:"required"`
}

func SetDriverStatus(svc *rides.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(400, gin.H{"error": "invalid driver id"})
			return
		}
		var input DriverStatusInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		driver, err := svc.SetDriverStatus(c.Request.Context(), id, input.Status)
		if err != nil {
			c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, driver)
	}
}

// AcceptRide lets the matched driver confirm the assignment.
func AcceptRide(svc *rides.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(400, gin.H{"error": "invalid driver id"})
			return
		}
		var input struct {
			RideID uint `json:"ride_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		trip, err := svc.AcceptRide(c.Request.Context(), input.RideID, driverID)
		if err != nil {
			c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"message": "ride accepted", "trip": trip})
	}
}
