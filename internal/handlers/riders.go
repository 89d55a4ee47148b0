package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dheerajbunny/gocomet-ride/internal/apperrors"
	"github.com/dheerajbunny/gocomet-ride/internal/models"
	"github.com/dheerajbunny/gocomet-ride/internal/rides"
)

type RegisterRiderInput struct {
	Name  string  `json:"name" binding:"required"`
	Phone string  `json:"phone" binding:"required"`
	Email *string `json:"email"`
}

func RegisterRider(svc *rides.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input RegisterRiderInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		rider := models.Rider{
			Name:  input.Name,
			Phone: input.Phone,
			Email: input.Email,
		}
		if err := svc.RegisterRider(c.Request.Context(), &rider); err != nil {
			c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(201, rider)
	}
}

func GetRider(svc *rides.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(400, gin.H{"error": "invalid rider id"})
			return
		}
		rider, err := svc.GetRider(c.Request.Context(), id)
		if err != nil {
			c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, rider)
	}
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
