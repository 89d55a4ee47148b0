package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/dheerajbunny/gocomet-ride/internal/services"
)

// WatchRide upgrades to a websocket and streams status updates for one
// ride until the client disconnects.
func WatchRide(hub *services.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		rideID, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(400, gin.H{"error": "invalid ride id"})
			return
		}
		services.HandleWebSocket(hub, c.Writer, c.Request, rideID)
	}
}
