package services

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Client represents a WebSocket subscriber watching one ride
type Client struct {
	RideID uint
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub
}

// Hub maintains the set of active ride watchers. Callers that prefer
// polling simply never connect; the lifecycle pushes every successful
// transition here as well.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.Printf("Watcher connected for ride %d", client.RideID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mutex.Unlock()
			log.Printf("Watcher disconnected for ride %d", client.RideID)
		}
	}
}

// RideUpdate is pushed to watchers on every successful ride transition
type RideUpdate struct {
	RideID     uint     `json:"rideId"`
	Status     string   `json:"status"`
	DriverID   *uint    `json:"driverId,omitempty"`
	EtaMinutes int      `json:"etaMinutes,omitempty"`
	FinalFare  *float64 `json:"finalFare,omitempty"`
}

// NotifyRide sends a ride update to every watcher of that ride. Safe to
// call on a nil hub.
func (h *Hub) NotifyRide(update RideUpdate) {
	if h == nil {
		return
	}

	message, err := json.Marshal(update)
	if err != nil {
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		if client.RideID != update.RideID {
			continue
		}
		select {
		case client.Send <- message:
		default:
			close(client.Send)
			delete(h.clients, client)
		}
	}
}

// WatcherCount returns the number of connected watchers
func (h *Hub) WatcherCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the connection and registers a ride watcher
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request, rideID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		RideID: rideID,
		Conn:   conn,
		Send:   make(chan []byte, 16),
		Hub:    hub,
	}
	hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) writePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	// Watchers never send anything meaningful; drain until close.
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
