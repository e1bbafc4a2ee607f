package handlers

import (
	"log"

	"github.com/gofiber/websocket/v2"

	"github.com/tabscribe/tabscribe/internal/status"
)

// StatusHandler streams badge and announcement events to WebSocket clients.
type StatusHandler struct {
	hub *status.Hub
}

// NewStatusHandler creates a status stream handler.
func NewStatusHandler(hub *status.Hub) *StatusHandler {
	return &StatusHandler{hub: hub}
}

// Handle pushes hub events over one WebSocket connection until the client
// disconnects.
func (h *StatusHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	events, cancel := h.hub.Subscribe()
	defer cancel()

	log.Printf("status: WebSocket client connected")

	// Reads are discarded; the read loop exists to notice disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := c.WriteJSON(ev); err != nil {
				log.Printf("status: WebSocket write error: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}
