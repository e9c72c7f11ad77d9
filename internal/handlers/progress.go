package handlers

import (
	"log"

	"github.com/gofiber/websocket/v2"

	"github.com/TonyXing/youtube-to-epub/internal/conversion"
)

// ProgressHandler streams job progress over WebSocket.
type ProgressHandler struct {
	manager *conversion.Manager
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(manager *conversion.Manager) *ProgressHandler {
	return &ProgressHandler{manager: manager}
}

// Handle subscribes the connection to one job's progress stream. The client
// first receives the current state, then every subsequent event; the
// connection closes after the terminal event.
func (h *ProgressHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	jobID := c.Params("id")
	events, cancel, err := h.manager.Progress(jobID)
	if err != nil {
		c.WriteJSON(map[string]string{"error": "Job not found"})
		return
	}
	defer cancel()

	// Drain client frames so close/ping handling works; readers send nothing
	// meaningful on this endpoint.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := c.WriteJSON(event); err != nil {
				log.Printf("WebSocket write error for job %s: %v", jobID, err)
				return
			}
		case <-disconnected:
			return
		}
	}
}
