package ws

import (
	"log/slog"
	"sync"
)

// Writer is the typed-message sender side of a client connection.
type Writer interface {
	Send(v interface{}) error
}

// Hub tracks every connected chat client for fan-out events.
type Hub struct {
	mu      sync.Mutex
	clients map[Writer]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[Writer]struct{})}
}

// Add registers a connection for broadcasts.
func (h *Hub) Add(c Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// Remove drops a connection from the broadcast set.
func (h *Hub) Remove(c Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends v to every connected client. Per-client delivery failures
// are logged and skipped; one slow or dead client never blocks the rest.
func (h *Hub) Broadcast(v interface{}) {
	h.mu.Lock()
	clients := make([]Writer, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.Send(v); err != nil {
			slog.Debug("Broadcast send failed", "error", err)
		}
	}
}

// BroadcastTaskmaster publishes a taskmaster-<event> message to all clients.
func (h *Hub) BroadcastTaskmaster(event string, payload map[string]interface{}) {
	msg := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		msg[k] = v
	}
	msg["type"] = "taskmaster-" + event
	h.Broadcast(msg)
}
