// Package ws routes typed WebSocket messages between clients and the
// session brokers.
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coder/websocket"
)

// Conn wraps a websocket connection as a serialized typed-message sender.
// Agent pumps, PTY pumps, and broadcasts all write through the same mutex,
// so frames from concurrent producers never interleave. Backpressure is by
// blocking the sender.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// NewConn wraps an accepted websocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Send marshals v and writes it as one text frame.
// Uses context.Background() for writes since the WebSocket library handles
// its own connection state.
func (c *Conn) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.Write(context.Background(), websocket.MessageText, data)
}
