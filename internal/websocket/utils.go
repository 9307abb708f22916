package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// Conn serializes writes to one WebSocket. Notices arrive from timer, store and
// reader goroutines while gorilla allows a single concurrent writer.
type Conn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewConn wraps an upgraded connection.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// WriteJSON sends one event envelope.
func (c *Conn) WriteJSON(event Event, data interface{}) error {
	return c.WriteTyped(ResponsePayload{Event: event, Data: data})
}

// WriteError sends an error event with a code and display message.
func (c *Conn) WriteError(code, message string) error {
	return c.WriteJSON(EventError, ErrorData{Code: code, Message: message})
}

// WriteClose sends a close frame with the given status and reason.
func (c *Conn) WriteClose(status int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(status, reason), time.Now().Add(writeWait))
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func (c *Conn) ReadJSON(v interface{}) error {
	c.conn.SetReadDeadline(time.Now().Add(readWait))
	return c.conn.ReadJSON(v)
}
