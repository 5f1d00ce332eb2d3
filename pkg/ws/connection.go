// Package ws is the transport layer: a Connection/Room/Gateway trio
// built on gorilla/websocket.
package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
)

// Upgrader is shared across handlers. Accepts any origin by default.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Connection is one live socket.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
}

// NewConnection wraps an upgraded socket with a buffered outbound queue.
func NewConnection(id string, conn *websocket.Conn) *Connection {
	return &Connection{
		ID:   id,
		Conn: conn,
		Send: make(chan []byte, 16),
	}
}

// ReadPump reads frames until the connection closes or errors,
// invoking onMessage for each one.
func (c *Connection) ReadPump(onMessage func(payload []byte)) {
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.Conn.ReadMessage()
		if err != nil {
			return
		}
		onMessage(payload)
	}
}

// WritePump drains Send to the socket and pings on an interval.
// Returns when Send is closed or a write fails.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend enqueues a frame without blocking. Drops it if the send
// buffer is full.
func (c *Connection) TrySend(payload []byte) bool {
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}
