package signal

import (
	"sync"
	"time"

	"voxrelay/internal/core/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn wraps one WebSocket session. Writes are serialized through a mutex
// because gorilla connections allow only one concurrent writer, and every
// send carries a deadline so a stuck peer cannot block the registry.
type Conn struct {
	ws           *websocket.Conn
	sessionID    string
	writeTimeout time.Duration

	writeMu sync.Mutex

	mu       sync.Mutex
	identity domain.ClientID
	alive    bool
	closed   bool
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{
		ws:           ws,
		sessionID:    uuid.NewString(),
		writeTimeout: writeTimeout,
		alive:        true,
	}
}

// SessionID identifies this connection instance, not the client identity.
func (c *Conn) SessionID() string { return c.sessionID }

// Identity returns the client identity bound at registration, or the zero
// identity before register.
func (c *Conn) Identity() domain.ClientID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Conn) bindIdentity(id domain.ClientID) {
	c.mu.Lock()
	c.identity = id
	c.mu.Unlock()
}

func (c *Conn) setAlive(alive bool) {
	c.mu.Lock()
	c.alive = alive
	c.mu.Unlock()
}

func (c *Conn) isAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

// SendJSON writes a control message as a text frame.
func (c *Conn) SendJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteJSON(v)
}

// SendBinary writes a frame unmodified.
func (c *Conn) SendBinary(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.BinaryMessage, frame)
}

// Ping emits a transport-level ping; the pong handler flips the liveness
// flag back on.
func (c *Conn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Close terminates the transport. Closing an already-closed connection is
// a no-op, which the eviction path relies on.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.ws.Close()
}
