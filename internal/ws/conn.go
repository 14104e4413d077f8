package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"signaling-platform/internal/delivery"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

var ErrSendBufferFull = errors.New("send buffer full")

// Conn is one authenticated websocket connection. Writes are serialized
// through the send channel; the write pump is the only goroutine touching
// the socket for output.
type Conn struct {
	id       string
	userID   string
	deviceID string

	sock *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(sock *websocket.Conn, userID, deviceID string) *Conn {
	return &Conn{
		id:       uuid.NewString(),
		userID:   userID,
		deviceID: deviceID,
		sock:     sock,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) UserID() string { return c.userID }

// SendEvent queues a server-initiated event frame. A full buffer means the
// client stopped reading; the frame is dropped and the caller decides
// whether that matters.
func (c *Conn) SendEvent(ev delivery.Event) error {
	frame := outFrame{
		ID:        ev.ID,
		Type:      ev.Name,
		Payload:   ev.Payload,
		Timestamp: ev.Timestamp,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *Conn) enqueue(data []byte) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// close makes the write pump drain and shut the socket. Safe to call from
// multiple goroutines.
func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump owns all writes to the socket, including keepalive pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			c.sock.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
