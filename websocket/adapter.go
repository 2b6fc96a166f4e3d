package websocket

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gistjackdaniel/filmWithAi-sub002/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 65536
)

// Registrar is the hub surface the transport needs for lifecycle.
type Registrar interface {
	Register(conn domain.Connection)
	Unregister(conn domain.Connection)
}

// Conn adapts a gorilla websocket connection to domain.Connection.
// Outbound frames go through a buffered channel drained by the write
// pump, so Send never blocks the broadcaster.
type Conn struct {
	id        string
	identity  domain.Identity
	ws        *websocket.Conn
	send      chan []byte
	registrar Registrar
	handler   domain.MessageHandler
}

func NewConn(id string, identity domain.Identity, ws *websocket.Conn, r Registrar, h domain.MessageHandler) *Conn {
	return &Conn{
		id:        id,
		identity:  identity,
		ws:        ws,
		send:      make(chan []byte, 256),
		registrar: r,
		handler:   h,
	}
}

func (c *Conn) ID() string        { return c.id }
func (c *Conn) UserID() string    { return c.identity.UserID }
func (c *Conn) UserLabel() string { return c.identity.UserLabel }

func (c *Conn) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return websocket.ErrCloseSent
	}
}

func (c *Conn) Close() error {
	return c.ws.Close()
}

// Start registers the session and launches the pumps. Cleanup runs from
// the read pump when the transport closes, whatever the cause.
func (c *Conn) Start() {
	c.registrar.Register(c)
	go c.writePump()
	go c.readPump()
}

func (c *Conn) readPump() {
	defer func() {
		c.registrar.Unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("read error", "sessionId", c.id, "error", err)
			}
			return
		}

		c.handler.Handle(c, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
