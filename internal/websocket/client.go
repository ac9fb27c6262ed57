package websocket

import (
	"sync/atomic"
	"time"

	"chatserver-be/pkg/fanout"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 16 * 1024
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection. Nil for connections driven directly by tests.
	ws *websocket.Conn

	// conn is the router's view of this connection.
	conn *fanout.Conn

	UserID    uuid.UUID
	CreatedAt time.Time

	lastActivity atomic.Int64
	limiter      *rate.Limiter
}

func (c *Client) ID() uuid.UUID { return c.conn.ID }

// LastActivity is the time of the last inbound frame or pong.
func (c *Client) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// readPump pumps intents from the websocket connection to the hub. Any
// traffic, including pongs, pushes the idle deadline forward.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.ws.Close()
	}()

	idle := c.hub.cfg.IdleTimeout
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(idle))
	c.ws.SetPongHandler(func(string) error {
		c.touch()
		return c.ws.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("Client", "Connection closed unexpectedly", map[string]interface{}{
					"user_id": c.UserID.String(),
					"error":   err.Error(),
				})
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(idle))
		if messageType != websocket.TextMessage {
			continue
		}
		c.hub.HandleIntent(c, data)
	}
}

// writePump drains the router's queue, one event per frame, and pings at
// nine tenths of the idle window. It exits when the router closes the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.IdleTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.conn.Outbound():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.conn.Done():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "connection closed by server"))
			return
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
