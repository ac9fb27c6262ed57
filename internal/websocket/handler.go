package websocket

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs runs one authenticated websocket session to completion. The write
// pump runs in its own goroutine; the read pump owns the calling one.
func ServeWs(hub *Hub, ws *websocket.Conn, userID uuid.UUID) {
	client := hub.NewClient(userID, ws)
	hub.Register(client)

	go client.writePump()
	client.readPump()
}
