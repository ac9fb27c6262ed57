package handler

import (
	"chatserver-be/internal/pkg/logger"
	"chatserver-be/internal/pkg/serverutils"
	internalWS "chatserver-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type ChatHandler struct {
	hub    *internalWS.Hub
	auth   serverutils.Authenticator
	logger logger.ILogger
}

func NewChatHandler(hub *internalWS.Hub, auth serverutils.Authenticator, log logger.ILogger) *ChatHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ChatHandler{hub: hub, auth: auth, logger: log}
}

func (h *ChatHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/ws", h.ServeWs)
}

// ServeWs authenticates the handshake before upgrading. The token comes from
// the "token" query parameter or the Authorization header.
func (h *ChatHandler) ServeWs(c *fiber.Ctx) error {
	userID, err := h.auth.Authenticate(serverutils.BearerToken(c))
	if err != nil {
		h.logger.Warn("ChatHandler", "Rejected WS handshake", map[string]interface{}{
			"ip":    c.IP(),
			"error": err.Error(),
		})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or missing token"})
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("ChatHandler", "Starting WebSocket session", map[string]interface{}{"user_id": userID})
		internalWS.ServeWs(h.hub, conn, userID)
		h.logger.Info("ChatHandler", "WebSocket session ended", map[string]interface{}{"user_id": userID})
	})(c)
}
