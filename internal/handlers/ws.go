package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/BYTEDz/PCLink-sub000/internal/hub"
)

type WSHandler struct {
	hub *hub.Hub
}

func NewWSHandler(h *hub.Hub) *WSHandler {
	return &WSHandler{hub: h}
}

// UpgradeRequired gates the websocket route behind a proper upgrade
// request. Runs after API key authentication.
func UpgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Serve keeps one bidirectional connection per client registered with the
// fan-out until it drops.
func (h *WSHandler) Serve() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		role := hub.RoleMobile
		if c.Query("role") == string(hub.RoleOperator) {
			role = hub.RoleOperator
		}

		h.hub.Register(c, role)
		defer func() {
			h.hub.Unregister(c)
			c.Close()
		}()

		// Inbound frames are input-control traffic handled elsewhere;
		// reading here just detects disconnects.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})
}
