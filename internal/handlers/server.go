package handlers

import (
	"runtime"

	"github.com/gofiber/fiber/v2"

	"github.com/BYTEDz/PCLink-sub000/internal/transfer"
)

// Version is the server build version reported to clients.
const Version = "1.2.0"

type ServerHandler struct {
	serverName  string
	fingerprint string
	engine      *transfer.Engine
}

func NewServerHandler(serverName, certFingerprint string, engine *transfer.Engine) *ServerHandler {
	return &ServerHandler{
		serverName:  serverName,
		fingerprint: certFingerprint,
		engine:      engine,
	}
}

// Info handles GET /server/info: identity and the certificate fingerprint
// for clients that pin before pairing.
func (h *ServerHandler) Info(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"device_name":      h.serverName,
		"platform":         runtime.GOOS,
		"version":          Version,
		"cert_fingerprint": h.fingerprint,
	})
}

// Transfers handles GET /transfers: every live session, both directions.
func (h *ServerHandler) Transfers(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.engine.ListAll(),
	})
}
