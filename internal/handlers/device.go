package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/BYTEDz/PCLink-sub000/internal/apperr"
	"github.com/BYTEDz/PCLink-sub000/internal/hub"
	"github.com/BYTEDz/PCLink-sub000/internal/models"
	"github.com/BYTEDz/PCLink-sub000/internal/store"
)

type DeviceHandler struct {
	store *store.Store
	hub   *hub.Hub
}

func NewDeviceHandler(st *store.Store, h *hub.Hub) *DeviceHandler {
	return &DeviceHandler{store: st, hub: h}
}

// List handles GET /devices. Issued keys are not echoed back.
func (h *DeviceHandler) List(c *fiber.Ctx) error {
	devices := h.store.ListAll()
	for i := range devices {
		devices[i].APIKey = ""
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    devices,
	})
}

// Revoke handles DELETE /devices/:id. Consoles are nudged to refresh.
func (h *DeviceHandler) Revoke(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return apperr.Validation("device id is required")
	}
	if err := h.store.Revoke(id); err != nil {
		return err
	}
	h.hub.Broadcast(models.Event{
		Type: models.EventUpdate,
		Data: map[string]interface{}{"resource": "devices"},
	})
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Device revoked",
	})
}
