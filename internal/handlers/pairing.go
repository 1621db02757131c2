package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/BYTEDz/PCLink-sub000/internal/apperr"
	"github.com/BYTEDz/PCLink-sub000/internal/pairing"
)

type PairingHandler struct {
	coordinator *pairing.Coordinator
}

func NewPairingHandler(coordinator *pairing.Coordinator) *PairingHandler {
	return &PairingHandler{coordinator: coordinator}
}

// Request handles POST /pairing/request. The call blocks until an operator
// decides or the handshake times out; on approval the response carries the
// issued key and the certificate fingerprint to pin.
func (h *PairingHandler) Request(c *fiber.Ctx) error {
	var req pairing.Request
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	req.IP = c.IP()

	result, err := h.coordinator.RequestPairing(req)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"device_id":        result.DeviceID,
		"api_key":          result.APIKey,
		"cert_fingerprint": result.CertFingerprint,
	})
}

// DecisionRequest represents an operator's approve/deny call.
type DecisionRequest struct {
	PairingID string `json:"pairing_id"`
	Approved  bool   `json:"approved"`
}

// Approve handles POST /pairing/approve.
func (h *PairingHandler) Approve(c *fiber.Ctx) error {
	var req DecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.PairingID == "" {
		return apperr.Validation("pairing_id is required")
	}

	if err := h.coordinator.Decide(req.PairingID, req.Approved); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"status":   "ok",
		"approved": req.Approved,
	})
}

// Deny handles POST /pairing/deny.
func (h *PairingHandler) Deny(c *fiber.Ctx) error {
	var req DecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.PairingID == "" {
		return apperr.Validation("pairing_id is required")
	}

	if err := h.coordinator.Decide(req.PairingID, false); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"status":   "ok",
		"approved": false,
	})
}
