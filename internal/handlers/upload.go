package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/BYTEDz/PCLink-sub000/internal/apperr"
	"github.com/BYTEDz/PCLink-sub000/internal/middleware"
	"github.com/BYTEDz/PCLink-sub000/internal/models"
	"github.com/BYTEDz/PCLink-sub000/internal/transfer"
)

type UploadHandler struct {
	engine *transfer.Engine
}

func NewUploadHandler(engine *transfer.Engine) *UploadHandler {
	return &UploadHandler{engine: engine}
}

// InitiateUploadRequest represents an upload initiation call.
type InitiateUploadRequest struct {
	FileName           string                `json:"file_name"`
	DestinationPath    string                `json:"destination_path"`
	FileSize           int64                 `json:"file_size"`
	ConflictResolution models.ConflictPolicy `json:"conflict_resolution"`
}

// Initiate handles POST /upload/initiate.
func (h *UploadHandler) Initiate(c *fiber.Ctx) error {
	var req InitiateUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}

	sess, err := h.engine.InitiateUpload(middleware.ClientID(c), req.DestinationPath, req.FileName, req.FileSize, req.ConflictResolution)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"upload_id":       sess.TransferID,
		"final_file_name": sess.FileName,
		"bytes_received":  sess.BytesTransferred,
	})
}

// Chunk handles POST /upload/chunk/:id?offset=N with the chunk as raw body.
func (h *UploadHandler) Chunk(c *fiber.Ctx) error {
	offset, err := strconv.ParseInt(c.Query("offset", "-1"), 10, 64)
	if err != nil {
		return apperr.Validation("invalid offset")
	}

	written, next, err := h.engine.WriteChunk(middleware.ClientID(c), c.Params("id"), offset, c.Body())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"status":               "ok",
		"bytes_written":        written,
		"next_expected_offset": next,
	})
}

// Complete handles POST /upload/complete/:id.
func (h *UploadHandler) Complete(c *fiber.Ctx) error {
	path, err := h.engine.CompleteUpload(middleware.ClientID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"status": "completed",
		"path":   path,
	})
}

// Cancel handles DELETE /upload/cancel/:id.
func (h *UploadHandler) Cancel(c *fiber.Ctx) error {
	if err := h.engine.CancelUpload(middleware.ClientID(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"status": "cancelled",
	})
}

// Status handles GET /upload/status/:id.
func (h *UploadHandler) Status(c *fiber.Ctx) error {
	sess, err := h.engine.Status(middleware.ClientID(c), middleware.IsMaster(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    sess,
	})
}
