package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/BYTEDz/PCLink-sub000/internal/apperr"
	"github.com/BYTEDz/PCLink-sub000/internal/middleware"
	"github.com/BYTEDz/PCLink-sub000/internal/transfer"
)

type DownloadHandler struct {
	engine *transfer.Engine
}

func NewDownloadHandler(engine *transfer.Engine) *DownloadHandler {
	return &DownloadHandler{engine: engine}
}

// InitiateDownloadRequest represents a download initiation call.
type InitiateDownloadRequest struct {
	FilePath string `json:"file_path"`
}

// Initiate handles POST /download/initiate.
func (h *DownloadHandler) Initiate(c *fiber.Ctx) error {
	var req InitiateDownloadRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}

	sess, err := h.engine.InitiateDownload(middleware.ClientID(c), req.FilePath)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"download_id": sess.TransferID,
		"file_size":   sess.FileSize,
		"file_name":   sess.FileName,
	})
}

// Chunk handles GET /download/chunk/:id with a Range header, answering 206
// with the matching Content-Range.
func (h *DownloadHandler) Chunk(c *fiber.Ctx) error {
	start, end, err := parseRange(c.Get("Range"))
	if err != nil {
		return err
	}

	data, sess, err := h.engine.ReadChunk(middleware.ClientID(c), c.Params("id"), start, end)
	if err != nil {
		return err
	}

	end = start + int64(len(data)) - 1
	c.Set("Content-Type", "application/octet-stream")
	c.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, sess.FileSize))
	return c.Status(fiber.StatusPartialContent).Send(data)
}

// Cancel handles DELETE /download/cancel/:id.
func (h *DownloadHandler) Cancel(c *fiber.Ctx) error {
	if err := h.engine.CancelDownload(middleware.ClientID(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"status": "cancelled",
	})
}

// Status handles GET /download/status/:id.
func (h *DownloadHandler) Status(c *fiber.Ctx) error {
	sess, err := h.engine.Status(middleware.ClientID(c), middleware.IsMaster(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    sess,
	})
}

// parseRange parses "bytes=start-end"; an open end ("bytes=N-") is allowed
// and clamped by the engine against the file size.
func parseRange(header string) (int64, int64, error) {
	if !strings.HasPrefix(header, "bytes=") {
		return 0, 0, apperr.Validation("Range header is required")
	}
	parts := strings.SplitN(strings.TrimPrefix(header, "bytes="), "-", 2)
	if len(parts) != 2 || parts[0] == "" {
		return 0, 0, apperr.Validation("malformed Range header %q", header)
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 {
		return 0, 0, apperr.Validation("malformed Range header %q", header)
	}
	end := int64(1<<62 - 1)
	if parts[1] != "" {
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil || end < start {
			return 0, 0, apperr.Validation("malformed Range header %q", header)
		}
	}
	return start, end, nil
}
