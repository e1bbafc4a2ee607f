package handlers

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"

	"github.com/tabscribe/tabscribe/internal/dispatch"
	"github.com/tabscribe/tabscribe/internal/types"
)

// BatchHandler kicks off an extraction sweep over every open video tab.
type BatchHandler struct {
	batch   *dispatch.Batch
	tabs    dispatch.TabSource
	running atomic.Bool
}

// NewBatchHandler creates a batch extraction handler.
func NewBatchHandler(batch *dispatch.Batch, tabs dispatch.TabSource) *BatchHandler {
	return &BatchHandler{batch: batch, tabs: tabs}
}

// BatchRequest represents the request body.
type BatchRequest struct {
	Mode string `json:"mode"`
}

// Handle starts a batch run in the background. Only one batch runs at a time;
// pages inside the batch are already processed strictly one after another.
func (h *BatchHandler) Handle(c *fiber.Ctx) error {
	var req BatchRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}

	mode := req.Mode
	if mode == "" {
		mode = types.ModeMarkdown
	}

	if !h.running.CompareAndSwap(false, true) {
		return c.Status(409).JSON(fiber.Map{
			"error": "a batch run is already in progress",
			"code":  types.CodeAlreadyRunning,
		})
	}

	pages, err := h.tabs.List(c.UserContext())
	if err != nil {
		h.running.Store(false)
		return c.Status(502).JSON(fiber.Map{
			"error": err.Error(),
			"code":  types.CodeExtractionFailed,
		})
	}
	if len(pages) == 0 {
		h.running.Store(false)
		return c.Status(404).JSON(fiber.Map{
			"error": "no video pages are open",
			"code":  types.CodeNoVideo,
		})
	}

	go func() {
		defer h.running.Store(false)
		sum := h.batch.Run(context.Background(), mode)
		log.Printf("batch: run complete: %d/%d succeeded", sum.Succeeded, sum.Total)
	}()

	return c.JSON(fiber.Map{
		"status": "started",
		"pages":  len(pages),
		"mode":   mode,
	})
}
