package handlers

import (
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/tabscribe/tabscribe/internal/storage"
)

// RecordsHandler serves the persisted extraction history.
type RecordsHandler struct {
	store *storage.Store
}

// NewRecordsHandler creates a records handler.
func NewRecordsHandler(store *storage.Store) *RecordsHandler {
	return &RecordsHandler{store: store}
}

// List returns recent extraction records, newest first.
func (h *RecordsHandler) List(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 50
	}

	records, err := h.store.List(limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_DATABASE",
		})
	}

	return c.JSON(fiber.Map{
		"count":       len(records),
		"extractions": records,
	})
}

// Get returns one extraction record by operation ID.
func (h *RecordsHandler) Get(c *fiber.Ctx) error {
	rec, err := h.store.Get(c.Params("id"))
	if err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "extraction not found",
			"code":  "ERR_NOT_FOUND",
		})
	}
	return c.JSON(rec)
}

// Text serves the exported document for one extraction.
func (h *RecordsHandler) Text(c *fiber.Ctx) error {
	rec, err := h.store.Get(c.Params("id"))
	if err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "extraction not found",
			"code":  "ERR_NOT_FOUND",
		})
	}

	data, err := os.ReadFile(rec.LocalPath)
	if err != nil {
		return c.Status(410).JSON(fiber.Map{
			"error": "exported document no longer on disk",
			"code":  "ERR_DOCUMENT_GONE",
		})
	}

	c.Set("Content-Type", "text/markdown; charset=utf-8")
	return c.Send(data)
}
