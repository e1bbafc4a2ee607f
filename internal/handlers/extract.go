package handlers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tabscribe/tabscribe/internal/browser"
	"github.com/tabscribe/tabscribe/internal/dispatch"
	"github.com/tabscribe/tabscribe/internal/types"
)

// ExtractHandler triggers a single-page extraction and waits for its result.
type ExtractHandler struct {
	dispatcher  *dispatch.Dispatcher
	browser     *browser.Browser
	waitTimeout time.Duration
}

// NewExtractHandler creates a single-page extraction handler.
func NewExtractHandler(d *dispatch.Dispatcher, b *browser.Browser, waitTimeout time.Duration) *ExtractHandler {
	return &ExtractHandler{
		dispatcher:  d,
		browser:     b,
		waitTimeout: waitTimeout,
	}
}

// ExtractRequest represents the request body.
type ExtractRequest struct {
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Mode     string `json:"mode"`
}

// Handle processes single-page extraction requests.
func (h *ExtractHandler) Handle(c *fiber.Ctx) error {
	var req ExtractRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}

	mode := req.Mode
	if mode == "" {
		mode = types.ModeMarkdown
	}
	if mode != types.ModeMarkdown && mode != types.ModeClipboard {
		return c.Status(400).JSON(fiber.Map{
			"error": "mode must be markdown or clipboard",
			"code":  "ERR_INVALID_MODE",
		})
	}

	page, err := h.resolvePage(c, &req)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": err.Error(),
			"code":  types.CodeNoVideo,
		})
	}
	defer page.Release()

	// The waiter goes in before the start command so a result that lands
	// immediately still finds a listener.
	resCh := h.dispatcher.Register(page.ID(), h.waitTimeout)

	if err := h.dispatcher.StartPage(c.UserContext(), page, mode); err != nil {
		h.dispatcher.Unregister(page.ID())
		switch err {
		case dispatch.ErrBusy:
			return c.Status(409).JSON(fiber.Map{
				"error": "an extraction is already running on this page",
				"code":  types.CodeAlreadyRunning,
			})
		case dispatch.ErrUnsupportedPage:
			return c.Status(400).JSON(fiber.Map{
				"error": "page is not a video watch page",
				"code":  types.CodeNoVideo,
			})
		default:
			log.Printf("extract: failed to start on page %s: %v", page.ID(), err)
			return c.Status(502).JSON(fiber.Map{
				"error": err.Error(),
				"code":  types.CodeExtractionFailed,
			})
		}
	}

	res := <-resCh
	if res.Kind != types.MsgExtractionSuccess {
		code := types.CodeExtractionFailed
		message := "extraction failed"
		if res.Err != nil {
			code = res.Err.Code
			message = res.Err.Message
		}
		return c.Status(422).JSON(fiber.Map{
			"error": message,
			"code":  code,
		})
	}

	return c.JSON(fiber.Map{
		"status":   "done",
		"mode":     res.Mode,
		"video_id": res.VideoID,
		"filename": res.Filename,
	})
}

// resolvePage picks the tab to operate on: an explicit target ID wins, then a
// URL match among open video tabs, then whatever tab is in the foreground.
func (h *ExtractHandler) resolvePage(c *fiber.Ctx, req *ExtractRequest) (*browser.Tab, error) {
	ctx := c.UserContext()

	if req.TargetID != "" {
		return h.browser.TabByID(ctx, req.TargetID)
	}

	if req.URL != "" {
		tabs, err := h.browser.VideoTabs(ctx)
		if err != nil {
			return nil, err
		}
		for _, tab := range tabs {
			if tab.URL() == req.URL {
				return tab, nil
			}
		}
		// Not open yet: point the foreground tab at it.
		tab, err := h.browser.ForegroundTab(ctx)
		if err != nil {
			return nil, err
		}
		if err := tab.Navigate(ctx, req.URL); err != nil {
			return nil, err
		}
		if err := tab.WaitReady(ctx, 10*time.Second); err != nil {
			return nil, err
		}
		return tab, nil
	}

	return h.browser.ForegroundTab(ctx)
}
