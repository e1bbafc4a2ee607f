package dispatch

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/tabscribe/tabscribe/internal/status"
	"github.com/tabscribe/tabscribe/internal/types"
)

// TabSource enumerates the open pages a batch run operates on.
type TabSource interface {
	// List returns every open tab on a supported video page.
	List(ctx context.Context) ([]Page, error)
	// Foreground returns the currently focused tab.
	Foreground(ctx context.Context) (Page, error)
}

// BatchConfig bounds one batch run. The per-page wait is wider than the
// single-page default because batch pages compete for the shared rate
// limiter's budget.
type BatchConfig struct {
	ReadyTimeout   time.Duration // page-load wait per tab
	PageTimeout    time.Duration // per-page extraction wait
	InjectAttempts int
	InjectPause    time.Duration
	PagePause      time.Duration // breathing room between pages
}

// DefaultBatchConfig returns the production bounds.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		ReadyTimeout:   10 * time.Second,
		PageTimeout:    45 * time.Second,
		InjectAttempts: 3,
		InjectPause:    time.Second,
		PagePause:      500 * time.Millisecond,
	}
}

// Summary tallies a batch run.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Batch drives extraction over every open video page, strictly one page at a
// time. One page's failure never aborts the run; it is tallied and the loop
// moves on.
type Batch struct {
	d    *Dispatcher
	tabs TabSource
	hub  *status.Hub
	cfg  BatchConfig
}

func NewBatch(d *Dispatcher, tabs TabSource, hub *status.Hub, cfg BatchConfig) *Batch {
	return &Batch{d: d, tabs: tabs, hub: hub, cfg: cfg}
}

// Run executes the batch loop and returns the tally. Pages are processed
// sequentially to keep each host page stable and the rate limiter's global
// budget usable.
func (b *Batch) Run(ctx context.Context, mode string) Summary {
	origin, _ := b.tabs.Foreground(ctx)

	pages, err := b.tabs.List(ctx)
	if err != nil || len(pages) == 0 {
		if origin != nil {
			b.hub.Error(origin.ID())
			b.hub.Announce(origin.ID(), "no video pages are open")
		}
		return Summary{}
	}

	if origin != nil {
		b.hub.BatchStarting(origin.ID())
	}

	sum := Summary{Total: len(pages)}
	for _, page := range pages {
		if b.extractPage(ctx, page, origin, mode) {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
		time.Sleep(b.cfg.PagePause)
	}

	if origin != nil {
		b.hub.BatchSummary(origin.ID(), sum.Succeeded, sum.Total)
		b.hub.Announce(origin.ID(),
			"batch finished: "+strconv.Itoa(sum.Succeeded)+" of "+strconv.Itoa(sum.Total)+" pages exported")
	}
	log.Printf("batch: finished %d/%d", sum.Succeeded, sum.Total)
	return sum
}

// extractPage runs one page end to end and reports whether it succeeded.
func (b *Batch) extractPage(ctx context.Context, page Page, origin Page, mode string) bool {
	id := page.ID()

	// A page already mid-operation is skipped, not queued behind.
	if err := b.d.MarkActive(id, mode); err != nil {
		log.Printf("batch: page %s is busy, skipping", id)
		return false
	}

	// Foreground the tab; content loading is unreliable in background tabs.
	if err := page.Activate(ctx); err != nil {
		b.failPage(id, "could not focus page: "+err.Error())
		return false
	}
	if err := page.WaitReady(ctx, b.cfg.ReadyTimeout); err != nil {
		b.failPage(id, "page did not finish loading: "+err.Error())
		return false
	}
	b.hub.Processing(id)

	worker := b.inject(ctx, page)
	if worker == nil {
		b.failPage(id, "could not inject worker")
		return false
	}

	// Register the waiter before sending the command so a result that
	// arrives immediately still finds a listener.
	resCh := b.d.Register(id, b.cfg.PageTimeout)

	if err := worker.Start(ctx, types.StartExtraction{Mode: mode}); err != nil {
		b.d.Unregister(id)
		b.failPage(id, "could not send start command: "+err.Error())
		return false
	}

	res := <-resCh
	if res.Kind != types.MsgExtractionSuccess {
		// The settlement path (worker result or waiter timeout) already
		// showed the error badge and cleared the marker; a closed page has
		// nothing left to badge.
		return false
	}

	// Best-effort restore of whichever tab the user was on. A closed
	// original is not an error.
	if origin != nil && origin.ID() != id {
		if err := origin.Activate(ctx); err != nil {
			log.Printf("batch: could not restore original tab %s: %v", origin.ID(), err)
		}
	}
	return true
}

// inject tries to place the worker up to InjectAttempts times.
func (b *Batch) inject(ctx context.Context, page Page) Worker {
	for attempt := 1; attempt <= b.cfg.InjectAttempts; attempt++ {
		worker, err := b.d.Inject(ctx, page)
		if err == nil {
			return worker
		}
		log.Printf("batch: inject attempt %d/%d failed for page %s: %v",
			attempt, b.cfg.InjectAttempts, page.ID(), err)
		if attempt < b.cfg.InjectAttempts {
			time.Sleep(b.cfg.InjectPause)
		}
	}
	return nil
}

func (b *Batch) failPage(pageID, reason string) {
	b.d.Release(pageID)
	b.hub.Error(pageID)
	b.hub.Announce(pageID, reason)
}
