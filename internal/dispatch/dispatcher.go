// Package dispatch coordinates extractions across pages. The dispatcher owns
// two registries keyed by page identifier: the active-operation markers and
// the pending-completion waiters that bridge asynchronous worker results back
// to synchronous callers.
package dispatch

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/tabscribe/tabscribe/internal/extract"
	"github.com/tabscribe/tabscribe/internal/status"
	"github.com/tabscribe/tabscribe/internal/types"
)

// Page is a browser tab as the dispatcher sees it.
type Page interface {
	ID() string
	URL() string
	Activate(ctx context.Context) error
	WaitReady(ctx context.Context, timeout time.Duration) error
}

// Worker receives the start command and reports its result back through the
// dispatcher's HandleResult.
type Worker interface {
	Start(ctx context.Context, cmd types.StartExtraction) error
}

// Injector places a worker into a page. Injection can fail on pages that
// stopped answering; callers may retry.
type Injector interface {
	Inject(ctx context.Context, page Page) (Worker, error)
}

var (
	ErrBusy            = errors.New("dispatch: an operation is already active for this page")
	ErrUnsupportedPage = errors.New("dispatch: not a supported video page")
)

// Messages used when settling waiters without a worker result.
const (
	PageClosedMessage = "page closed before the extraction finished"
	WaitTimeoutMsg    = "timed out waiting for the extraction result"
)

type waiter struct {
	ch    chan types.Result
	timer *time.Timer
}

// Dispatcher relays commands to page workers and their results back out. At
// most one operation is active per page; a second request is rejected, not
// queued.
type Dispatcher struct {
	hub      *status.Hub
	injector Injector

	mu      sync.Mutex
	active  map[string]string // page id -> mode
	waiters map[string]*waiter
}

func NewDispatcher(hub *status.Hub) *Dispatcher {
	return &Dispatcher{
		hub:     hub,
		active:  make(map[string]string),
		waiters: make(map[string]*waiter),
	}
}

// SetInjector wires the worker injector. Separated from the constructor
// because the injector's result sink points back at this dispatcher.
func (d *Dispatcher) SetInjector(inj Injector) {
	d.injector = inj
}

// Busy reports whether a page has an operation in flight.
func (d *Dispatcher) Busy(pageID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[pageID]
	return ok
}

// MarkActive reserves a page for an operation. Fails with ErrBusy when a
// marker already exists.
func (d *Dispatcher) MarkActive(pageID, mode string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.active[pageID]; ok {
		return ErrBusy
	}
	d.active[pageID] = mode
	return nil
}

// Release clears a page's active marker.
func (d *Dispatcher) Release(pageID string) {
	d.mu.Lock()
	delete(d.active, pageID)
	d.mu.Unlock()
}

// Inject delegates to the configured injector.
func (d *Dispatcher) Inject(ctx context.Context, page Page) (Worker, error) {
	return d.injector.Inject(ctx, page)
}

// StartPage handles a user-triggered command for a single page: validate,
// reject busy pages, mark active, show processing, inject, send start. The
// result arrives later via HandleResult.
func (d *Dispatcher) StartPage(ctx context.Context, page Page, mode string) error {
	if !extract.IsVideoURL(page.URL()) {
		d.hub.Error(page.ID())
		return ErrUnsupportedPage
	}
	if err := d.MarkActive(page.ID(), mode); err != nil {
		return err
	}
	d.hub.Processing(page.ID())

	worker, err := d.injector.Inject(ctx, page)
	if err != nil {
		d.Release(page.ID())
		d.hub.Error(page.ID())
		return err
	}
	if err := worker.Start(ctx, types.StartExtraction{Mode: mode}); err != nil {
		d.Release(page.ID())
		d.hub.Error(page.ID())
		return err
	}
	return nil
}

// Register creates a pending-completion waiter for a page. Callers register
// BEFORE sending the start command so a fast result can't arrive while nobody
// is listening. The waiter settles exactly once: result, timeout, or page
// closure.
func (d *Dispatcher) Register(pageID string, timeout time.Duration) <-chan types.Result {
	w := &waiter{ch: make(chan types.Result, 1)}
	w.timer = time.AfterFunc(timeout, func() {
		settled := d.settle(pageID, types.Result{
			Kind: types.MsgExtractionError,
			Err:  types.NewExtractError(types.CodeExtractionFailed, WaitTimeoutMsg),
		})
		d.Release(pageID)
		if settled {
			d.hub.Error(pageID)
			d.hub.Announce(pageID, WaitTimeoutMsg)
		}
	})

	d.mu.Lock()
	if prev, ok := d.waiters[pageID]; ok {
		prev.timer.Stop()
	}
	d.waiters[pageID] = w
	d.mu.Unlock()
	return w.ch
}

// Unregister drops a waiter that will never be answered (e.g. the start
// command could not be sent).
func (d *Dispatcher) Unregister(pageID string) {
	d.mu.Lock()
	if w, ok := d.waiters[pageID]; ok {
		w.timer.Stop()
		delete(d.waiters, pageID)
	}
	d.mu.Unlock()
}

// settle delivers res to the page's waiter, if any, exactly once. It reports
// whether a waiter was actually settled.
func (d *Dispatcher) settle(pageID string, res types.Result) bool {
	d.mu.Lock()
	w, ok := d.waiters[pageID]
	if ok {
		w.timer.Stop()
		delete(d.waiters, pageID)
	}
	d.mu.Unlock()
	if ok {
		w.ch <- res
	}
	return ok
}

// HandleResult is the entry point for worker result events. Legacy event
// names are treated identically to their modern equivalents.
func (d *Dispatcher) HandleResult(pageID string, res types.Result) {
	res.Kind = types.NormalizeKind(res.Kind)
	d.Release(pageID)

	switch res.Kind {
	case types.MsgExtractionSuccess:
		d.hub.Success(pageID, 1)
		d.hub.Announce(pageID, "transcript exported ("+res.Mode+")")
	case types.MsgExtractionError:
		d.hub.Error(pageID)
		if res.Err != nil {
			d.hub.Announce(pageID, res.Err.Message)
			log.Printf("dispatch: page %s failed: %s", pageID, res.Err.Error())
		}
	default:
		log.Printf("dispatch: page %s sent unknown result kind %q", pageID, res.Kind)
		return
	}

	d.settle(pageID, res)
}

// PageClosed tears down state for a page that disappeared: the active marker
// is cleared and any pending waiter is rejected immediately, so nobody waits
// forever on a page that will never answer.
func (d *Dispatcher) PageClosed(pageID string) {
	d.Release(pageID)
	d.hub.Clear(pageID)
	d.settle(pageID, types.Result{
		Kind: types.MsgExtractionError,
		Err:  types.NewExtractError(types.CodeExtractionFailed, PageClosedMessage),
	})
}
