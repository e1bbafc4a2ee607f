// Package browser wraps the Chrome DevTools connection. Tabs are the unit of
// work: the dispatcher keys its registries by target ID and the extraction
// engine drives pages through the Tab type.
package browser

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/tabscribe/tabscribe/internal/extract"
)

// Browser holds the shared DevTools session.
type Browser struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed []func(id string)
}

// Connect attaches to a running Chrome via its DevTools websocket URL, or
// launches a local instance when url is empty.
func Connect(parent context.Context, url string) (*Browser, error) {
	var (
		allocCtx context.Context
		cancel1  context.CancelFunc
	)
	if url != "" {
		allocCtx, cancel1 = chromedp.NewRemoteAllocator(parent, url)
	} else {
		allocCtx, cancel1 = chromedp.NewExecAllocator(parent, chromedp.DefaultExecAllocatorOptions[:]...)
	}

	ctx, cancel2 := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(ctx); err != nil {
		cancel2()
		cancel1()
		return nil, fmt.Errorf("failed to connect to Chrome: %w", err)
	}

	b := &Browser{
		ctx: ctx,
		cancel: func() {
			cancel2()
			cancel1()
		},
	}

	// Target lifecycle events arrive on the browser session; a destroyed
	// target means its tab closed and any in-flight work must be torn down.
	chromedp.ListenBrowser(ctx, func(ev any) {
		if destroyed, ok := ev.(*target.EventTargetDestroyed); ok {
			b.notifyClosed(string(destroyed.TargetID))
		}
	})

	return b, nil
}

// Close releases the DevTools session. The attached Chrome keeps running.
func (b *Browser) Close() {
	b.cancel()
}

// OnTabClosed registers a callback fired when any tab disappears.
func (b *Browser) OnTabClosed(fn func(id string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, fn)
}

func (b *Browser) notifyClosed(id string) {
	b.mu.Lock()
	fns := append([]func(string){}, b.closed...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}

// VideoTabs lists open tabs whose URL is a supported video page.
func (b *Browser) VideoTabs(ctx context.Context) ([]*Tab, error) {
	infos, err := chromedp.Targets(b.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	var tabs []*Tab
	for _, info := range infos {
		if info.Type == "page" && extract.IsVideoURL(info.URL) {
			tabs = append(tabs, b.Tab(info.TargetID, info.URL))
		}
	}
	return tabs, nil
}

// ForegroundTab returns the currently focused page tab, if any.
func (b *Browser) ForegroundTab(ctx context.Context) (*Tab, error) {
	infos, err := chromedp.Targets(b.ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Type == "page" && info.Attached {
			return b.Tab(info.TargetID, info.URL), nil
		}
	}
	for _, info := range infos {
		if info.Type == "page" {
			return b.Tab(info.TargetID, info.URL), nil
		}
	}
	return nil, fmt.Errorf("no page tabs open")
}

// TabByID attaches to a specific open tab.
func (b *Browser) TabByID(ctx context.Context, id string) (*Tab, error) {
	infos, err := chromedp.Targets(b.ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if string(info.TargetID) == id {
			return b.Tab(info.TargetID, info.URL), nil
		}
	}
	return nil, fmt.Errorf("tab %s not found", id)
}

// Tab wraps a target without attaching to it yet; the per-tab chromedp
// context is created lazily on first use and torn down via Release.
func (b *Browser) Tab(id target.ID, url string) *Tab {
	return &Tab{browser: b, id: id, url: url}
}

// Tab is one browser tab. It implements both the dispatcher's page handle
// and the extraction engine's Page.
type Tab struct {
	browser *Browser
	id      target.ID
	url     string

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func (t *Tab) ID() string  { return string(t.id) }
func (t *Tab) URL() string { return t.url }

// attach creates the per-tab chromedp context on demand.
func (t *Tab) attach() (context.Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctx == nil {
		t.ctx, t.cancel = chromedp.NewContext(t.browser.ctx, chromedp.WithTargetID(t.id))
	}
	return t.ctx, nil
}

// Release drops the per-tab DevTools session without closing the tab.
func (t *Tab) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.ctx, t.cancel = nil, nil
	}
}

// Activate brings the tab to the foreground. Content loading is unreliable
// on background tabs, so batch runs foreground each tab before extracting.
func (t *Tab) Activate(ctx context.Context) error {
	tctx, err := t.attach()
	if err != nil {
		return err
	}
	return chromedp.Run(tctx, target.ActivateTarget(t.id))
}

// WaitReady polls the page's readyState until it reports complete or the
// timeout expires.
func (t *Tab) WaitReady(ctx context.Context, timeout time.Duration) error {
	tctx, err := t.attach()
	if err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		var state string
		if err := chromedp.Run(tctx, chromedp.Evaluate(`document.readyState`, &state)); err == nil && state == "complete" {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("page %s not ready after %s", t.id, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// HTML returns the serialized DOM.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	tctx, err := t.attach()
	if err != nil {
		return "", err
	}
	var html string
	if err := chromedp.Run(tctx, chromedp.Evaluate(`document.documentElement.outerHTML`, &html)); err != nil {
		return "", err
	}
	return html, nil
}

// Eval runs a JS expression and unmarshals its result into out.
func (t *Tab) Eval(ctx context.Context, js string, out any) error {
	tctx, err := t.attach()
	if err != nil {
		return err
	}
	return chromedp.Run(tctx, chromedp.Evaluate(js, out))
}

// EvalPromise runs a Promise-yielding expression and awaits its settlement.
func (t *Tab) EvalPromise(ctx context.Context, js string, out any) error {
	tctx, err := t.attach()
	if err != nil {
		return err
	}
	return chromedp.Run(tctx, chromedp.Evaluate(js, out,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
}

// Probe checks the tab still answers on the DevTools session; used by the
// dispatcher's injection retries.
func (t *Tab) Probe(ctx context.Context) error {
	var ok bool
	if err := t.Eval(ctx, `true`, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("tab %s did not answer probe", t.id)
	}
	return nil
}

// Navigate loads a URL in the tab. Used by the single-page API when the
// caller passes a video URL instead of an open tab.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	tctx, err := t.attach()
	if err != nil {
		return err
	}
	if err := chromedp.Run(tctx, chromedp.Navigate(url)); err != nil {
		return err
	}
	t.url = url
	log.Printf("browser: tab %s navigated to %s", t.id, url)
	return nil
}
