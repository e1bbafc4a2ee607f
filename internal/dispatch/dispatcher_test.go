package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tabscribe/tabscribe/internal/status"
	"github.com/tabscribe/tabscribe/internal/types"
)

type fakePage struct {
	id  string
	url string

	mu        sync.Mutex
	activated int
}

func (p *fakePage) ID() string  { return p.id }
func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Activate(ctx context.Context) error {
	p.mu.Lock()
	p.activated++
	p.mu.Unlock()
	return nil
}

func (p *fakePage) WaitReady(ctx context.Context, timeout time.Duration) error { return nil }

type fakeWorker struct {
	startErr error
	started  chan types.StartExtraction
}

func (w *fakeWorker) Start(ctx context.Context, cmd types.StartExtraction) error {
	if w.startErr != nil {
		return w.startErr
	}
	if w.started != nil {
		w.started <- cmd
	}
	return nil
}

type fakeInjector struct {
	mu       sync.Mutex
	attempts map[string]int
	failFor  map[string]bool
	worker   *fakeWorker
}

func newFakeInjector() *fakeInjector {
	return &fakeInjector{
		attempts: make(map[string]int),
		failFor:  make(map[string]bool),
		worker:   &fakeWorker{},
	}
}

func (i *fakeInjector) Inject(ctx context.Context, page Page) (Worker, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.attempts[page.ID()]++
	if i.failFor[page.ID()] {
		return nil, errors.New("target gone")
	}
	return i.worker, nil
}

func newTestDispatcher() (*Dispatcher, *fakeInjector, *status.Hub) {
	hub := status.NewHub()
	d := NewDispatcher(hub)
	inj := newFakeInjector()
	d.SetInjector(inj)
	return d, inj, hub
}

func TestStartPageRejectsUnsupportedURL(t *testing.T) {
	d, _, hub := newTestDispatcher()
	page := &fakePage{id: "t1", url: "https://example.com/"}

	err := d.StartPage(context.Background(), page, types.ModeMarkdown)
	require.ErrorIs(t, err, ErrUnsupportedPage)

	text, color, ok := hub.Badge("t1")
	require.True(t, ok)
	require.Equal(t, status.TextError, text)
	require.Equal(t, status.ColorRed, color)
}

func TestStartPageRejectsBusyPage(t *testing.T) {
	d, _, _ := newTestDispatcher()
	page := &fakePage{id: "t1", url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}

	require.NoError(t, d.StartPage(context.Background(), page, types.ModeMarkdown))
	err := d.StartPage(context.Background(), page, types.ModeClipboard)
	require.ErrorIs(t, err, ErrBusy)
}

func TestResultSettlesWaiterAndClearsMarker(t *testing.T) {
	d, _, hub := newTestDispatcher()
	page := &fakePage{id: "t1", url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}

	require.NoError(t, d.MarkActive(page.ID(), types.ModeMarkdown))
	ch := d.Register(page.ID(), time.Second)

	d.HandleResult(page.ID(), types.Result{
		Kind:     types.MsgExtractionSuccess,
		Mode:     types.ModeMarkdown,
		VideoID:  "dQw4w9WgXcQ",
		Filename: "YouTube-x.md",
	})

	res := <-ch
	require.Equal(t, types.MsgExtractionSuccess, res.Kind)
	require.Equal(t, "dQw4w9WgXcQ", res.VideoID)
	require.False(t, d.Busy(page.ID()))

	text, _, ok := hub.Badge("t1")
	require.True(t, ok)
	require.Equal(t, status.TextSuccess, text)
}

func TestLegacyResultNamesAreNormalized(t *testing.T) {
	d, _, _ := newTestDispatcher()

	require.NoError(t, d.MarkActive("t1", types.ModeMarkdown))
	ch := d.Register("t1", time.Second)
	d.HandleResult("t1", types.Result{Kind: types.MsgExtractionComplete, Mode: types.ModeMarkdown})
	res := <-ch
	require.Equal(t, types.MsgExtractionSuccess, res.Kind)

	require.NoError(t, d.MarkActive("t2", types.ModeMarkdown))
	ch = d.Register("t2", time.Second)
	d.HandleResult("t2", types.Result{
		Kind: types.MsgExtractionFailed,
		Err:  types.NewExtractError(types.CodeNoTranscript, "none"),
	})
	res = <-ch
	require.Equal(t, types.MsgExtractionError, res.Kind)
	require.Equal(t, types.CodeNoTranscript, res.Err.Code)
}

func TestPageClosedRejectsWaiterImmediately(t *testing.T) {
	d, _, _ := newTestDispatcher()

	require.NoError(t, d.MarkActive("t1", types.ModeMarkdown))
	ch := d.Register("t1", time.Minute)

	d.PageClosed("t1")

	select {
	case res := <-ch:
		require.Equal(t, types.MsgExtractionError, res.Kind)
		require.Equal(t, PageClosedMessage, res.Err.Message)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("waiter was not rejected after page closure")
	}
	require.False(t, d.Busy("t1"))
}

func TestWaiterTimesOut(t *testing.T) {
	d, _, hub := newTestDispatcher()

	require.NoError(t, d.MarkActive("t1", types.ModeMarkdown))
	hub.Processing("t1")
	ch := d.Register("t1", 20*time.Millisecond)

	select {
	case res := <-ch:
		require.Equal(t, types.MsgExtractionError, res.Kind)
		require.Equal(t, WaitTimeoutMsg, res.Err.Message)
	case <-time.After(time.Second):
		t.Fatal("waiter never timed out")
	}
	require.False(t, d.Busy("t1"))

	// The sticky processing badge must give way to a transient error badge.
	require.Eventually(t, func() bool {
		text, color, ok := hub.Badge("t1")
		return ok && text == status.TextError && color == status.ColorRed
	}, time.Second, 5*time.Millisecond)
}

func TestRegisterBeforeStartCatchesFastResult(t *testing.T) {
	d, _, _ := newTestDispatcher()

	ch := d.Register("t1", time.Second)
	// Result arrives before anyone reads the channel; buffered settlement
	// must not lose it.
	d.HandleResult("t1", types.Result{Kind: types.MsgExtractionSuccess, Mode: types.ModeMarkdown})

	res := <-ch
	require.Equal(t, types.MsgExtractionSuccess, res.Kind)
}
