package pagedata

import (
	"context"
	"errors"
	"sync"
)

// HTMLSource yields the current serialized DOM of a page.
type HTMLSource func(ctx context.Context) (string, error)

// ClientConfig carries what the internal transcript API needs: the page's
// API key and its innertube request context.
type ClientConfig struct {
	APIKey  string
	Context map[string]any
}

var ErrNoClientConfig = errors.New("pagedata: client config unavailable")

// Snapshot memoizes page-embedded data for the lifetime of one extraction
// run. It is created at run start and discarded at run end; the host page may
// navigate between runs, so nothing survives across them.
type Snapshot struct {
	source HTMLSource

	mu          sync.Mutex
	html        string
	htmlErr     error
	htmlDone    bool
	player      map[string]any
	playerDone  bool
	initial     map[string]any
	initialDone bool
	cfg         *ClientConfig
	cfgErr      error
	cfgDone     bool
}

// NewSnapshot wraps an HTML source in a run-scoped cache.
func NewSnapshot(source HTMLSource) *Snapshot {
	return &Snapshot{source: source}
}

// HTML returns the page markup, fetching it at most once.
func (s *Snapshot) HTML(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.htmlDone {
		s.html, s.htmlErr = s.source(ctx)
		s.htmlDone = true
	}
	return s.html, s.htmlErr
}

// PlayerResponse returns the structured player data document
// (ytInitialPlayerResponse): video details, caption track list, microformat.
// nil when the page doesn't carry one.
func (s *Snapshot) PlayerResponse(ctx context.Context) map[string]any {
	html, err := s.HTML(ctx)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playerDone {
		s.player, _ = ExtractObject(html, "ytInitialPlayerResponse")
		s.playerDone = true
	}
	return s.player
}

// InitialData returns the page's ytInitialData document (engagement panels,
// description panels). nil when absent.
func (s *Snapshot) InitialData(ctx context.Context) map[string]any {
	html, err := s.HTML(ctx)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialDone {
		s.initial, _ = ExtractObject(html, "ytInitialData")
		s.initialDone = true
	}
	return s.initial
}

// ClientConfig extracts the innertube API key and request context from the
// page's ytcfg blob.
func (s *Snapshot) ClientConfig(ctx context.Context) (*ClientConfig, error) {
	html, err := s.HTML(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfgDone {
		return s.cfg, s.cfgErr
	}
	s.cfgDone = true

	cfg, err := ExtractObject(html, "ytcfg.set(")
	if err != nil {
		s.cfgErr = ErrNoClientConfig
		return nil, s.cfgErr
	}
	key := Str(cfg, "INNERTUBE_API_KEY")
	rctx := Obj(cfg, "INNERTUBE_CONTEXT")
	if key == "" || rctx == nil {
		s.cfgErr = ErrNoClientConfig
		return nil, s.cfgErr
	}
	s.cfg = &ClientConfig{APIKey: key, Context: rctx}
	return s.cfg, nil
}
