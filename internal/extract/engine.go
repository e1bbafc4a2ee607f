// Package extract recovers a transcript and metadata from a YouTube video
// page. The host page is an unstable, undocumented surface, so four
// independent strategies are tried in fixed priority order and the first
// non-empty result wins.
package extract

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tabscribe/tabscribe/internal/pagedata"
	"github.com/tabscribe/tabscribe/internal/ratelimit"
	"github.com/tabscribe/tabscribe/internal/types"
)

// Page is the extraction engine's view of a browser tab.
type Page interface {
	URL() string
	HTML(ctx context.Context) (string, error)
	// Eval runs a JS expression in the page and unmarshals its value.
	Eval(ctx context.Context, js string, out any) error
	// EvalPromise runs a JS expression that yields a Promise and awaits it.
	EvalPromise(ctx context.Context, js string, out any) error
}

// Saver persists an exported document and returns its local path.
type Saver interface {
	Save(filename string, data []byte) (string, error)
}

// Config carries the endpoints and bounds the engine operates under. The
// endpoint fields exist so tests can point strategies at local servers.
type Config struct {
	TimedTextURL string
	InnertubeURL string
	WatchBaseURL string
	FetchTimeout time.Duration
	DOMWait      time.Duration
}

// DefaultConfig returns production endpoints and timeouts.
func DefaultConfig() Config {
	return Config{
		TimedTextURL: "https://www.youtube.com/api/timedtext",
		InnertubeURL: "https://www.youtube.com/youtubei/v1/get_transcript",
		WatchBaseURL: "https://www.youtube.com/watch?v=",
		FetchTimeout: 30 * time.Second,
		DOMWait:      5 * time.Second,
	}
}

// Outcome describes a successful run.
type Outcome struct {
	Mode      string
	VideoID   string
	Filename  string
	LocalPath string
	Document  string
	Metadata  types.Metadata
	WordCount int
}

// Engine runs one extraction at a time for one page. Re-entry while a run is
// in flight is rejected, never queued.
type Engine struct {
	page    Page
	limiter *ratelimit.Limiter
	client  *http.Client
	saver   Saver
	cfg     Config
	running atomic.Bool
}

// New creates an engine bound to a page. The limiter is shared process-wide;
// it is the single point of cross-operation contention.
func New(page Page, limiter *ratelimit.Limiter, saver Saver, cfg Config) *Engine {
	return &Engine{
		page:    page,
		limiter: limiter,
		client:  &http.Client{},
		saver:   saver,
		cfg:     cfg,
	}
}

// Run performs the full extraction sequence: video id, metadata, transcript,
// document assembly, delivery. All page data is cached in a snapshot created
// here and discarded when the run ends.
func (e *Engine) Run(ctx context.Context, mode string) (*Outcome, *types.ExtractError) {
	if mode == "" {
		mode = types.ModeMarkdown
	}
	if !e.running.CompareAndSwap(false, true) {
		return nil, &types.ExtractError{
			Code:    types.CodeAlreadyRunning,
			Message: "an extraction is already running for this page",
			Mode:    mode,
		}
	}
	defer e.running.Store(false)

	snap := pagedata.NewSnapshot(e.page.HTML)

	videoID := e.resolveVideoID(ctx, snap)
	if videoID == "" {
		return nil, fail(mode, types.CodeNoVideo, "no video found on this page")
	}

	md, err := e.resolveMetadata(ctx, snap)
	if err != nil {
		var xe *types.ExtractError
		if errors.As(err, &xe) {
			xe.Mode = mode
			return nil, xe
		}
		return nil, fail(mode, types.CodeExtractionFailed, err.Error())
	}

	text, xerr := e.transcript(ctx, snap, videoID)
	if xerr != nil {
		xerr.Mode = mode
		return nil, xerr
	}

	doc := BuildDocument(md, videoID, text, e.cfg.WatchBaseURL)

	out := &Outcome{
		Mode:      mode,
		VideoID:   videoID,
		Metadata:  md,
		Document:  doc,
		WordCount: len(strings.Fields(text)),
	}

	switch mode {
	case types.ModeClipboard:
		if err := e.copyToClipboard(ctx, doc); err != nil {
			return nil, fail(mode, types.CodeOutputFailed, "clipboard copy failed: "+err.Error())
		}
	default:
		filename := BuildFilename(md.Title, time.Now())
		path, err := e.saver.Save(filename, []byte(doc))
		if err != nil {
			return nil, fail(mode, types.CodeOutputFailed, "could not save document: "+err.Error())
		}
		out.Filename = filename
		out.LocalPath = path
	}

	return out, nil
}

// transcript runs the four strategies in priority order. Individual strategy
// failures are expected noise (missing tracks, 429s, absent config) and are
// swallowed; only total exhaustion surfaces an error. A fetch timeout is
// remembered and reported as a connectivity problem instead of NO_TRANSCRIPT.
func (e *Engine) transcript(ctx context.Context, snap *pagedata.Snapshot, videoID string) (string, *types.ExtractError) {
	strategies := []struct {
		name string
		run  func() (string, error)
	}{
		{"caption-track", func() (string, error) { return e.captionTrackText(ctx, snap) }},
		{"internal-api", func() (string, error) { return e.innertubeText(ctx, snap) }},
		{"timedtext", func() (string, error) { return e.timedTextXML(ctx, snap, videoID) }},
		{"dom-scrape", func() (string, error) { return e.domScrapeText(ctx) }},
	}

	sawTimeout := false
	for _, s := range strategies {
		text, err := s.run()
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err != nil {
			if errors.Is(err, errFetchTimeout) {
				sawTimeout = true
			}
			if !expectedNoise(err) {
				log.Printf("extract: strategy %s failed for %s: %v", s.name, videoID, err)
			}
		}
	}

	if sawTimeout {
		return "", &types.ExtractError{
			Code:    types.CodeNetworkTimeout,
			Message: "a network request timed out; check your connection and try again",
		}
	}
	return "", &types.ExtractError{
		Code:    types.CodeNoTranscript,
		Message: "no transcript is available for this video",
	}
}

// expectedNoise reports failures that are part of normal operation on an
// unstable host page and not worth logging.
func expectedNoise(err error) bool {
	return ratelimit.IsRateLimited(err) ||
		errors.Is(err, errNoCaptionTracks) ||
		errors.Is(err, errNoTranscriptToken) ||
		errors.Is(err, errFetchFailed) ||
		errors.Is(err, pagedata.ErrNoClientConfig)
}

func fail(mode, code, message string) *types.ExtractError {
	return &types.ExtractError{Code: code, Message: message, Mode: mode}
}
