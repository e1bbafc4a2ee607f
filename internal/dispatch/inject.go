package dispatch

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/tabscribe/tabscribe/internal/extract"
	"github.com/tabscribe/tabscribe/internal/types"
)

// EngineRunner is the slice of the extraction engine the worker drives.
type EngineRunner interface {
	Run(ctx context.Context, mode string) (*extract.Outcome, *types.ExtractError)
}

// EngineFactory builds an engine bound to a page. Returns an error when the
// page cannot host one (wrong concrete type, dead target).
type EngineFactory func(page Page) (EngineRunner, error)

// ResultSink receives worker result events; in practice it is the
// dispatcher's HandleResult.
type ResultSink func(pageID string, res types.Result)

// Recorder persists successful extractions (database row plus any remote
// export of the document). Optional.
type Recorder interface {
	Record(rec types.ExtractionRecord, document string) error
}

// Prober is implemented by pages that can answer a liveness check; injection
// fails early on pages that don't respond.
type Prober interface {
	Probe(ctx context.Context) error
}

// EngineInjector is the production Injector: it probes the page, builds an
// engine for it, and returns a worker that runs the engine asynchronously and
// reports through the sink.
type EngineInjector struct {
	factory  EngineFactory
	sink     ResultSink
	recorder Recorder
}

func NewEngineInjector(factory EngineFactory, sink ResultSink, recorder Recorder) *EngineInjector {
	return &EngineInjector{factory: factory, sink: sink, recorder: recorder}
}

func (i *EngineInjector) Inject(ctx context.Context, page Page) (Worker, error) {
	if p, ok := page.(Prober); ok {
		if err := p.Probe(ctx); err != nil {
			return nil, fmt.Errorf("page %s did not accept injection: %w", page.ID(), err)
		}
	}
	engine, err := i.factory(page)
	if err != nil {
		return nil, err
	}
	return &pageWorker{
		pageID:   page.ID(),
		engine:   engine,
		sink:     i.sink,
		recorder: i.recorder,
	}, nil
}

// pageWorker lives alongside one page for one operation. It runs the engine
// in its own goroutine and emits exactly one result event.
type pageWorker struct {
	pageID   string
	engine   EngineRunner
	sink     ResultSink
	recorder Recorder
}

func (w *pageWorker) Start(ctx context.Context, cmd types.StartExtraction) error {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("worker: PANIC on page %s: %v\n%s", w.pageID, r, debug.Stack())
				w.sink(w.pageID, types.Result{
					Kind: types.MsgExtractionError,
					Mode: cmd.Mode,
					Err: types.NewExtractError(types.CodeExtractionFailed,
						fmt.Sprintf("worker panic: %v", r)),
				})
			}
		}()

		out, xerr := w.engine.Run(ctx, cmd.Mode)
		if xerr != nil {
			w.sink(w.pageID, types.Result{Kind: types.MsgExtractionError, Mode: xerr.Mode, Err: xerr})
			return
		}

		if w.recorder != nil && out.Mode == types.ModeMarkdown {
			rec := types.ExtractionRecord{
				OpID:      uuid.New().String(),
				VideoID:   out.VideoID,
				Title:     out.Metadata.Title,
				Channel:   out.Metadata.ChannelName,
				Mode:      out.Mode,
				LocalPath: out.LocalPath,
				WordCount: out.WordCount,
				CreatedAt: time.Now(),
			}
			if err := w.recorder.Record(rec, out.Document); err != nil {
				log.Printf("worker: failed to record extraction for %s: %v", out.VideoID, err)
			}
		}

		w.sink(w.pageID, types.Result{
			Kind:     types.MsgExtractionSuccess,
			Mode:     out.Mode,
			VideoID:  out.VideoID,
			Filename: out.Filename,
		})
	}()
	return nil
}
