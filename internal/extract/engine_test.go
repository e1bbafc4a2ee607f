package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tabscribe/tabscribe/internal/ratelimit"
	"github.com/tabscribe/tabscribe/internal/types"
)

type fakePage struct {
	url       string
	html      string
	evalFn    func(js string, out any) error
	promiseFn func(js string, out any) error
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) HTML(ctx context.Context) (string, error) { return p.html, nil }

func (p *fakePage) Eval(ctx context.Context, js string, out any) error {
	if p.evalFn == nil {
		return json.Unmarshal([]byte(`""`), out)
	}
	return p.evalFn(js, out)
}

func (p *fakePage) EvalPromise(ctx context.Context, js string, out any) error {
	if p.promiseFn == nil {
		return fmt.Errorf("no page context")
	}
	return p.promiseFn(js, out)
}

type fakeSaver struct {
	mu       sync.Mutex
	filename string
	content  string
}

func (s *fakeSaver) Save(filename string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filename = filename
	s.content = string(data)
	return "/tmp/exports/" + filename, nil
}

// pageHTML builds a watch page carrying player data, client config, and an
// engagement-panel transcript token.
func pageHTML(trackURL string) string {
	player := fmt.Sprintf(
		`{"videoDetails":{"videoId":"dQw4w9WgXcQ","title":"Test Video","author":"Test Channel"},`+
			`"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[{"baseUrl":%q,"languageCode":"en"}]}},`+
			`"microformat":{"playerMicroformatRenderer":{"publishDate":"2024-01-15","ownerProfileUrl":"https://www.youtube.com/@test"}}}`,
		trackURL)
	initial := `{"engagementPanels":[{"engagementPanelSectionListRenderer":{"content":{"continuationItemRenderer":{"continuationEndpoint":{"getTranscriptEndpoint":{"params":"token123"}}}}}}]}`
	cfg := `{"INNERTUBE_API_KEY":"testkey","INNERTUBE_CONTEXT":{"client":{"clientName":"WEB"}}}`
	return fmt.Sprintf(
		`<html><script>var ytInitialPlayerResponse = %s;</script><script>ytcfg.set(%s);</script><script>var ytInitialData = %s;</script></html>`,
		player, cfg, initial)
}

func newTestEngine(page Page, saver Saver, cfg Config) *Engine {
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	if cfg.DOMWait == 0 {
		cfg.DOMWait = 100 * time.Millisecond
	}
	if cfg.WatchBaseURL == "" {
		cfg.WatchBaseURL = watchBase
	}
	return New(page, ratelimit.New(100, time.Second), saver, cfg)
}

func TestStrategyOrderIsDeterministic(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/track", func(w http.ResponseWriter, r *http.Request) {
		record("caption-track")
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/innertube", func(w http.ResponseWriter, r *http.Request) {
		record("internal-api")
		http.Error(w, "broken", http.StatusInternalServerError)
	})
	mux.HandleFunc("/timedtext", func(w http.ResponseWriter, r *http.Request) {
		record("timedtext")
		fmt.Fprint(w, `<transcript><text start="0">hello</text><text start="1">world</text></transcript>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	page := &fakePage{
		url:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		html: pageHTML(srv.URL + "/track"),
	}
	saver := &fakeSaver{}
	eng := newTestEngine(page, saver, Config{
		TimedTextURL: srv.URL + "/timedtext",
		InnertubeURL: srv.URL + "/innertube",
	})

	out, xerr := eng.Run(context.Background(), types.ModeMarkdown)
	require.Nil(t, xerr)
	require.Equal(t, []string{"caption-track", "internal-api", "timedtext"}, order[:3])
	require.True(t, strings.HasSuffix(saver.content, "\nhello\nworld"))
	require.Equal(t, "dQw4w9WgXcQ", out.VideoID)
}

func TestCaptionTrackStrategyWins(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/track", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "json3", r.URL.Query().Get("fmt"))
		fmt.Fprint(w, `{"events":[{"segs":[{"utf8":"first  line"}]},{"segs":[{"utf8":"second"},{"utf8":" line"}]}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	page := &fakePage{
		url:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		html: pageHTML(srv.URL + "/track"),
	}
	saver := &fakeSaver{}
	eng := newTestEngine(page, saver, Config{
		TimedTextURL: srv.URL + "/unused",
		InnertubeURL: srv.URL + "/unused",
	})

	out, xerr := eng.Run(context.Background(), types.ModeMarkdown)
	require.Nil(t, xerr)

	// Whitespace normalized per line, lines joined with newlines, document
	// layout per the export format.
	want := strings.Join([]string{
		"Test Video",
		"Test Channel",
		"January 15, 2024",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://www.youtube.com/@test",
		"",
		"first line\nsecond line",
	}, "\n")
	require.Equal(t, want, saver.content)
	require.True(t, strings.HasPrefix(saver.filename, "YouTube-Test Video-"))
	require.Equal(t, 4, out.WordCount)
	require.Equal(t, "Test Video", out.Metadata.Title)
}

func TestInnertubeStrategy(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/track", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	mux.HandleFunc("/innertube", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "testkey", r.URL.Query().Get("key"))
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "token123", req["params"])
		fmt.Fprint(w, `{"actions":[{"updateEngagementPanelAction":{"content":{"transcriptRenderer":{"content":{"transcriptSearchPanelRenderer":{"body":{"transcriptSegmentListRenderer":{"initialSegments":[`+
			`{"transcriptSectionHeaderRenderer":{"snippet":{"simpleText":"Intro"}}},`+
			`{"transcriptSegmentRenderer":{"snippet":{"runs":[{"text":"hello "},{"text":"there"}]}}}`+
			`]}}}}}}}}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	page := &fakePage{
		url:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		html: pageHTML(srv.URL + "/track"),
	}
	saver := &fakeSaver{}
	eng := newTestEngine(page, saver, Config{
		TimedTextURL: srv.URL + "/unused",
		InnertubeURL: srv.URL + "/innertube",
	})

	_, xerr := eng.Run(context.Background(), types.ModeMarkdown)
	require.Nil(t, xerr)
	require.True(t, strings.HasSuffix(saver.content, "\nIntro\nhello there"))
}

func TestNoVideo(t *testing.T) {
	page := &fakePage{
		url:  "https://www.youtube.com/feed/subscriptions",
		html: "<html></html>",
	}
	eng := newTestEngine(page, &fakeSaver{}, Config{})

	_, xerr := eng.Run(context.Background(), types.ModeMarkdown)
	require.NotNil(t, xerr)
	require.Equal(t, types.CodeNoVideo, xerr.Code)
}

func TestNoTitleIsFatal(t *testing.T) {
	page := &fakePage{
		url:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		html: `<html><script>var ytInitialPlayerResponse = {"videoDetails":{"videoId":"dQw4w9WgXcQ"}};</script></html>`,
	}
	eng := newTestEngine(page, &fakeSaver{}, Config{})

	_, xerr := eng.Run(context.Background(), types.ModeMarkdown)
	require.NotNil(t, xerr)
	require.Equal(t, types.CodeNoTitle, xerr.Code)
}

func TestNoTranscriptAfterExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nothing here", http.StatusNotFound)
	}))
	defer srv.Close()

	page := &fakePage{
		url:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		html: pageHTML(srv.URL + "/track"),
	}
	eng := newTestEngine(page, &fakeSaver{}, Config{
		TimedTextURL: srv.URL + "/timedtext",
		InnertubeURL: srv.URL + "/innertube",
	})

	_, xerr := eng.Run(context.Background(), types.ModeMarkdown)
	require.NotNil(t, xerr)
	require.Equal(t, types.CodeNoTranscript, xerr.Code)
}

func TestReentryRejectedWhileRunning(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(entered) })
		<-release
		fmt.Fprint(w, `{"events":[{"segs":[{"utf8":"done"}]}]}`)
	}))
	defer srv.Close()

	page := &fakePage{
		url:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		html: pageHTML(srv.URL + "/track"),
	}
	saver := &fakeSaver{}
	eng := newTestEngine(page, saver, Config{
		TimedTextURL: srv.URL + "/unused",
		InnertubeURL: srv.URL + "/unused",
	})

	type runResult struct {
		out  *Outcome
		xerr *types.ExtractError
	}
	first := make(chan runResult, 1)
	go func() {
		out, xerr := eng.Run(context.Background(), types.ModeMarkdown)
		first <- runResult{out, xerr}
	}()
	<-entered

	_, xerr := eng.Run(context.Background(), types.ModeMarkdown)
	require.NotNil(t, xerr)
	require.Equal(t, types.CodeAlreadyRunning, xerr.Code)

	// The in-flight run is undisturbed and completes normally.
	close(release)
	res := <-first
	require.Nil(t, res.xerr)
	require.True(t, strings.HasSuffix(saver.content, "\ndone"))
}

func TestClipboardDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"events":[{"segs":[{"utf8":"text"}]}]}`)
	}))
	defer srv.Close()

	copied := false
	page := &fakePage{
		url:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		html: pageHTML(srv.URL + "/track"),
		promiseFn: func(js string, out any) error {
			copied = true
			return json.Unmarshal([]byte(`{"ok":true,"reason":""}`), out)
		},
	}
	eng := newTestEngine(page, &fakeSaver{}, Config{
		TimedTextURL: srv.URL + "/unused",
		InnertubeURL: srv.URL + "/unused",
	})

	out, xerr := eng.Run(context.Background(), types.ModeClipboard)
	require.Nil(t, xerr)
	require.True(t, copied)
	require.Empty(t, out.Filename)
	require.Equal(t, types.ModeClipboard, out.Mode)
}
