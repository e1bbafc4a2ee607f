package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tabscribe/tabscribe/internal/pagedata"
)

var errNoTranscriptToken = errors.New("no transcript continuation token")

// innertubeText is strategy 2: call the internal get_transcript API with the
// page's own API key and request context. The continuation token is dug out
// of the engagement panels; failing that, out of data the page's rendering
// framework binds to the transcript menu item (best-effort, no stable
// contract).
func (e *Engine) innertubeText(ctx context.Context, snap *pagedata.Snapshot) (string, error) {
	cfg, err := snap.ClientConfig(ctx)
	if err != nil {
		return "", err
	}

	token := transcriptToken(snap.InitialData(ctx))
	if token == "" {
		token = e.domBoundToken(ctx)
	}
	if token == "" {
		return "", errNoTranscriptToken
	}

	payload, err := json.Marshal(map[string]any{
		"context": cfg.Context,
		"params":  token,
	})
	if err != nil {
		return "", err
	}

	body, err := e.fetch(ctx, "POST", e.cfg.InnertubeURL+"?key="+cfg.APIKey, payload,
		http.Header{"Content-Type": []string{"application/json"}})
	if err != nil {
		return "", err
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", err
	}

	segments := initialSegments(doc)
	if segments == nil {
		segments = continuationItems(doc)
	}
	if segments == nil {
		return "", errors.New("transcript response matched neither known shape")
	}

	var lines []string
	for _, seg := range segments {
		var text string
		switch {
		case pagedata.Obj(seg, "transcriptSegmentRenderer") != nil:
			text = pagedata.RunText(pagedata.At(seg, "transcriptSegmentRenderer", "snippet"))
		case pagedata.Obj(seg, "transcriptSectionHeaderRenderer") != nil:
			text = pagedata.RunText(pagedata.At(seg, "transcriptSectionHeaderRenderer", "snippet"))
		}
		if text = normalizeWhitespace(text); text != "" {
			lines = append(lines, text)
		}
	}
	if len(lines) == 0 {
		return "", errors.New("transcript response carried no segments")
	}
	return strings.Join(lines, "\n"), nil
}

// initialSegments handles the first known response shape: the full segment
// list delivered with the panel update action.
func initialSegments(doc map[string]any) []any {
	return pagedata.Arr(doc,
		"actions", 0, "updateEngagementPanelAction", "content",
		"transcriptRenderer", "content", "transcriptSearchPanelRenderer",
		"body", "transcriptSegmentListRenderer", "initialSegments")
}

// continuationItems handles the second known shape: segments appended via a
// continuation action.
func continuationItems(doc map[string]any) []any {
	return pagedata.Arr(doc,
		"onResponseReceivedActions", 0, "appendContinuationItemsAction",
		"continuationItems")
}

// transcriptToken walks the engagement/description panels of ytInitialData
// for a getTranscriptEndpoint continuation token.
func transcriptToken(initial map[string]any) string {
	for _, panel := range pagedata.Arr(initial, "engagementPanels") {
		if token := pagedata.Str(panel,
			"engagementPanelSectionListRenderer", "content",
			"continuationItemRenderer", "continuationEndpoint",
			"getTranscriptEndpoint", "params"); token != "" {
			return token
		}
	}
	return ""
}

// domBoundToken reads the token from data the host page's framework attaches
// to the transcript trigger element. This is an implementation detail of the
// page's rendering and may vanish at any time.
func (e *Engine) domBoundToken(ctx context.Context) string {
	const js = `(() => {
		const items = document.querySelectorAll(
			'ytd-video-description-transcript-section-renderer button, ytd-menu-service-item-renderer');
		for (const el of items) {
			const data = el.data || (el.polymerController && el.polymerController.data);
			const ep = data && (data.serviceEndpoint || data.onTap || data.command);
			const params = ep && ep.getTranscriptEndpoint && ep.getTranscriptEndpoint.params;
			if (params) return params;
		}
		return "";
	})()`

	var token string
	if err := e.page.Eval(ctx, js, &token); err != nil {
		return ""
	}
	return token
}
