package extract

import (
	"context"
	"encoding/xml"
	"errors"
	"html"
	"net/url"
	"strings"

	"github.com/tabscribe/tabscribe/internal/pagedata"
)

// timedTextXML is strategy 3: the legacy plain-XML caption endpoint. It tries
// the page's own caption language first and retries without a language
// qualifier when that yields nothing.
func (e *Engine) timedTextXML(ctx context.Context, snap *pagedata.Snapshot, videoID string) (string, error) {
	lang := pagedata.Str(snap.PlayerResponse(ctx),
		"captions", "playerCaptionsTracklistRenderer", "captionTracks", 0, "languageCode")
	if lang == "" {
		lang = "en"
	}

	text, err := e.fetchTimedText(ctx, videoID, lang)
	if err == nil && text != "" {
		return text, nil
	}

	return e.fetchTimedText(ctx, videoID, "")
}

func (e *Engine) fetchTimedText(ctx context.Context, videoID, lang string) (string, error) {
	q := url.Values{"v": {videoID}}
	if lang != "" {
		q.Set("lang", lang)
	}

	body, err := e.fetch(ctx, "GET", e.cfg.TimedTextURL+"?"+q.Encode(), nil, nil)
	if err != nil {
		return "", err
	}

	var doc struct {
		Texts []struct {
			Value string `xml:",chardata"`
		} `xml:"text"`
	}
	if err := xml.Unmarshal(body, &doc); err != nil {
		return "", err
	}
	if len(doc.Texts) == 0 {
		return "", errors.New("timedtext response has no text nodes")
	}

	var lines []string
	for _, t := range doc.Texts {
		// The endpoint double-escapes entities; the XML decoder only
		// unescapes one layer.
		line := normalizeWhitespace(html.UnescapeString(t.Value))
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return "", errors.New("timedtext response has only empty text nodes")
	}
	return strings.Join(lines, "\n"), nil
}
