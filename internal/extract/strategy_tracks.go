package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/tabscribe/tabscribe/internal/pagedata"
)

var errNoCaptionTracks = errors.New("no caption tracks in player data")

// captionTrackText is strategy 1: read the caption track list from the
// structured player data, fetch the first track's URL forcing the JSON
// events format, and join the segment lines.
func (e *Engine) captionTrackText(ctx context.Context, snap *pagedata.Snapshot) (string, error) {
	tracks := pagedata.Arr(snap.PlayerResponse(ctx),
		"captions", "playerCaptionsTracklistRenderer", "captionTracks")
	if len(tracks) == 0 {
		return "", errNoCaptionTracks
	}
	base := pagedata.Str(tracks[0], "baseUrl")
	if base == "" {
		return "", errNoCaptionTracks
	}

	trackURL, err := forceJSON3(base)
	if err != nil {
		return "", err
	}

	body, err := e.fetch(ctx, "GET", trackURL, nil, nil)
	if err != nil {
		return "", err
	}

	var payload struct {
		Events []struct {
			Segs []struct {
				UTF8 string `json:"utf8"`
			} `json:"segs"`
		} `json:"events"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	if len(payload.Events) == 0 {
		return "", errors.New("caption payload has no events")
	}

	var lines []string
	for _, ev := range payload.Events {
		var b strings.Builder
		for _, seg := range ev.Segs {
			b.WriteString(seg.UTF8)
		}
		line := normalizeWhitespace(b.String())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// forceJSON3 rewrites the track URL's format parameter to the JSON-structured
// events format regardless of what the page handed us.
func forceJSON3(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("fmt", "json3")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// normalizeWhitespace collapses internal whitespace runs to single spaces.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
