package extract

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/tabscribe/tabscribe/internal/pagedata"
)

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[?&]v=([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtu\.be/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/embed/([a-zA-Z0-9_-]{11})`),
}

// VideoIDFromURL extracts the video identifier from any of the four
// supported URL shapes. Empty when the URL doesn't match.
func VideoIDFromURL(rawURL string) string {
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(rawURL); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

// IsVideoURL reports whether rawURL points at a supported video page
// (standard watch page, Shorts, or the short-link form).
func IsVideoURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "youtu.be":
		return len(strings.Trim(u.Path, "/")) > 0
	case strings.HasSuffix(host, "youtube.com"):
		return u.Path == "/watch" && u.Query().Get("v") != "" ||
			strings.HasPrefix(u.Path, "/shorts/") ||
			strings.HasPrefix(u.Path, "/embed/")
	}
	return false
}

// resolveVideoID parses the page URL, falling back to the identifier the page
// itself carries in its player data. Absence is terminal for the run.
func (e *Engine) resolveVideoID(ctx context.Context, snap *pagedata.Snapshot) string {
	if id := VideoIDFromURL(e.page.URL()); id != "" {
		return id
	}
	return pagedata.Str(snap.PlayerResponse(ctx), "videoDetails", "videoId")
}
