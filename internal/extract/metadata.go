package extract

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"github.com/tabscribe/tabscribe/internal/pagedata"
	"github.com/tabscribe/tabscribe/internal/types"
)

// resolveMetadata gathers title/channel/date/description. Title is mandatory
// and its absence fails the whole run; every other field independently falls
// back through structured data then DOM selectors and is simply omitted when
// unavailable.
func (e *Engine) resolveMetadata(ctx context.Context, snap *pagedata.Snapshot) (types.Metadata, error) {
	player := snap.PlayerResponse(ctx)
	details := pagedata.Obj(player, "videoDetails")
	micro := pagedata.Obj(player, "microformat", "playerMicroformatRenderer")

	var doc *goquery.Document
	if html, err := snap.HTML(ctx); err == nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(html))
	}

	md := types.Metadata{}

	md.Title = pagedata.Str(details, "title")
	if md.Title == "" && doc != nil {
		md.Title = domTitle(doc, e.page.URL())
	}
	if strings.TrimSpace(md.Title) == "" {
		return md, types.NewExtractError(types.CodeNoTitle, "could not determine video title")
	}

	md.ChannelName = pagedata.Str(details, "author")
	if md.ChannelName == "" && doc != nil {
		md.ChannelName = strings.TrimSpace(doc.Find("ytd-channel-name #text a").First().Text())
	}

	md.ChannelURL = pagedata.Str(micro, "ownerProfileUrl")
	if md.ChannelURL == "" && doc != nil {
		if href, ok := doc.Find("ytd-channel-name a[href]").First().Attr("href"); ok {
			md.ChannelURL = absoluteChannelURL(href)
		}
	}

	raw := pagedata.Str(micro, "publishDate")
	if raw == "" && doc != nil {
		raw, _ = doc.Find(`meta[itemprop="datePublished"]`).First().Attr("content")
	}
	md.PublishDate = formatPublishDate(raw, time.Now())

	md.Description = pagedata.Str(details, "shortDescription")
	if md.Description == "" && doc != nil {
		md.Description, _ = doc.Find(`meta[name="description"]`).First().Attr("content")
	}

	return md, nil
}

// domTitle tries the page-type-specific selectors: Shorts render their title
// differently from the standard watch layout.
func domTitle(doc *goquery.Document, pageURL string) string {
	selectors := []string{
		"h1.ytd-watch-metadata yt-formatted-string",
		`meta[name="title"]`,
	}
	if strings.Contains(pageURL, "/shorts/") {
		selectors = []string{
			"yt-shorts-video-title-view-model h2",
			".ytShortsVideoTitleViewModelShortsVideoTitle",
			`meta[name="title"]`,
		}
	}
	for _, sel := range selectors {
		node := doc.Find(sel).First()
		if content, ok := node.Attr("content"); ok && content != "" {
			return content
		}
		if text := strings.TrimSpace(node.Text()); text != "" {
			return text
		}
	}
	return ""
}

func absoluteChannelURL(href string) string {
	if strings.HasPrefix(href, "/") {
		return "https://www.youtube.com" + href
	}
	return href
}

// formatPublishDate parses raw into a long human-readable date. It accepts
// ISO/slash-delimited strings, bare numeric epochs (seconds vs milliseconds
// by magnitude), or anything dateparse can handle. Dates before 2005 or after
// now are garbage from upstream and are treated as absent.
func formatPublishDate(raw string, now time.Time) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var parsed time.Time
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e11 { // milliseconds have 13 digits, seconds 10
			parsed = time.UnixMilli(n).UTC()
		} else {
			parsed = time.Unix(n, 0).UTC()
		}
	} else {
		t, err := dateparse.ParseAny(raw)
		if err != nil {
			return ""
		}
		parsed = t
	}

	if parsed.Year() < 2005 || parsed.After(now) {
		return ""
	}
	return parsed.Format("January 2, 2006")
}
