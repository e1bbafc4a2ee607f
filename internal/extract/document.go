package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/tabscribe/tabscribe/internal/types"
)

// BuildDocument assembles the exported document. Layout is fixed: title,
// then each optional field only when present, then the canonical watch URL,
// optional channel URL, a blank line, and the transcript body. Missing
// optional fields produce no placeholder lines.
func BuildDocument(md types.Metadata, videoID, transcript, watchBaseURL string) string {
	lines := []string{md.Title}
	if md.ChannelName != "" {
		lines = append(lines, md.ChannelName)
	}
	if md.PublishDate != "" {
		lines = append(lines, md.PublishDate)
	}
	if md.Description != "" {
		lines = append(lines, md.Description)
	}
	lines = append(lines, watchBaseURL+videoID)
	if md.ChannelURL != "" {
		lines = append(lines, md.ChannelURL)
	}
	lines = append(lines, "", transcript)
	return strings.Join(lines, "\n")
}

const fallbackName = "transcript"

var (
	markupRe      = regexp.MustCompile(`<[^>]*>`)
	illegalRe     = regexp.MustCompile(`[/\\:*?"<>|[:cntrl:]]`)
	dashSpaceRuns = regexp.MustCompile(`[-\s]{2,}`)
	reservedNames = map[string]bool{
		"CON": true, "PRN": true, "AUX": true, "NUL": true,
		"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
		"COM6": true, "COM7": true, "COM8": true, "COM9": true,
		"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
		"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
	}
)

// BuildFilename derives the artifact name from the title plus an ISO-like
// timestamp for uniqueness.
func BuildFilename(title string, now time.Time) string {
	return "YouTube-" + SanitizeFilename(title) + "-" + now.Format("2006-01-02T15-04-05") + ".md"
}

// SanitizeFilename makes a title safe as a filename on any platform: markup
// stripped, illegal characters replaced with dashes, dots and whitespace
// trimmed, dash/space runs collapsed, length capped, and reserved device
// names suffixed. An empty result falls back to a fixed generic name.
func SanitizeFilename(title string) string {
	s := markupRe.ReplaceAllString(title, "")
	s = illegalRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, ". \t")
	s = dashSpaceRuns.ReplaceAllString(s, "-")

	if r := []rune(s); len(r) > 80 {
		s = string(r[:80])
	}
	s = strings.TrimRight(s, "-")

	// Checked last: trimming can expose a reserved name ("CON." becomes
	// "CON").
	if reservedNames[strings.ToUpper(s)] {
		s = s + "-file"
	}

	if s == "" {
		return fallbackName
	}
	return s
}
