package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabscribe/tabscribe/internal/types"
)

const watchBase = "https://www.youtube.com/watch?v="

func TestBuildDocumentFullMetadata(t *testing.T) {
	md := types.Metadata{
		Title:       "A Video",
		ChannelName: "Some Channel",
		PublishDate: "January 15, 2024",
		Description: "About things.",
		ChannelURL:  "https://www.youtube.com/@somechannel",
	}

	doc := BuildDocument(md, "dQw4w9WgXcQ", "line one\nline two", watchBase)

	want := strings.Join([]string{
		"A Video",
		"Some Channel",
		"January 15, 2024",
		"About things.",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://www.youtube.com/@somechannel",
		"",
		"line one\nline two",
	}, "\n")
	require.Equal(t, want, doc)
}

func TestBuildDocumentTitleOnly(t *testing.T) {
	doc := BuildDocument(types.Metadata{Title: "A Video"}, "dQw4w9WgXcQ", "body", watchBase)

	want := strings.Join([]string{
		"A Video",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"",
		"body",
	}, "\n")
	require.Equal(t, want, doc)

	// No placeholder lines for missing optional fields.
	require.NotContains(t, doc, "\n\n\n")
}

func TestSanitizeFilenameCleanTitleIsNoOp(t *testing.T) {
	assert.Equal(t, "My Clean Title", SanitizeFilename("My Clean Title"))
}

func TestSanitizeFilenameIllegalCharacters(t *testing.T) {
	got := SanitizeFilename("a/b\\c:d*e?f\"g<h>i|j\x00k")

	require.NotEmpty(t, got)
	for _, c := range `/\:*?"<>|` {
		assert.NotContains(t, got, string(c))
	}
	assert.NotContains(t, got, "\x00")
}

func TestSanitizeFilenameEdgeCases(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "markup stripped", title: "<b>Bold</b> title", want: "Bold title"},
		{name: "reserved device name", title: "CON", want: "CON-file"},
		{name: "reserved name exposed by trimming", title: "CON.", want: "CON-file"},
		{name: "reserved name lowercase padded", title: " nul ", want: "nul-file"},
		{name: "dots trimmed", title: "...dotty...", want: "dotty"},
		{name: "runs collapsed", title: "a --  - b", want: "a-b"},
		{name: "only illegal chars falls back", title: `///\\\`, want: fallbackName},
		{name: "empty falls back", title: "", want: fallbackName},
		{name: "trailing dash stripped", title: "ends with slash /", want: "ends with slash"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.title))
		})
	}
}

func TestSanitizeFilenameCapsLength(t *testing.T) {
	got := SanitizeFilename(strings.Repeat("x", 300))
	assert.LessOrEqual(t, len(got), 80)
}

func TestBuildFilename(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	got := BuildFilename("My: Video?", ts)
	assert.Equal(t, "YouTube-My-Video-2024-01-15T10-30-00.md", got)
}
