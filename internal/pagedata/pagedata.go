// Package pagedata digs structured data out of the host page. YouTube embeds
// large JSON documents in inline <script> tags; their shape drifts without
// notice, so every field access here is optional and a miss is never an
// error, just an empty result.
package pagedata

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrMarkerNotFound = errors.New("pagedata: marker not found")

// ExtractObject locates marker inside raw page text and returns the JSON
// object that follows it, found by balance-matching braces. String literals
// and escapes are honored so braces inside values don't end the scan.
func ExtractObject(raw, marker string) (map[string]any, error) {
	idx := strings.Index(raw, marker)
	if idx < 0 {
		return nil, ErrMarkerNotFound
	}

	start := strings.IndexByte(raw[idx+len(marker):], '{')
	if start < 0 {
		return nil, ErrMarkerNotFound
	}
	start += idx + len(marker)

	span, ok := balancedSpan(raw[start:])
	if !ok {
		return nil, errors.New("pagedata: unbalanced object after marker " + marker)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(raw[start:start+span]), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// balancedSpan returns the length of the brace-balanced prefix of s, which
// must start with '{'.
func balancedSpan(s string) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// Str walks path through nested maps/slices and returns the string at the
// end, or "" when any hop is missing or of the wrong shape.
func Str(v any, path ...any) string {
	s, _ := At(v, path...).(string)
	return s
}

// Arr returns the slice at path, or nil.
func Arr(v any, path ...any) []any {
	a, _ := At(v, path...).([]any)
	return a
}

// Obj returns the object at path, or nil.
func Obj(v any, path ...any) map[string]any {
	m, _ := At(v, path...).(map[string]any)
	return m
}

// At walks path (string keys and int indices) through v. Any miss returns
// nil rather than panicking; upstream shapes are never asserted.
func At(v any, path ...any) any {
	cur := v
	for _, p := range path {
		switch key := p.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return nil
			}
			cur = m[key]
		case int:
			a, ok := cur.([]any)
			if !ok || key < 0 || key >= len(a) {
				return nil
			}
			cur = a[key]
		default:
			return nil
		}
	}
	return cur
}

// RunText concatenates the "text" fields of a runs list, the shape YouTube
// uses for styled strings: {"runs":[{"text":...},...]}. Falls back to
// "simpleText" when runs are absent.
func RunText(v any) string {
	if s := Str(v, "simpleText"); s != "" {
		return s
	}
	var b strings.Builder
	for _, run := range Arr(v, "runs") {
		b.WriteString(Str(run, "text"))
	}
	return b.String()
}
