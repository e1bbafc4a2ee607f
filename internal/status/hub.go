// Package status renders per-page operation state as the small badge shown
// by an external display surface. The hub keeps the current badge per page,
// auto-clears transient badges after a duration specific to their meaning,
// and broadcasts every change to subscribers (the WebSocket stream).
package status

import (
	"fmt"
	"sync"
	"time"
)

// Badge text values and their colors.
const (
	TextProcessing = "..."
	TextSuccess    = "✓"
	TextError      = "!"
	TextBatchStart = "⏳"

	ColorGray   = "gray"
	ColorGreen  = "green"
	ColorRed    = "red"
	ColorOrange = "orange"
	ColorBlue   = "blue"
)

// Hold durations per badge meaning.
const (
	SuccessHold = 2 * time.Second
	ErrorHold   = 3 * time.Second
	SummaryHold = 10 * time.Second
)

// Event is one status change, broadcast to subscribers.
type Event struct {
	PageID  string `json:"page_id"`
	Kind    string `json:"kind"` // badge | announce | clear
	Text    string `json:"text,omitempty"`
	Color   string `json:"color,omitempty"`
	Message string `json:"message,omitempty"`
}

type badge struct {
	text  string
	color string
	timer *time.Timer
}

// Hub is the single badge/announcement fan-out point.
type Hub struct {
	mu     sync.Mutex
	badges map[string]*badge
	subs   map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{
		badges: make(map[string]*badge),
		subs:   make(map[chan Event]struct{}),
	}
}

// Set shows a badge on a page. hold > 0 auto-clears it after that duration;
// hold == 0 keeps it until replaced or cleared. Setting a badge cancels any
// pending auto-clear for the page.
func (h *Hub) Set(pageID, text, color string, hold time.Duration) {
	h.mu.Lock()
	if prev, ok := h.badges[pageID]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	b := &badge{text: text, color: color}
	if hold > 0 {
		b.timer = time.AfterFunc(hold, func() { h.Clear(pageID) })
	}
	h.badges[pageID] = b
	h.mu.Unlock()

	h.broadcast(Event{PageID: pageID, Kind: "badge", Text: text, Color: color})
}

// Processing shows the sticky gray in-progress badge.
func (h *Hub) Processing(pageID string) {
	h.Set(pageID, TextProcessing, ColorGray, 0)
}

// Success shows the transient green check, with an optional count.
func (h *Hub) Success(pageID string, count int) {
	text := TextSuccess
	if count > 1 {
		text = fmt.Sprintf("%s%d", TextSuccess, count)
	}
	h.Set(pageID, text, ColorGreen, SuccessHold)
}

// Error shows the transient red error badge.
func (h *Hub) Error(pageID string) {
	h.Set(pageID, TextError, ColorRed, ErrorHold)
}

// BatchStarting shows the blue hourglass on the originating page.
func (h *Hub) BatchStarting(pageID string) {
	h.Set(pageID, TextBatchStart, ColorBlue, 0)
}

// BatchSummary shows the orange N/M partial-result badge, held longer than
// per-page transients.
func (h *Hub) BatchSummary(pageID string, succeeded, total int) {
	h.Set(pageID, fmt.Sprintf("%d/%d", succeeded, total), ColorOrange, SummaryHold)
}

// Clear removes a page's badge.
func (h *Hub) Clear(pageID string) {
	h.mu.Lock()
	if b, ok := h.badges[pageID]; ok {
		if b.timer != nil {
			b.timer.Stop()
		}
		delete(h.badges, pageID)
	}
	h.mu.Unlock()

	h.broadcast(Event{PageID: pageID, Kind: "clear"})
}

// Announce publishes a human-readable message for a page, the accessibility
// counterpart of the badge.
func (h *Hub) Announce(pageID, message string) {
	h.broadcast(Event{PageID: pageID, Kind: "announce", Message: message})
}

// Badge returns the page's current badge text and color.
func (h *Hub) Badge(pageID string) (text, color string, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.badges[pageID]
	if !ok {
		return "", "", false
	}
	return b.text, b.color, true
}

// Subscribe registers an event channel. The returned cancel must be called
// when the consumer goes away.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default: // slow consumer, drop rather than block the pipeline
		}
	}
}
