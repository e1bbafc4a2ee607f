package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// domScrapeText is strategy 4, the last resort: drive the page's own UI. If
// the transcript panel isn't already open, open the more-actions menu, find a
// transcript trigger by label heuristics, click it, and watch the DOM until
// segments render. A panel this strategy opened is closed again afterward.
func (e *Engine) domScrapeText(ctx context.Context) (string, error) {
	js := fmt.Sprintf(domScrapeJS, e.cfg.DOMWait.Milliseconds())

	var result struct {
		Lines  []string `json:"lines"`
		Opened bool     `json:"opened"`
		Reason string   `json:"reason"`
	}
	if err := e.page.EvalPromise(ctx, js, &result); err != nil {
		return "", err
	}
	if len(result.Lines) == 0 {
		if result.Reason != "" {
			return "", errors.New("dom scrape: " + result.Reason)
		}
		return "", errors.New("dom scrape: no segments rendered")
	}

	var lines []string
	for _, l := range result.Lines {
		if l = normalizeWhitespace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// domScrapeJS runs entirely inside the page. %d is the segment wait bound in
// milliseconds; the wait is driven by a MutationObserver, not polling.
const domScrapeJS = `(async () => {
	const SEGMENT_SELECTOR = 'ytd-transcript-segment-renderer';

	const readSegments = () => Array.from(
		document.querySelectorAll(SEGMENT_SELECTOR))
		.map(el => (el.textContent || '').trim())
		.filter(Boolean);

	let lines = readSegments();
	if (lines.length) {
		return { lines, opened: false, reason: '' };
	}

	const findTrigger = () => {
		const direct = document.querySelector(
			'ytd-video-description-transcript-section-renderer button');
		if (direct) return direct;
		const candidates = document.querySelectorAll(
			'ytd-menu-service-item-renderer, tp-yt-paper-item, button[aria-label]');
		for (const el of candidates) {
			const label = (el.getAttribute && el.getAttribute('aria-label')) || '';
			const text = (el.textContent || '').trim();
			if (/transcript/i.test(label) || /transcript/i.test(text)) return el;
		}
		return null;
	};

	let trigger = findTrigger();
	if (!trigger) {
		const overflow = document.querySelector(
			'#actions ytd-menu-renderer yt-button-shape button, ' +
			'#actions button[aria-label*="More" i]');
		if (overflow) {
			overflow.click();
			await new Promise(r => setTimeout(r, 300));
			trigger = findTrigger();
		}
	}
	if (!trigger) {
		return { lines: [], opened: false, reason: 'no transcript trigger found' };
	}
	trigger.click();

	lines = await new Promise(resolve => {
		const deadline = setTimeout(() => {
			observer.disconnect();
			resolve(readSegments());
		}, %d);
		const observer = new MutationObserver(() => {
			const got = readSegments();
			if (got.length) {
				clearTimeout(deadline);
				observer.disconnect();
				resolve(got);
			}
		});
		observer.observe(document.body, { childList: true, subtree: true });
	});

	// We opened the panel ourselves; put the page back the way it was.
	const closer = document.querySelector(
		'ytd-engagement-panel-section-list-renderer[visibility="ENGAGEMENT_PANEL_VISIBILITY_EXPANDED"] ' +
		'#visibility-button button');
	if (closer) closer.click();

	return { lines, opened: true, reason: lines.length ? '' : 'segments did not render in time' };
})()`
