package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// copyToClipboard writes content to the system clipboard from inside the
// page. The async clipboard API is preferred; when it is unavailable or
// refused, a hidden temporary input plus execCommand('copy') is used, with
// any prior text selection restored. Either path succeeds fully or reports a
// reason; partial state is never left behind.
func (e *Engine) copyToClipboard(ctx context.Context, content string) error {
	encoded, err := json.Marshal(content)
	if err != nil {
		return err
	}
	js := fmt.Sprintf(clipboardJS, encoded)

	var result struct {
		OK     bool   `json:"ok"`
		Reason string `json:"reason"`
	}
	if err := e.page.EvalPromise(ctx, js, &result); err != nil {
		return err
	}
	if !result.OK {
		return errors.New(result.Reason)
	}
	return nil
}

const clipboardJS = `(async () => {
	const content = %s;

	if (navigator.clipboard && navigator.clipboard.writeText) {
		try {
			await navigator.clipboard.writeText(content);
			return { ok: true, reason: '' };
		} catch (err) {
			// fall through to the legacy technique
		}
	}

	const selection = document.getSelection();
	const saved = selection && selection.rangeCount > 0
		? selection.getRangeAt(0).cloneRange() : null;

	const input = document.createElement('textarea');
	input.style.position = 'fixed';
	input.style.opacity = '0';
	input.value = content;
	document.body.appendChild(input);
	input.focus();
	input.select();

	let copied = false;
	try {
		copied = document.execCommand('copy');
	} finally {
		input.remove();
		if (saved && selection) {
			selection.removeAllRanges();
			selection.addRange(saved);
		}
	}

	return { ok: copied, reason: copied ? '' : 'execCommand copy was refused' };
})()`
