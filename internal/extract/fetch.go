package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tabscribe/tabscribe/internal/ratelimit"
)

var (
	errFetchFailed  = errors.New("fetch failed")
	errFetchTimeout = errors.New("fetch timed out")
)

// fetch routes a request through the shared rate limiter with the engine's
// bounded timeout. A 429 response is wrapped with the limiter's throttling
// marker so it gets requeued and backed off rather than failing the caller.
func (e *Engine) fetch(ctx context.Context, method, url string, body []byte, header http.Header) ([]byte, error) {
	fctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	v, err := e.limiter.Execute(fctx, func(ctx context.Context) (any, error) {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rdr)
		if err != nil {
			return nil, err
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := e.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errFetchTimeout
			}
			return nil, fmt.Errorf("%w: %v", errFetchFailed, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%s: %w", resp.Status, ratelimit.ErrRateLimited)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: unexpected status %d", errFetchFailed, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}, ratelimit.Normal)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errFetchTimeout
		}
		return nil, err
	}
	return v.([]byte), nil
}
