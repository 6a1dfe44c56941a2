// Package content fetches the plain-text notices shown to users and pinned
// into new threads. A fetch that fails or returns an empty body yields the
// fallback string instead.
package content

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Fetcher retrieves a remote document by URL.
type Fetcher struct {
	http    *resty.Client
	timeout time.Duration
}

// NewFetcher returns a Fetcher whose requests are bounded by timeout
// (default 5s).
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Fetcher{http: resty.New(), timeout: timeout}
}

// Text returns the trimmed body at url, or fallback when url is empty, the
// request fails, the status is not 2xx, or the body is blank.
func (f *Fetcher) Text(ctx context.Context, url, fallback string) string {
	if strings.TrimSpace(url) == "" {
		return fallback
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.http.R().SetContext(ctx).Get(url)
	if err != nil || !resp.IsSuccess() {
		ev := zerolog.Ctx(ctx).Warn().Str("url", url)
		if err != nil {
			ev = ev.Err(err)
		} else {
			ev = ev.Int("status", resp.StatusCode())
		}
		ev.Msg("remote content fetch failed; using fallback")
		return fallback
	}
	body := strings.TrimSpace(resp.String())
	if body == "" {
		return fallback
	}
	return body
}
