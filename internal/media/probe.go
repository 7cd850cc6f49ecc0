package media

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"contentengine/internal/infra"
)

const (
	probeTimeout      = 10 * time.Second
	probeMaxRedirects = 2
)

// Prober checks that a remote URL currently serves an image.
type Prober struct {
	client *http.Client
	logger *infra.Logger
}

// NewProber returns a Prober. A nil client gets a 10 second timeout; the
// redirect limit is applied in both cases.
func NewProber(client *http.Client, logger *infra.Logger) *Prober {
	var c http.Client
	if client != nil {
		c = *client
	}
	if c.Timeout == 0 {
		c.Timeout = probeTimeout
	}
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > probeMaxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	}
	return &Prober{client: &c, logger: infra.LoggerOrDiscard(logger)}
}

// IsFetchable sends HEAD, falling back to a one-byte ranged GET when HEAD
// errors or answers 405, 501 or a redirect. The URL is fetchable when the
// final answer is 2xx with an image/* content type.
func (p *Prober) IsFetchable(ctx context.Context, rawURL string) bool {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return false
	}
	status, ctype, err := p.do(ctx, http.MethodHead, rawURL)
	if err != nil || status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented ||
		(status >= 300 && status < 400) {
		status, ctype, err = p.do(ctx, http.MethodGet, rawURL)
	}
	if err != nil {
		p.logger.Debug().Str("host", Fingerprint(rawURL).HostRedacted).Err(errors.Unwrap(err)).Msg("media: probe failed")
		return false
	}
	return status >= 200 && status < 300 && strings.HasPrefix(strings.ToLower(ctype), "image/")
}

func (p *Prober) do(ctx context.Context, method, rawURL string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", UserAgent)
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
	}()
	return resp.StatusCode, resp.Header.Get("Content-Type"), nil
}
