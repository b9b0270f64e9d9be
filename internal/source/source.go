// Package source loads raw playlist bytes from a URL or a local path.
package source

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/snapetech/iptvaudit/internal/httpclient"
	"github.com/snapetech/iptvaudit/internal/safeurl"
)

const (
	DefaultCheckTimeout = 15 * time.Second
	DefaultFetchTimeout = 30 * time.Second
)

// maxPlaylistSize caps the download; real playlists are a few MiB at most.
var maxPlaylistSize = 64 << 20

// ErrUnavailable wraps every failure to obtain the playlist. The run treats it
// as a source-level outage, distinct from dead channels.
var ErrUnavailable = errors.New("playlist unavailable")

// Options tune network loads. Zero values use the defaults.
type Options struct {
	Client       *http.Client
	CheckTimeout time.Duration
	FetchTimeout time.Duration
	Retry        *httpclient.RetryPolicy
}

// Load returns the playlist bytes for locator: an http(s) URL is checked with
// HEAD and then downloaded; anything else is read as a file path.
func Load(ctx context.Context, locator string, opts Options) ([]byte, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, fmt.Errorf("%w: no playlist location configured", ErrUnavailable)
	}
	if !safeurl.IsHTTPOrHTTPS(locator) {
		data, err := os.ReadFile(filepath.Clean(locator))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return data, nil
	}
	if err := Check(ctx, locator, opts); err != nil {
		return nil, err
	}
	data, err := fetch(ctx, locator, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return data, nil
}

// Check is the quick availability test run before downloading: HEAD with
// redirects followed must answer 2xx/3xx.
func Check(ctx context.Context, playlistURL string, opts Options) error {
	timeout := opts.CheckTimeout
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, playlistURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := opts.client().Do(req)
	if err != nil {
		return fmt.Errorf("%w: unreachable: %w", ErrUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("%w: HEAD returned HTTP %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

const userAgent = "iptv-audit/1.0"

func (o Options) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return httpclient.Default()
}

func fetch(ctx context.Context, playlistURL string, opts Options) ([]byte, error) {
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	// Setting Accept-Encoding turns off the transport's transparent gzip, so both are decoded here.
	req.Header.Set("Accept-Encoding", "br, gzip")
	policy := httpclient.DefaultRetryPolicy
	if opts.Retry != nil {
		policy = *opts.Retry
	}
	resp, err := httpclient.DoWithRetry(ctx, opts.client(), req, policy)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errStatusCode(resp.StatusCode)
	}
	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(body, int64(maxPlaylistSize)+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxPlaylistSize {
		return nil, fmt.Errorf("playlist larger than %d bytes", maxPlaylistSize)
	}
	return data, nil
}

func decodeBody(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		return brotli.NewReader(resp.Body), nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		return zr, nil
	default:
		return resp.Body, nil
	}
}

type errStatusCode int

func (e errStatusCode) Error() string {
	return fmt.Sprintf("unexpected status: %d", int(e))
}
