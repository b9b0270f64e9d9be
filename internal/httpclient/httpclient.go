package httpclient

import (
	"log"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/net/http2"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 4
)

var defaultClient *http.Client

func init() {
	defaultClient = &http.Client{
		Timeout:   DefaultTimeout,
		Transport: newTransport(),
	}
}

// newTransport returns a pooled transport with HTTP/2 enabled. Stream CDNs
// commonly negotiate h2 over TLS; plain-HTTP origins keep using HTTP/1.1.
func newTransport() *http.Transport {
	t := cleanhttp.DefaultPooledTransport()
	t.MaxIdleConnsPerHost = MaxIdleConnsPerHost
	t.IdleConnTimeout = DefaultIdleConnTimeout
	if _, err := http2.ConfigureTransports(t); err != nil {
		log.Printf("httpclient: http2 not configured: %v", err)
	}
	return t
}

// Default returns the shared client for playlist fetches and gateway calls.
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client with the given timeout and its own transport.
// A timeout of 0 leaves the client unbounded; callers then rely on their context.
func WithTimeout(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(),
	}
}
