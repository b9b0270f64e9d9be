// Package probe decides whether a stream address is live using two HTTP stages:
// a HEAD request, then a streaming GET when HEAD does not confirm.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/snapetech/iptvaudit/internal/httpclient"
)

const (
	DefaultTimeout   = 6 * time.Second
	DefaultUserAgent = "VLC/3.0.18 LibVLC/3.0.18"
	DefaultRange     = "bytes=0-1024"
	// ChunkSize bounds the confirmation read in the GET stage.
	ChunkSize = 1024
)

// Stage names the request that produced an Outcome.
type Stage string

const (
	StageHead Stage = "head"
	StageGet  Stage = "get"
)

// Category is the closed set of probe results. Only head-ok and get-ok are live.
type Category string

const (
	CategoryHeadOK           Category = "head-ok"
	CategoryGetOK            Category = "get-ok"
	CategoryTimeout          Category = "timeout"
	CategoryConnection       Category = "connection-error"
	CategoryUnexpectedStatus Category = "unexpected-status"
	CategoryError            Category = "error"
)

// Outcome is the verdict for one address. Detail is for logs only.
type Outcome struct {
	Live       bool
	Category   Category
	Stage      Stage
	StatusCode int
	// BodyBytes is how many bytes the GET stage read while confirming (0..ChunkSize).
	BodyBytes int
	Latency   time.Duration
	Detail    string
	Err       error
}

// Prober runs the two-stage check. The zero value is usable.
type Prober struct {
	// Client may be nil to use a dedicated client without a global timeout;
	// each stage is bounded by Timeout instead.
	Client *http.Client
	// Timeout is the budget of each stage. Stage B gets a fresh budget.
	Timeout time.Duration
	// Header is sent on both stages. Nil means DefaultHeader().
	Header http.Header
}

// DefaultHeader mimics a common IPTV player and asks for the first KiB only.
func DefaultHeader() http.Header {
	return NewHeader(DefaultUserAgent, DefaultRange)
}

// NewHeader builds the probe header set. An empty byteRange omits Range.
func NewHeader(userAgent, byteRange string) http.Header {
	h := http.Header{}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "*/*")
	h.Set("Connection", "keep-alive")
	if byteRange != "" {
		h.Set("Range", byteRange)
	}
	return h
}

var sharedClient = httpclient.WithTimeout(0)

func (p *Prober) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return sharedClient
}

func (p *Prober) timeout() time.Duration {
	if p.Timeout <= 0 {
		return DefaultTimeout
	}
	return p.Timeout
}

func (p *Prober) header() http.Header {
	if p.Header == nil {
		return DefaultHeader()
	}
	return p.Header.Clone()
}

// Probe checks address once. HEAD with a 2xx/3xx answer is live; anything else
// (bad status or transport failure) falls through to a streaming GET, where a
// 2xx/3xx status is live whether or not body bytes arrive.
func (p *Prober) Probe(ctx context.Context, address string) Outcome {
	start := time.Now()
	out := p.stage(ctx, StageHead, address)
	if !out.Live {
		out = p.stage(ctx, StageGet, address)
	}
	out.Latency = time.Since(start)
	return out
}

func (p *Prober) stage(parent context.Context, stage Stage, address string) Outcome {
	ctx, cancel := context.WithTimeout(parent, p.timeout())
	defer cancel()

	method := http.MethodHead
	if stage == StageGet {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, address, nil)
	if err != nil {
		return failed(stage, CategoryError, err)
	}
	req.Header = p.header()
	resp, err := p.client().Do(req)
	if err != nil {
		return failed(stage, classify(err), err)
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	if !liveStatus(code) {
		return Outcome{
			Stage:      stage,
			Category:   CategoryUnexpectedStatus,
			StatusCode: code,
			Detail:     fmt.Sprintf("%s:%d", CategoryUnexpectedStatus, code),
		}
	}
	out := Outcome{Live: true, Stage: stage, StatusCode: code, Category: CategoryHeadOK}
	if stage == StageGet {
		out.Category = CategoryGetOK
		// Best effort: a failed or empty read does not make the stream dead.
		buf := make([]byte, ChunkSize)
		out.BodyBytes, _ = io.ReadAtLeast(resp.Body, buf, 1)
	}
	out.Detail = fmt.Sprintf("%s:%d", out.Category, code)
	return out
}

func liveStatus(code int) bool {
	return code >= 200 && code < 400
}

func failed(stage Stage, cat Category, err error) Outcome {
	detail := string(cat)
	if cat == CategoryError {
		detail = fmt.Sprintf("%s:%v", cat, err)
	}
	return Outcome{Stage: stage, Category: cat, Detail: detail, Err: err}
}

// classify maps a transport error onto timeout, connection-error or error.
func classify(err error) Category {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return CategoryConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryConnection
	}
	return CategoryError
}
