package source

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/snapetech/iptvaudit/internal/httpclient"
)

const sample = "#EXTM3U\n#EXTINF:-1,A\nhttp://a.example/1\n"

func TestLoad_localFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Lista25.m3u")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	data, err := Load(context.Background(), path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != sample {
		t.Errorf("data = %q", data)
	}
}

func TestLoad_missingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "none.m3u"), Options{})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestLoad_emptyLocator(t *testing.T) {
	if _, err := Load(context.Background(), "  ", Options{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestLoad_url(t *testing.T) {
	var mu sync.Mutex
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		w.Header().Set("Content-Type", "audio/x-mpegurl")
		w.Write([]byte(sample))
	}))
	defer srv.Close()

	data, err := Load(context.Background(), srv.URL+"/Lista25.m3u", Options{Client: srv.Client()})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != sample {
		t.Errorf("data = %q", data)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(methods) != 2 || methods[0] != http.MethodHead || methods[1] != http.MethodGet {
		t.Errorf("methods = %v, want [HEAD GET]", methods)
	}
}

func TestLoad_headFailureIsUnavailable(t *testing.T) {
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := Load(context.Background(), srv.URL, Options{Client: srv.Client()})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if gets.Load() != 0 {
		t.Errorf("GET issued after failed HEAD")
	}
}

func TestLoad_getServerErrorRetriedThenUnavailable(t *testing.T) {
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		gets.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	policy := httpclient.DefaultRetryPolicy
	policy.Backoff5xx = time.Millisecond
	_, err := Load(context.Background(), srv.URL, Options{Client: srv.Client(), Retry: &policy})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if n := gets.Load(); n != 2 {
		t.Errorf("gets = %d, want 2", n)
	}
}

func TestLoad_brotliBody(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	bw.Write([]byte(sample))
	bw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.Header.Get("Accept-Encoding") != "br, gzip" {
			t.Errorf("Accept-Encoding = %q", r.Header.Get("Accept-Encoding"))
		}
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	data, err := Load(context.Background(), srv.URL, Options{Client: srv.Client()})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != sample {
		t.Errorf("data = %q", data)
	}
}

func TestLoad_gzipBody(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write([]byte(sample))
	gw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	data, err := Load(context.Background(), srv.URL, Options{Client: srv.Client()})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != sample {
		t.Errorf("data = %q", data)
	}
}

func TestCheck_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()
	if err := Check(context.Background(), addr, Options{CheckTimeout: time.Second}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestLoad_oversizedPlaylistIsUnavailable(t *testing.T) {
	defer func(n int) { maxPlaylistSize = n }(maxPlaylistSize)
	maxPlaylistSize = len(sample) - 1
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sample))
	}))
	defer srv.Close()

	data, err := Load(context.Background(), srv.URL, Options{Client: srv.Client()})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, data = %d bytes; want ErrUnavailable", err, len(data))
	}
}

func TestLoad_playlistAtSizeLimit(t *testing.T) {
	defer func(n int) { maxPlaylistSize = n }(maxPlaylistSize)
	maxPlaylistSize = len(sample)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sample))
	}))
	defer srv.Close()

	data, err := Load(context.Background(), srv.URL, Options{Client: srv.Client()})
	if err != nil || string(data) != sample {
		t.Errorf("data = %q, err = %v", data, err)
	}
}

func TestLoad_nonOKSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(sample))
	}))
	defer srv.Close()

	data, err := Load(context.Background(), srv.URL, Options{Client: srv.Client()})
	if err != nil || string(data) != sample {
		t.Errorf("data = %q, err = %v", data, err)
	}
}

func TestLoad_cancelledKeepsCause(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := Load(ctx, srv.URL, Options{Client: srv.Client()})
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want ErrUnavailable wrapping the context error", err)
	}
}
