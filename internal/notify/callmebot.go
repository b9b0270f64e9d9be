package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/snapetech/iptvaudit/internal/httpclient"
)

const (
	DefaultCallMeBotURL   = "https://api.callmebot.com/whatsapp.php"
	DefaultGatewayTimeout = 20 * time.Second
	previewBytes          = 200
)

// StatusError is a gateway answer outside 2xx.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gateway returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("gateway returned HTTP %d: %s", e.Code, e.Body)
}

// CallMeBot delivers WhatsApp messages through the CallMeBot HTTP API:
// GET {BaseURL}?phone=<address>&text=<message>&apikey=<credential>.
type CallMeBot struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
}

func (g *CallMeBot) Deliver(ctx context.Context, message string, r Recipient) (int, error) {
	endpoint, err := g.endpoint(message, r)
	if err != nil {
		return 0, err
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultGatewayTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "iptv-audit/1.0")
	client := g.Client
	if client == nil {
		client = httpclient.Default()
	}
	log.Printf("Gateway request: %s", maskKey(endpoint, r.Credential))
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()
	preview, _ := io.ReadAll(io.LimitReader(resp.Body, previewBytes))
	body := strings.TrimSpace(string(preview))
	log.Printf("Gateway response: HTTP %d | %s", resp.StatusCode, body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: body}
	}
	return resp.StatusCode, nil
}

func (g *CallMeBot) endpoint(message string, r Recipient) (string, error) {
	base := g.BaseURL
	if base == "" {
		base = DefaultCallMeBotURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("gateway url: %w", err)
	}
	q := u.Query()
	q.Set("phone", r.Address)
	q.Set("text", message)
	q.Set("apikey", r.Credential)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// maskKey hides the API key in logged URLs.
func maskKey(s, key string) string {
	if key == "" {
		return s
	}
	return strings.Replace(s, "apikey="+url.QueryEscape(key), "apikey=***", 1)
}
