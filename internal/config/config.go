package config

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/snapetech/iptvaudit/internal/notify"
	"github.com/snapetech/iptvaudit/internal/probe"
	"github.com/snapetech/iptvaudit/internal/report"
	"github.com/snapetech/iptvaudit/internal/source"
)

// Config is built once in main and passed down; nothing below main reads the environment.
type Config struct {
	// Playlist
	PlaylistLocator string // http(s) URL or local path
	SourceTimeout   time.Duration
	Strict          bool // only http:// and https:// addresses

	// Probing
	ProbeTimeout time.Duration // per stage
	UserAgent    string
	Range        string // "" disables the Range hint

	// Artifacts
	ReportPath  string
	SummaryPath string

	// Notifications
	Recipients      []notify.Recipient
	GatewayURL      string
	GatewayTimeout  time.Duration
	SendPause       time.Duration
	NotifyAddresses bool
	NotifyMaxLen    int

	// Metrics
	MetricsFile    string // node_exporter textfile path
	PushgatewayURL string
}

// Load reads config from the environment. Call LoadEnvFile(".env") first to use a .env file.
// Unprefixed names (M3U_URL, RUTA_RESUMEN, RECIPIENTS_JSON) are accepted for existing CI secrets.
func Load() *Config {
	c := &Config{
		PlaylistLocator: firstEnv("IPTV_AUDIT_M3U_URL", "M3U_URL"),
		SourceTimeout:   getEnvDuration("IPTV_AUDIT_SOURCE_TIMEOUT", source.DefaultFetchTimeout),
		Strict:          getEnvBool("IPTV_AUDIT_STRICT", false),
		ProbeTimeout:    getEnvDuration("IPTV_AUDIT_PROBE_TIMEOUT", probe.DefaultTimeout),
		UserAgent:       getEnv("IPTV_AUDIT_USER_AGENT", probe.DefaultUserAgent),
		Range:           getEnvAllowEmpty("IPTV_AUDIT_RANGE", probe.DefaultRange),
		ReportPath:      getEnv("IPTV_AUDIT_REPORT_FILE", getEnv("RUTA_REPORTE", "output.txt")),
		SummaryPath:     getEnv("IPTV_AUDIT_SUMMARY_FILE", getEnv("RUTA_RESUMEN", "Canales_Caidos.txt")),
		GatewayURL:      getEnv("IPTV_AUDIT_GATEWAY_URL", notify.DefaultCallMeBotURL),
		GatewayTimeout:  getEnvDuration("IPTV_AUDIT_GATEWAY_TIMEOUT", notify.DefaultGatewayTimeout),
		SendPause:       getEnvDuration("IPTV_AUDIT_SEND_PAUSE", notify.DefaultPause),
		NotifyAddresses: getEnvBool("IPTV_AUDIT_NOTIFY_ADDRESSES", false),
		NotifyMaxLen:    getEnvInt("IPTV_AUDIT_NOTIFY_MAX_LEN", report.DefaultMaxLen),
		MetricsFile:     os.Getenv("IPTV_AUDIT_METRICS_FILE"),
		PushgatewayURL:  os.Getenv("IPTV_AUDIT_PUSHGATEWAY_URL"),
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = probe.DefaultTimeout
	}
	if c.SourceTimeout <= 0 {
		c.SourceTimeout = source.DefaultFetchTimeout
	}
	if c.SendPause < 0 {
		c.SendPause = notify.DefaultPause
	}
	if c.NotifyMaxLen <= 0 {
		c.NotifyMaxLen = report.DefaultMaxLen
	}
	recipients, from, err := loadRecipients()
	switch {
	case err != nil:
		log.Printf("Recipients from %s ignored: %v", from, err)
	case from != "":
		log.Printf("Loaded %d recipient(s) from %s", len(recipients), from)
		c.Recipients = recipients
	}
	return c
}

// ProbeHeader is the header set sent on both probe stages.
func (c *Config) ProbeHeader() http.Header {
	return probe.NewHeader(c.UserAgent, c.Range)
}

// loadRecipients prefers RECIPIENTS_JSON, then IPTV_AUDIT_RECIPIENTS_FILE.
// from is "" when neither is set.
func loadRecipients() (r []notify.Recipient, from string, err error) {
	if raw := strings.TrimSpace(os.Getenv("RECIPIENTS_JSON")); raw != "" {
		r, err = ParseRecipients([]byte(raw))
		return r, "RECIPIENTS_JSON", err
	}
	if path := os.Getenv("IPTV_AUDIT_RECIPIENTS_FILE"); path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, path, err
		}
		r, err = ParseRecipients(data)
		return r, path, err
	}
	return nil, "", nil
}

// recipientJSON accepts the historical Spanish keys alongside English ones.
type recipientJSON struct {
	Phone      string `json:"phone"`
	Telefono   string `json:"telefono"`
	Address    string `json:"address"`
	APIKey     string `json:"apikey"`
	Credential string `json:"credential"`
}

// ParseRecipients decodes a JSON array of recipients. Entries with missing
// fields are kept so the dispatcher can report them as skipped.
func ParseRecipients(data []byte) ([]notify.Recipient, error) {
	var raw []recipientJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("recipients: want a JSON array: %w", err)
	}
	out := make([]notify.Recipient, 0, len(raw))
	for _, r := range raw {
		out = append(out, notify.Recipient{
			Address:    strings.TrimSpace(firstNonEmpty(r.Phone, r.Telefono, r.Address)),
			Credential: strings.TrimSpace(firstNonEmpty(r.APIKey, r.Credential)),
		})
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvAllowEmpty distinguishes "unset" (default) from "set to empty" (disable).
func getEnvAllowEmpty(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare numbers are seconds (e.g. IPTV_AUDIT_PROBE_TIMEOUT=6).
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return defaultVal
}
