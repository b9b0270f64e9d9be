package safeurl

import (
	"net/url"
	"strings"
)

// IsHTTPOrHTTPS returns true if u parses as a URL with scheme http or https.
// Used to decide whether a playlist locator is fetched over the network or read from disk.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := strings.ToLower(parsed.Scheme)
	return s == "http" || s == "https"
}

// HasStreamPrefix reports whether addr literally starts with http:// or https://
// (case-insensitive). Strict playlist parsing keeps only such addresses.
func HasStreamPrefix(addr string) bool {
	lower := strings.ToLower(addr)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
