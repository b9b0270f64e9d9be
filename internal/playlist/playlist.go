// Package playlist turns raw extended-M3U bytes into ordered channel entries.
package playlist

import (
	"strings"

	"github.com/snapetech/iptvaudit/internal/safeurl"
	"golang.org/x/text/encoding/charmap"
)

// EntryMarker starts every channel line in an extended M3U playlist.
const EntryMarker = "#EXTINF"

// Entry is one channel: the display name from the #EXTINF line and the stream
// address on the line right after it.
type Entry struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Options controls address validation.
type Options struct {
	// Strict keeps only addresses starting with http:// or https://.
	// The default accepts any non-empty line (rtmp, udp, relative paths).
	Strict bool
}

// Parse scans raw and returns the entries in playlist order. It never fails:
// a marker on the last line, or followed by a blank line, yields nothing.
func Parse(raw []byte, opts Options) []Entry {
	lines := splitLines(decodeLatin1(raw))
	var entries []Entry
	for i, line := range lines {
		if !strings.HasPrefix(line, EntryMarker) {
			continue
		}
		if i+1 >= len(lines) {
			break
		}
		addr := strings.TrimSpace(lines[i+1])
		if addr == "" {
			continue
		}
		if opts.Strict && !safeurl.HasStreamPrefix(addr) {
			continue
		}
		entries = append(entries, Entry{Name: nameFromMarker(line), Address: addr})
	}
	return entries
}

// nameFromMarker returns the text after the last comma, e.g.
// `#EXTINF:-1 tvg-id="x" group-title="News, Intl",BBC World` -> "BBC World".
// Without a comma the whole trimmed line is the name.
func nameFromMarker(line string) string {
	line = strings.TrimSpace(line)
	if i := strings.LastIndex(line, ","); i >= 0 {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}

// decodeLatin1 maps every byte to the rune of the same value. ISO-8859-1
// defines all 256 bytes, so the decoder's error is always nil.
func decodeLatin1(raw []byte) string {
	out, _ := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	return string(out)
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}
