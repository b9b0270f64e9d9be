// Package report renders an audit.Report into the run's text artifacts and the
// gateway notification.
package report

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/snapetech/iptvaudit/internal/audit"
)

// DefaultMaxLen bounds the notification text, in runes.
const DefaultMaxLen = 1000

// Options shape the notification. The file renderings ignore them.
type Options struct {
	// IncludeAddresses lists "name → address" instead of just names.
	IncludeAddresses bool
	// MaxLen bounds the notification; 0 means DefaultMaxLen. The fixed header
	// is always kept, the dead list is cut with an "...and N more" line.
	MaxLen int
	// ReportRef, if set, is appended so readers know where the full list lives.
	ReportRef string
}

// Rendered holds every text produced from one report.
type Rendered struct {
	// Summary is the short human summary artifact.
	Summary string
	// FailureList is the full report artifact: counts plus dead channels with addresses.
	FailureList string
	// Notification is the bounded gateway message.
	Notification string
}

// Render is deterministic: equal reports and options give equal output.
func Render(r audit.Report, opts Options) Rendered {
	return Rendered{
		Summary:      summary(r),
		FailureList:  failureList(r),
		Notification: notification(r, opts),
	}
}

// SourceFailure is the message sent instead of a report when the playlist cannot be loaded.
func SourceFailure(locator string, err error) string {
	return fmt.Sprintf("⚠️ Could not load the M3U playlist: %s (%v)", locator, err)
}

func failureList(r audit.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Live: %d\nDead: %d\n\n", r.LiveCount, len(r.Dead))
	for _, e := range r.Dead {
		fmt.Fprintf(&b, "%s → %s\n", e.Name, e.Address)
	}
	return b.String()
}

func summary(r audit.Report) string {
	if r.AllLive() {
		return "✅ All channels are live\n"
	}
	var b strings.Builder
	b.WriteString("🛑 DEAD CHANNELS SUMMARY\n\n")
	for _, e := range r.Dead {
		fmt.Fprintf(&b, "❌ %s → %s\n", e.Name, e.Address)
	}
	return b.String()
}

func notification(r audit.Report, opts Options) string {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📺 IPTV report\n✅ Live: %d\n❌ Dead: %d", r.LiveCount, len(r.Dead))
	if r.AllLive() {
		b.WriteString("\nAll channels are live.")
		return b.String()
	}
	b.WriteString("\n\nDead channels:")
	footer := ""
	if opts.ReportRef != "" {
		footer = "\n📄 Full list: " + opts.ReportRef
	}
	// Reserve room for the widest possible "...and N more" line.
	used := utf8.RuneCountInString(b.String()) + utf8.RuneCountInString(footer) +
		utf8.RuneCountInString(moreLine(len(r.Dead)))
	for i, e := range r.Dead {
		line := "\n- " + e.Name
		if opts.IncludeAddresses {
			line += " → " + e.Address
		}
		n := utf8.RuneCountInString(line)
		if used+n > maxLen {
			b.WriteString(moreLine(len(r.Dead) - i))
			break
		}
		b.WriteString(line)
		used += n
	}
	b.WriteString(footer)
	return b.String()
}

func moreLine(n int) string {
	return fmt.Sprintf("\n...and %d more", n)
}
