// Package audit drives the prober across a playlist and builds the run report.
package audit

import (
	"context"
	"errors"
	"log"

	"github.com/snapetech/iptvaudit/internal/playlist"
	"github.com/snapetech/iptvaudit/internal/probe"
)

// ErrInterrupted is returned when the context is cancelled mid-run.
var ErrInterrupted = errors.New("audit interrupted")

// Checker probes one stream address. *probe.Prober implements it.
type Checker interface {
	Probe(ctx context.Context, address string) probe.Outcome
}

// Observer is told about every outcome, in playlist order. May be nil.
type Observer interface {
	ObserveProbe(entry playlist.Entry, out probe.Outcome)
}

// Report is the aggregate of one run. Dead keeps playlist order.
type Report struct {
	Total     int
	LiveCount int
	Dead      []playlist.Entry
}

// Valid reports whether LiveCount + len(Dead) == Total.
func (r Report) Valid() bool {
	return r.LiveCount+len(r.Dead) == r.Total && r.LiveCount >= 0
}

// AllLive is true when no channel probed dead (vacuously true for an empty playlist).
func (r Report) AllLive() bool {
	return len(r.Dead) == 0
}

// Run probes every entry once, sequentially and in order. An individual
// outcome never stops the loop; only ctx cancellation does, in which case the
// partial report covers the entries probed so far and ErrInterrupted is returned.
func Run(ctx context.Context, entries []playlist.Entry, c Checker, obs Observer) (Report, error) {
	rep := Report{Dead: []playlist.Entry{}}
	total := len(entries)
	for i, e := range entries {
		if ctx.Err() != nil {
			return rep, ErrInterrupted
		}
		log.Printf("[%d/%d] Checking: %s -> %s", i+1, total, e.Name, e.Address)
		out := c.Probe(ctx, e.Address)
		if ctx.Err() != nil {
			// The probe was cut short by shutdown, not by the stream.
			return rep, ErrInterrupted
		}
		rep.Total++
		if out.Live {
			rep.LiveCount++
			logLive(e, out)
		} else {
			rep.Dead = append(rep.Dead, e)
			log.Printf("  DEAD: %s (%s)", e.Name, out.Detail)
		}
		if obs != nil {
			obs.ObserveProbe(e, out)
		}
	}
	return rep, nil
}

func logLive(e playlist.Entry, out probe.Outcome) {
	switch {
	case out.Stage == probe.StageHead:
		log.Printf("  LIVE: %s (HEAD %d)", e.Name, out.StatusCode)
	case out.BodyBytes > 0:
		log.Printf("  LIVE: %s (partial GET %d, %d bytes received)", e.Name, out.StatusCode, out.BodyBytes)
	default:
		log.Printf("  LIVE: %s (partial GET %d, no bytes received yet)", e.Name, out.StatusCode)
	}
}
