// Package job wires one audit run end to end: load, parse, probe, render, write, notify.
package job

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/snapetech/iptvaudit/internal/audit"
	"github.com/snapetech/iptvaudit/internal/metrics"
	"github.com/snapetech/iptvaudit/internal/notify"
	"github.com/snapetech/iptvaudit/internal/playlist"
	"github.com/snapetech/iptvaudit/internal/report"
	"github.com/snapetech/iptvaudit/internal/source"
)

// Job is one configured run. Build it in main from config.Config.
type Job struct {
	Locator    string
	Source     source.Options
	Parse      playlist.Options
	Checker    audit.Checker
	Render     report.Options
	Paths      report.Paths
	Dispatcher *notify.Dispatcher
	Recipients []notify.Recipient

	// Metrics is optional. When set, it is exported to MetricsFile and/or
	// PushgatewayURL at the end of Execute, grouped by RunID.
	Metrics        *metrics.Run
	MetricsFile    string
	PushgatewayURL string
	RunID          string
}

// Result describes what a run did.
type Result struct {
	// SourceFailed is set when the playlist could not be loaded; Report is then empty
	// and the recipients got the source-failure message instead.
	SourceFailed bool
	SourceErr    error
	Entries      int
	Report       audit.Report
	Rendered     report.Rendered
	Deliveries   []notify.Delivery
}

// Execute runs the job. A source outage is not an error: it is reported to the
// recipients and in Result. The returned error is audit.ErrInterrupted when ctx
// was cancelled while loading or probing (no artifacts written, nothing sent), or an
// artifact write failure (notifications are still sent).
func (j *Job) Execute(ctx context.Context) (Result, error) {
	var res Result
	defer j.exportMetrics()

	raw, err := source.Load(ctx, j.Locator, j.Source)
	if err != nil && ctx.Err() != nil {
		// Shutdown, not an outage: nothing is sent and source_up is left unset.
		return res, fmt.Errorf("%w: loading playlist: %w", audit.ErrInterrupted, err)
	}
	if err != nil {
		log.Printf("Could not load playlist %s: %v", j.Locator, err)
		res.SourceFailed, res.SourceErr = true, err
		j.setSourceUp(false)
		res.Deliveries = j.dispatch(ctx, report.SourceFailure(j.Locator, err))
		return res, nil
	}
	j.setSourceUp(true)

	entries := playlist.Parse(raw, j.Parse)
	res.Entries = len(entries)
	log.Printf("Channels found: %d", len(entries))

	var obs audit.Observer
	if j.Metrics != nil {
		obs = j.Metrics
	}
	rep, err := audit.Run(ctx, entries, j.Checker, obs)
	res.Report = rep
	if err != nil {
		return res, err
	}
	log.Printf("Verification complete: %d live, %d dead of %d", rep.LiveCount, len(rep.Dead), rep.Total)
	if j.Metrics != nil {
		j.Metrics.SetReport(rep.Total, rep.LiveCount, len(rep.Dead))
	}

	res.Rendered = report.Render(rep, j.Render)
	writeErr := report.WriteArtifacts(j.Paths, res.Rendered)
	if writeErr != nil {
		log.Printf("Writing artifacts failed: %v", writeErr)
	} else {
		log.Printf("Artifacts saved: %s and %s", j.Paths.Report, j.Paths.Summary)
	}

	res.Deliveries = j.dispatch(ctx, res.Rendered.Notification)
	if writeErr != nil {
		return res, fmt.Errorf("artifacts: %w", writeErr)
	}
	return res, nil
}

func (j *Job) dispatch(ctx context.Context, message string) []notify.Delivery {
	if j.Dispatcher == nil || len(j.Recipients) == 0 {
		log.Print("No recipients configured; skipping notifications")
		return nil
	}
	ds := j.Dispatcher.Dispatch(ctx, message, j.Recipients)
	if n := notify.Failures(ds); n > 0 {
		log.Printf("Notifications: %d of %d failed", n, len(ds))
	}
	return ds
}

func (j *Job) setSourceUp(up bool) {
	if j.Metrics != nil {
		j.Metrics.SetSourceUp(up)
	}
}

func (j *Job) exportMetrics() {
	if j.Metrics == nil {
		return
	}
	j.Metrics.Finish(time.Now())
	if err := j.Metrics.WriteTextfile(j.MetricsFile); err != nil {
		log.Printf("Metrics: %v", err)
	}
	if err := j.Metrics.Push(j.PushgatewayURL, j.RunID); err != nil {
		log.Printf("Metrics: %v", err)
	}
}

// Interrupted reports whether err came from cancelling the run.
func Interrupted(err error) bool {
	return errors.Is(err, audit.ErrInterrupted) || errors.Is(err, context.Canceled)
}
