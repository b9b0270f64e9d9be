// Command iptv-audit: check every channel of an M3U playlist once and report dead ones.
//
//	run    Load playlist, probe each channel, write output.txt + summary, notify recipients. For cron/CI.
//	list   Load and parse the playlist, print name and address per entry (no probing)
//	probe  Probe one address with the same two-stage check and print the outcome
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/snapetech/iptvaudit/internal/config"
	"github.com/snapetech/iptvaudit/internal/job"
	"github.com/snapetech/iptvaudit/internal/metrics"
	"github.com/snapetech/iptvaudit/internal/notify"
	"github.com/snapetech/iptvaudit/internal/playlist"
	"github.com/snapetech/iptvaudit/internal/probe"
	"github.com/snapetech/iptvaudit/internal/report"
	"github.com/snapetech/iptvaudit/internal/source"
)

// exitInterrupted is the conventional status for a run stopped by SIGINT.
const exitInterrupted = 130

// newJob builds a run from cfg. It is split out of main so tests can drive it.
func newJob(cfg *config.Config, runID string, m *metrics.Run) *job.Job {
	d := &notify.Dispatcher{
		Gateway: &notify.CallMeBot{BaseURL: cfg.GatewayURL, Timeout: cfg.GatewayTimeout},
		Pause:   cfg.SendPause,
	}
	if m != nil {
		d.OnDelivery = m.ObserveDelivery
	}
	return &job.Job{
		Locator: cfg.PlaylistLocator,
		Source:  source.Options{FetchTimeout: cfg.SourceTimeout},
		Parse:   playlist.Options{Strict: cfg.Strict},
		Checker: &probe.Prober{Timeout: cfg.ProbeTimeout, Header: cfg.ProbeHeader()},
		Render: report.Options{
			IncludeAddresses: cfg.NotifyAddresses,
			MaxLen:           cfg.NotifyMaxLen,
			ReportRef:        cfg.ReportPath,
		},
		Paths:          report.Paths{Report: cfg.ReportPath, Summary: cfg.SummaryPath},
		Dispatcher:     d,
		Recipients:     cfg.Recipients,
		Metrics:        m,
		MetricsFile:    cfg.MetricsFile,
		PushgatewayURL: cfg.PushgatewayURL,
		RunID:          runID,
	}
}

// checkRunConfig rejects settings that would make every run a false outage report.
func checkRunConfig(cfg *config.Config) error {
	if strings.TrimSpace(cfg.PlaylistLocator) == "" {
		return errors.New("no playlist: set IPTV_AUDIT_M3U_URL (or M3U_URL) or pass -m3u")
	}
	return nil
}

// runExitCode maps the result of a run to the process status. A playlist outage
// was reported to recipients and is a normal end.
func runExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case job.Interrupted(err):
		return exitInterrupted
	default:
		return 1
	}
}

func listEntries(w io.Writer, entries []playlist.Entry) {
	for i, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, e.Name, e.Address)
	}
	fmt.Fprintf(w, "%d entries\n", len(entries))
}

func printOutcome(w io.Writer, address string, out probe.Outcome) {
	state := "DEAD"
	if out.Live {
		state = "LIVE"
	}
	fmt.Fprintf(w, "%s %s (%s, stage=%s, %d bytes, %s)\n",
		state, address, out.Detail, out.Stage, out.BodyBytes, out.Latency.Round(time.Millisecond))
}

func main() {
	_ = config.LoadEnvFile(".env")
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[iptv-audit] ")

	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	runM3U := runCmd.String("m3u", "", "Playlist URL or path (default: IPTV_AUDIT_M3U_URL or M3U_URL)")
	runReport := runCmd.String("report", "", "Full report path (default: IPTV_AUDIT_REPORT_FILE, output.txt)")
	runSummary := runCmd.String("summary", "", "Summary path (default: IPTV_AUDIT_SUMMARY_FILE, Canales_Caidos.txt)")
	runTimeout := runCmd.Duration("timeout", 0, "Per-stage probe timeout (default: IPTV_AUDIT_PROBE_TIMEOUT, 6s)")
	runStrict := runCmd.Bool("strict", false, "Only keep http:// and https:// addresses (default: IPTV_AUDIT_STRICT)")
	runNoNotify := runCmd.Bool("no-notify", false, "Write artifacts but do not message recipients")

	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	listM3U := listCmd.String("m3u", "", "Playlist URL or path (default: IPTV_AUDIT_M3U_URL or M3U_URL)")
	listStrict := listCmd.Bool("strict", false, "Only keep http:// and https:// addresses")

	probeCmd := flag.NewFlagSet("probe", flag.ExitOnError)
	probeTimeout := probeCmd.Duration("timeout", 0, "Per-stage timeout (default: IPTV_AUDIT_PROBE_TIMEOUT, 6s)")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <run|list|probe> [flags]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  run    Probe every channel, write reports, notify recipients\n")
		fmt.Fprintf(os.Stderr, "  list   Print the parsed playlist entries\n")
		fmt.Fprintf(os.Stderr, "  probe  Probe one address: probe [-timeout 6s] <url>\n")
		os.Exit(1)
	}

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "run":
		_ = runCmd.Parse(os.Args[2:])
		if *runM3U != "" {
			cfg.PlaylistLocator = *runM3U
		}
		if *runReport != "" {
			cfg.ReportPath = *runReport
		}
		if *runSummary != "" {
			cfg.SummaryPath = *runSummary
		}
		if *runTimeout > 0 {
			cfg.ProbeTimeout = *runTimeout
		}
		if *runStrict {
			cfg.Strict = true
		}
		if *runNoNotify {
			cfg.Recipients = nil
		}
		if err := checkRunConfig(cfg); err != nil {
			log.Print(err)
			os.Exit(1)
		}

		runID := uuid.NewString()
		log.Printf("Run %s: playlist %s, %d recipient(s), probe timeout %s", runID, cfg.PlaylistLocator, len(cfg.Recipients), cfg.ProbeTimeout)
		res, err := newJob(cfg, runID, metrics.New()).Execute(ctx)
		code := runExitCode(err)
		switch {
		case code == exitInterrupted:
			log.Print("Verification interrupted by user; no reports written")
		case err != nil:
			log.Printf("Run failed: %v", err)
		case res.SourceFailed:
			log.Print("Playlist unavailable; recipients were notified")
		default:
			log.Printf("Done: %d live, %d dead of %d", res.Report.LiveCount, len(res.Report.Dead), res.Report.Total)
		}
		stop()
		os.Exit(code)

	case "list":
		_ = listCmd.Parse(os.Args[2:])
		locator := cfg.PlaylistLocator
		if *listM3U != "" {
			locator = *listM3U
		}
		raw, err := source.Load(ctx, locator, source.Options{FetchTimeout: cfg.SourceTimeout})
		if err != nil {
			log.Printf("Load playlist: %v", err)
			os.Exit(1)
		}
		listEntries(os.Stdout, playlist.Parse(raw, playlist.Options{Strict: cfg.Strict || *listStrict}))

	case "probe":
		_ = probeCmd.Parse(os.Args[2:])
		if probeCmd.NArg() != 1 {
			log.Print("Usage: probe [-timeout 6s] <url>")
			os.Exit(1)
		}
		timeout := cfg.ProbeTimeout
		if *probeTimeout > 0 {
			timeout = *probeTimeout
		}
		address := probeCmd.Arg(0)
		p := &probe.Prober{Timeout: timeout, Header: cfg.ProbeHeader()}
		out := p.Probe(ctx, address)
		printOutcome(os.Stdout, address, out)
		if !out.Live {
			os.Exit(2)
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
}
