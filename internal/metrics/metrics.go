// Package metrics records one audit run in a private Prometheus registry and
// exports it the way batch jobs do: a node_exporter textfile and/or a Pushgateway push.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/snapetech/iptvaudit/internal/notify"
	"github.com/snapetech/iptvaudit/internal/playlist"
	"github.com/snapetech/iptvaudit/internal/probe"
)

const (
	namespace = "iptv_audit"
	// JobName is the Pushgateway job label.
	JobName = "iptv_audit"
)

// Run holds the collectors of one invocation.
type Run struct {
	Registry *prometheus.Registry

	probes        *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	channels      *prometheus.GaugeVec
	deliveries    *prometheus.CounterVec
	sourceUp      prometheus.Gauge
	lastRun       prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Run {
	r := &Run{
		Registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Channel probes by verdict and outcome category.",
		}, []string{"result", "category"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Wall time of a full two-stage probe.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 6, 8, 12},
		}, []string{"result"}),
		channels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels",
			Help:      "Channels in the last report by state (total, live, dead).",
		}, []string{"state"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Notification deliveries by result (ok, failed, skipped).",
		}, []string{"result"}),
		sourceUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_up",
			Help:      "1 if the playlist could be loaded in the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	r.Registry.MustRegister(r.probes, r.probeDuration, r.channels, r.deliveries, r.sourceUp, r.lastRun)
	return r
}

func verdict(live bool) string {
	if live {
		return "live"
	}
	return "dead"
}

// ObserveProbe implements audit.Observer.
func (r *Run) ObserveProbe(_ playlist.Entry, out probe.Outcome) {
	v := verdict(out.Live)
	r.probes.WithLabelValues(v, string(out.Category)).Inc()
	r.probeDuration.WithLabelValues(v).Observe(out.Latency.Seconds())
}

// ObserveDelivery is suitable as notify.Dispatcher.OnDelivery.
func (r *Run) ObserveDelivery(d notify.Delivery) {
	switch {
	case d.Skipped:
		r.deliveries.WithLabelValues("skipped").Inc()
	case d.OK:
		r.deliveries.WithLabelValues("ok").Inc()
	default:
		r.deliveries.WithLabelValues("failed").Inc()
	}
}

// SetReport records the final counts.
func (r *Run) SetReport(total, live, dead int) {
	r.channels.WithLabelValues("total").Set(float64(total))
	r.channels.WithLabelValues("live").Set(float64(live))
	r.channels.WithLabelValues("dead").Set(float64(dead))
}

// SetSourceUp records whether the playlist loaded.
func (r *Run) SetSourceUp(up bool) {
	if up {
		r.sourceUp.Set(1)
		return
	}
	r.sourceUp.Set(0)
}

// Finish stamps the completion time.
func (r *Run) Finish(at time.Time) {
	r.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in text format for node_exporter's textfile collector.
// The write is atomic (client_golang writes a temp file and renames it).
func (r *Run) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.Registry); err != nil {
		return fmt.Errorf("metrics textfile: %w", err)
	}
	return nil
}

// Push sends the registry to a Pushgateway, grouped by instance (usually the run's host or ID).
func (r *Run) Push(gatewayURL, instance string) error {
	if gatewayURL == "" {
		return nil
	}
	p := push.New(gatewayURL, JobName).Gatherer(r.Registry)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.Push(); err != nil {
		return fmt.Errorf("metrics push: %w", err)
	}
	return nil
}
