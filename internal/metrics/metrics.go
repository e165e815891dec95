// Package metrics exposes Prometheus collectors for the rebalancer and the
// dedup selector.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/jazzypop/content-engine/internal/dedup"
	"github.com/jazzypop/content-engine/internal/rebalance"
)

const defaultNamespace = "jazzypop"

// Option configures a Metrics instance.
type Option func(*Metrics)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Metrics) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithRegistry sets the registry metrics are registered with and gathered from.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Metrics) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// WithHistogramBuckets sets custom buckets for latency histograms.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Metrics) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// WithRuntimeCollectors adds the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(m *Metrics) {
		m.runtime = true
	}
}

type Metrics struct {
	namespace string
	registry  *prometheus.Registry
	buckets   []float64
	runtime   bool

	groupDuration  *prometheus.HistogramVec
	runs           *prometheus.CounterVec
	packs          *prometheus.CounterVec
	items          *prometheus.CounterVec
	lastRun        *prometheus.GaugeVec
	lastRunSeconds *prometheus.GaugeVec

	selections        *prometheus.CounterVec
	selectionDuration *prometheus.HistogramVec
	served            *prometheus.CounterVec
}

var (
	_ rebalance.Recorder = (*Metrics)(nil)
	_ dedup.Recorder     = (*Metrics)(nil)
)

func New(opts ...Option) *Metrics {
	m := &Metrics{
		namespace: defaultNamespace,
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	if m.runtime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	f := promauto.With(m.registry)

	m.groupDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "rebalance",
		Name:      "group_duration_seconds",
		Help:      "Time spent rebalancing one group, by outcome.",
		Buckets:   m.buckets,
	}, []string{"strategy", "outcome"})
	m.runs = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "rebalance",
		Name:      "runs_total",
		Help:      "Completed rebalancing runs.",
	}, []string{"content_type", "strategy", "result"})
	m.packs = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "rebalance",
		Name:      "packs_total",
		Help:      "Packs created, updated or deleted by the rebalancer.",
	}, []string{"content_type", "action"})
	m.items = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "rebalance",
		Name:      "items_total",
		Help:      "Items moved, dropped or archived by the rebalancer.",
	}, []string{"content_type", "outcome"})
	m.lastRun = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "rebalance",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time of the last finished run.",
	}, []string{"content_type"})
	m.lastRunSeconds = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "rebalance",
		Name:      "last_run_duration_seconds",
		Help:      "Duration of the last finished run.",
	}, []string{"content_type"})

	m.selections = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "dedup",
		Name:      "selections_total",
		Help:      "Content selections by strategy and outcome.",
	}, []string{"strategy", "outcome"})
	m.selectionDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "dedup",
		Name:      "selection_duration_seconds",
		Help:      "Latency of content selection.",
		Buckets:   m.buckets,
	}, []string{"strategy"})
	m.served = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "dedup",
		Name:      "packs_served_total",
		Help:      "Packs returned to viewers.",
	}, []string{"strategy"})

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Push sends the current values to a Prometheus pushgateway. Used by the
// batch rebalancer, which does not live long enough to be scraped.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job string) error {
	return push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx)
}

func (m *Metrics) ObserveGroup(strategy, outcome string, d time.Duration) {
	m.groupDuration.WithLabelValues(strategy, outcome).Observe(d.Seconds())
}

func (m *Metrics) RecordRun(s rebalance.Summary) {
	result := "ok"
	if s.Errors > 0 {
		result = "partial"
	}
	if s.DryRun {
		result = "dry_run"
	}
	m.runs.WithLabelValues(s.ContentType, s.Strategy, result).Inc()

	m.packs.WithLabelValues(s.ContentType, "created").Add(float64(s.FullPacksCreated))
	m.packs.WithLabelValues(s.ContentType, "updated").Add(float64(s.PacksUpdated))
	m.packs.WithLabelValues(s.ContentType, "deleted").Add(float64(s.PacksDeleted))
	m.packs.WithLabelValues(s.ContentType, "empty_deleted").Add(float64(s.EmptyPacksDeleted))

	m.items.WithLabelValues(s.ContentType, "moved").Add(float64(s.ItemsMoved))
	m.items.WithLabelValues(s.ContentType, "dropped").Add(float64(s.ItemsDropped))
	m.items.WithLabelValues(s.ContentType, "archived").Add(float64(s.OrphansArchived))
	m.items.WithLabelValues(s.ContentType, "archive_failed").Add(float64(s.ArchiveFailures))

	m.lastRun.WithLabelValues(s.ContentType).SetToCurrentTime()
	m.lastRunSeconds.WithLabelValues(s.ContentType).Set(s.Duration.Seconds())
}

func (m *Metrics) ObserveSelection(strategy, outcome string, served int, d time.Duration) {
	m.selections.WithLabelValues(strategy, outcome).Inc()
	m.selectionDuration.WithLabelValues(strategy).Observe(d.Seconds())
	m.served.WithLabelValues(strategy).Add(float64(served))
}
