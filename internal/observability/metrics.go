package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// insight engine and its recompute workflows.
type Metrics struct {
	// Intake metrics.
	ObservationsIngested prometheus.Counter
	IntakeRejected       prometheus.Counter

	// Engine metrics.
	InsightsComputed *prometheus.CounterVec // label: severity

	// Recompute metrics.
	RecomputeRuns     prometheus.Counter
	RecomputeFailures prometheus.Counter
	RecomputeDuration prometheus.Histogram
	RecomputeRunning  prometheus.Gauge
	SnapshotWrites    prometheus.Counter
	SnapshotSkips     prometheus.Counter
	RecordsReplaced   prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		ObservationsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_insights",
			Name:      "observations_ingested_total",
			Help:      "Total daily observations applied to the store.",
		}),
		IntakeRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_insights",
			Name:      "intake_rejected_total",
			Help:      "Total intake messages skipped as malformed or implausible.",
		}),
		InsightsComputed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate_insights",
			Name:      "insights_computed_total",
			Help:      "Insights composed, by resulting severity.",
		}, []string{"severity"}),
		RecomputeRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_insights",
			Name:      "recompute_runs_total",
			Help:      "Completed batch recompute passes across all stations.",
		}),
		RecomputeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_insights",
			Name:      "recompute_failures_total",
			Help:      "Station refreshes that ended in an error.",
		}),
		RecomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "climate_insights",
			Name:      "recompute_duration_seconds",
			Help:      "Duration of a full recompute pass across all stations.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RecomputeRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "climate_insights",
			Name:      "recompute_running",
			Help:      "1 while a batch recompute pass is in flight, 0 otherwise.",
		}),
		SnapshotWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_insights",
			Name:      "snapshot_writes_total",
			Help:      "Latest-insight snapshots written or replaced.",
		}),
		SnapshotSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_insights",
			Name:      "snapshot_skips_total",
			Help:      "Snapshot writes skipped by the monotonic-recency check.",
		}),
		RecordsReplaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_insights",
			Name:      "records_replaced_total",
			Help:      "Station records superseded by a new extreme.",
		}),
	}

	prometheus.MustRegister(
		m.ObservationsIngested,
		m.IntakeRejected,
		m.InsightsComputed,
		m.RecomputeRuns,
		m.RecomputeFailures,
		m.RecomputeDuration,
		m.RecomputeRunning,
		m.SnapshotWrites,
		m.SnapshotSkips,
		m.RecordsReplaced,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		ObservationsIngested: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "climate_insights", Name: "observations_ingested_total"}),
		IntakeRejected:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "climate_insights", Name: "intake_rejected_total"}),
		InsightsComputed:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "climate_insights", Name: "insights_computed_total"}, []string{"severity"}),
		RecomputeRuns:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "climate_insights", Name: "recompute_runs_total"}),
		RecomputeFailures:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "climate_insights", Name: "recompute_failures_total"}),
		RecomputeDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "climate_insights", Name: "recompute_duration_seconds"}),
		RecomputeRunning:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "climate_insights", Name: "recompute_running"}),
		SnapshotWrites:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "climate_insights", Name: "snapshot_writes_total"}),
		SnapshotSkips:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "climate_insights", Name: "snapshot_skips_total"}),
		RecordsReplaced:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "climate_insights", Name: "records_replaced_total"}),
	}
}
