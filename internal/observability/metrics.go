package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// fusion service.
type Metrics struct {
	SignalsIngested  prometheus.Counter
	SignalsRejected  prometheus.Counter // malformed input at the HTTP boundary
	SignalsThrottled prometheus.Counter // per-device rate limit hits

	// Fusion metrics.
	FusionRuns     *prometheus.CounterVec // labels: outcome={rejected,no_quorum,confirmed,failed}
	FusionDuration prometheus.Histogram
	FusionDropped  prometheus.Counter // queue full, run skipped
	QueueDepth     prometheus.Gauge

	EventsCreated prometheus.Counter
	EventsReused  prometheus.Counter // dedup guard returned an existing event

	// Alert publisher metrics.
	AlertsPublished prometheus.Counter
	AlertErrors     prometheus.Counter

	// Official feed poller metrics.
	FeedPolls     *prometheus.CounterVec // labels: outcome={success,error}
	FeedNewQuakes prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SignalsIngested,
		m.SignalsRejected,
		m.SignalsThrottled,
		m.FusionRuns,
		m.FusionDuration,
		m.FusionDropped,
		m.QueueDepth,
		m.EventsCreated,
		m.EventsReused,
		m.AlertsPublished,
		m.AlertErrors,
		m.FeedPolls,
		m.FeedNewQuakes,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering collectors, to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SignalsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seismic_fusion",
			Name:      "signals_ingested_total",
			Help:      "Total well-formed signals accepted at the ingest endpoint.",
		}),
		SignalsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seismic_fusion",
			Name:      "signals_rejected_total",
			Help:      "Total malformed signal submissions rejected before fusion.",
		}),
		SignalsThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seismic_fusion",
			Name:      "signals_throttled_total",
			Help:      "Total signal submissions dropped by the per-device rate limit.",
		}),
		FusionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seismic_fusion",
			Name:      "fusion_runs_total",
			Help:      "Fusion runs by terminal outcome.",
		}, []string{"outcome"}),
		FusionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "seismic_fusion",
			Name:      "fusion_duration_seconds",
			Help:      "Duration of a complete fusion run.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		FusionDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seismic_fusion",
			Name:      "fusion_dropped_total",
			Help:      "Fusion runs dropped because the work queue was full.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "seismic_fusion",
			Name:      "fusion_queue_depth",
			Help:      "Signals waiting in the fusion work queue.",
		}),
		EventsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seismic_fusion",
			Name:      "events_created_total",
			Help:      "Newly confirmed detected events.",
		}),
		EventsReused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seismic_fusion",
			Name:      "events_reused_total",
			Help:      "Confirmations merged into an existing event by the dedup guard.",
		}),
		AlertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seismic_fusion",
			Name:      "alerts_published_total",
			Help:      "Detected events published to the alert topic.",
		}),
		AlertErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seismic_fusion",
			Name:      "alert_errors_total",
			Help:      "Failed alert publish attempts.",
		}),
		FeedPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seismic_fusion",
			Name:      "feed_polls_total",
			Help:      "Official feed poll attempts by outcome.",
		}, []string{"outcome"}),
		FeedNewQuakes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seismic_fusion",
			Name:      "feed_new_quakes_total",
			Help:      "New official earthquakes stored from the feed.",
		}),
	}
}
