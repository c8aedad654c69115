package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quake_watch"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Snapshot fetch metrics.
	SnapshotFetches       *prometheus.CounterVec // labels: outcome={success,error,stale}
	SnapshotFetchDuration prometheus.Histogram

	// Stream session metrics.
	StreamMessages   prometheus.Counter
	StreamMalformed  prometheus.Counter
	StreamReconnects prometheus.Counter
	StreamConnected  prometheus.Gauge

	// Engine metrics.
	Triggers        *prometheus.CounterVec // labels: trigger={snapshot,stream,relocate,radius,sensor_fix,sensor_error}
	DisplayedEvents prometheus.Gauge
	InRadiusEvents  prometheus.Gauge

	// Display publishing to Kafka.
	DisplayPublished prometheus.Counter

	// Observer label (reverse geocoding) metrics.
	LabelRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	LabelCache       *prometheus.CounterVec // labels: result={hit,miss}
	LabelAPIDuration prometheus.Histogram
	LabelEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)

	prometheus.MustRegister(
		m.SnapshotFetches,
		m.SnapshotFetchDuration,
		m.StreamMessages,
		m.StreamMalformed,
		m.StreamReconnects,
		m.StreamConnected,
		m.Triggers,
		m.DisplayedEvents,
		m.InRadiusEvents,
		m.DisplayPublished,
		m.LabelRequests,
		m.LabelCache,
		m.LabelAPIDuration,
		m.LabelEnabled,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		SnapshotFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_fetches_total",
			Help:      help("Snapshot fetches by outcome."),
		}, []string{"outcome"}),
		SnapshotFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_fetch_duration_seconds",
			Help:      help("Duration of snapshot fetch requests."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		StreamMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_total",
			Help:      help("Stream payloads applied to the display."),
		}),
		StreamMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_malformed_total",
			Help:      help("Stream payloads discarded because they could not be parsed."),
		}),
		StreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_reconnects_total",
			Help:      help("Stream redial attempts after a failed dial or dropped connection."),
		}),
		StreamConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_connected",
			Help:      help("1 while the push stream connection is open, 0 otherwise."),
		}),
		Triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_triggers_total",
			Help:      help("Engine triggers processed by kind."),
		}, []string{"trigger"}),
		DisplayedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "displayed_events",
			Help:      help("Events in the current displayed set."),
		}),
		InRadiusEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_radius_events",
			Help:      help("Displayed events within the search radius."),
		}),
		DisplayPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "display_published_total",
			Help:      help("Display views written to the Kafka display topic."),
		}),
		LabelRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "label_requests_total",
			Help:      help("Observer label reverse-geocoding requests by outcome."),
		}, []string{"outcome"}),
		LabelCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "label_cache_total",
			Help:      help("Observer label cache lookups by result."),
		}, []string{"result"}),
		LabelAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "label_api_duration_seconds",
			Help:      help("Mapbox API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		LabelEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "label_enabled",
			Help:      help("1 when observer labelling is enabled, 0 otherwise."),
		}),
	}
}
