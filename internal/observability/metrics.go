package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hazard_alerts"

// Metrics holds the Prometheus counters, histograms, and gauges for the alert engine.
type Metrics struct {
	// Engine metrics.
	LocationsProcessed prometheus.Counter
	LocationsIgnored   prometheus.Counter
	Transitions        *prometheus.CounterVec // labels: transition={entered,exited}
	AlertsSuppressed   prometheus.Counter
	HazardsAlerted     prometheus.Gauge
	EngineEnabled      prometheus.Gauge
	EvaluationDuration prometheus.Histogram

	// Location source metrics.
	LocationErrors *prometheus.CounterVec // labels: kind={permission_denied,timeout,unavailable}
	SourceRunning  prometheus.Gauge

	// Dispatch metrics.
	Dispatches       *prometheus.CounterVec // labels: outcome={success,failure}
	DispatchInFlight prometheus.Gauge
	DispatchDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.LocationsProcessed,
		m.LocationsIgnored,
		m.Transitions,
		m.AlertsSuppressed,
		m.HazardsAlerted,
		m.EngineEnabled,
		m.EvaluationDuration,
		m.LocationErrors,
		m.SourceRunning,
		m.Dispatches,
		m.DispatchInFlight,
		m.DispatchDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		LocationsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locations_processed_total",
			Help:      "Location fixes evaluated against the hazard registry.",
		}),
		LocationsIgnored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locations_ignored_total",
			Help:      "Location fixes dropped because the engine was detached from its source.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Hazard phase transitions by direction.",
		}, []string{"transition"}),
		AlertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Entered transitions not announced because alerts were disabled.",
		}),
		HazardsAlerted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hazards_alerted",
			Help:      "Hazards currently in the alerted phase.",
		}),
		EngineEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_enabled",
			Help:      "1 when announcements are enabled, 0 when muted.",
		}),
		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time to evaluate one location fix against every hazard.",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		LocationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_errors_total",
			Help:      "Errors reported by the location source by kind.",
		}, []string{"kind"}),
		SourceRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_running",
			Help:      "1 while a location subscription is active, 0 otherwise.",
		}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Announcements handed to the notifier by outcome.",
		}, []string{"outcome"}),
		DispatchInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_in_flight",
			Help:      "Announcements currently being delivered.",
		}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Notifier call duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}
