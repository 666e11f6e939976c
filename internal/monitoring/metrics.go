// Package monitoring holds the Prometheus metrics for the pipeline.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles all Prometheus metrics for the feature-restriction
// pipeline. A nil *Metrics is valid and records nothing, so tests and the
// loadtest binary can run without touching the default registry.
type Metrics struct {
	EventsPublished *prometheus.CounterVec
	EventsProcessed *prometheus.CounterVec
	RuleOutcomes    *prometheus.CounterVec
	TripwireState   *prometheus.GaugeVec

	ProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		EventsPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restriction_events_published_total",
				Help: "Events appended to the stream by the ingress",
			},
			[]string{"event"},
		),
		EventsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restriction_events_processed_total",
				Help: "Stream entries handled by the consumer",
			},
			[]string{"event", "status"}, // status: ok, dropped, retried
		),
		RuleOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restriction_rule_outcomes_total",
				Help: "Rule processing outcomes",
			},
			[]string{"rule", "outcome"}, // outcome: applied, skipped, disabled
		),
		TripwireState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "restriction_tripwire_disabled",
				Help: "1 when the tripwire has the rule disabled",
			},
			[]string{"rule"},
		),
		ProcessingDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "restriction_event_processing_seconds",
				Help:    "Per-entry processing duration in the consumer",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

func (m *Metrics) Published(event string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(event).Inc()
}

func (m *Metrics) Processed(event, status string) {
	if m == nil {
		return
	}
	m.EventsProcessed.WithLabelValues(event, status).Inc()
}

func (m *Metrics) RuleOutcome(rule, outcome string) {
	if m == nil {
		return
	}
	m.RuleOutcomes.WithLabelValues(rule, outcome).Inc()
}

func (m *Metrics) Tripwire(rule string, disabled bool) {
	if m == nil {
		return
	}
	v := 0.0
	if disabled {
		v = 1.0
	}
	m.TripwireState.WithLabelValues(rule).Set(v)
}

func (m *Metrics) ObserveProcessing(d time.Duration) {
	if m == nil {
		return
	}
	m.ProcessingDuration.Observe(d.Seconds())
}
