// Package metrics provides Prometheus metrics for the administration service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	TransitionsTotal           *prometheus.CounterVec
	TransitionFailuresTotal    *prometheus.CounterVec
	VersionConflictsTotal      prometheus.Counter
	AdjustmentsTotal           prometheus.Counter
	ContinuityViolationsTotal  prometheus.Counter
	RequestDuration            *prometheus.HistogramVec
	OutboxPublishedTotal       prometheus.Counter
	OutboxPublishFailuresTotal prometheus.Counter
	OutboxPending              prometheus.Gauge
}

// New creates all metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mar_transitions_total",
			Help: "Administration status transitions by action",
		}, []string{"action"}),
		TransitionFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mar_transition_failures_total",
			Help: "Rejected transitions by error kind",
		}, []string{"kind"}),
		VersionConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mar_version_conflicts_total",
			Help: "Optimistic lock conflicts on administration updates",
		}),
		AdjustmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mar_schedule_adjustments_total",
			Help: "Schedule adjustments recorded",
		}),
		ContinuityViolationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mar_continuity_violations_total",
			Help: "Adjustment ledger continuity violations detected",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mar_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "path", "status"}),
		OutboxPublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mar_outbox_published_total",
			Help: "Outbox entries published to Kafka",
		}),
		OutboxPublishFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mar_outbox_publish_failures_total",
			Help: "Outbox publish attempts that failed",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mar_outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
	}

	reg.MustRegister(
		m.TransitionsTotal,
		m.TransitionFailuresTotal,
		m.VersionConflictsTotal,
		m.AdjustmentsTotal,
		m.ContinuityViolationsTotal,
		m.RequestDuration,
		m.OutboxPublishedTotal,
		m.OutboxPublishFailuresTotal,
		m.OutboxPending,
	)

	return m
}

// Handler returns the Prometheus scrape handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
