// Package metrics exposes Prometheus collectors for the analysis engine.
// One Registry instance is shared by the workflow manager, the provider
// chains, and the compensation saga; the daemon serves it on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the engine records into.
type Metrics struct {
	registry *prometheus.Registry

	ReportsStarted   prometheus.Counter
	ReportsCompleted prometheus.Counter
	ReportsFailed    prometheus.Counter
	ReportDuration   prometheus.Histogram

	ProviderAttempts *prometheus.CounterVec
	CacheHits        prometheus.Counter

	Refunds        *prometheus.CounterVec
	CreditsDebited prometheus.Counter
}

// New builds a registry with the engine collectors plus the standard Go and
// process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		ReportsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mivvo_reports_started_total",
			Help: "Analysis runs that passed validation and debit.",
		}),
		ReportsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mivvo_reports_completed_total",
			Help: "Reports that reached COMPLETED.",
		}),
		ReportsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mivvo_reports_failed_total",
			Help: "Reports that reached FAILED through compensation.",
		}),
		ReportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mivvo_report_duration_seconds",
			Help:    "Wall time from claim to terminal state.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		ProviderAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mivvo_provider_attempts_total",
			Help: "Provider call attempts by binding, kind, and outcome.",
		}, []string{"provider", "kind", "outcome"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mivvo_result_cache_hits_total",
			Help: "Provider calls avoided by the shared result cache.",
		}),
		Refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mivvo_refunds_total",
			Help: "Compensating refunds by disposition (atomic, degraded, failed).",
		}, []string{"disposition"}),
		CreditsDebited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mivvo_credit_debits_total",
			Help: "Successful credit debits.",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ReportsStarted,
		m.ReportsCompleted,
		m.ReportsFailed,
		m.ReportDuration,
		m.ProviderAttempts,
		m.CacheHits,
		m.Refunds,
		m.CreditsDebited,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAttempt records one classified provider attempt.
func (m *Metrics) ObserveAttempt(provider, kind, outcome string) {
	if m == nil {
		return
	}
	m.ProviderAttempts.WithLabelValues(provider, kind, outcome).Inc()
}

// ObserveRefund records one compensating refund by disposition.
func (m *Metrics) ObserveRefund(disposition string) {
	if m == nil {
		return
	}
	m.Refunds.WithLabelValues(disposition).Inc()
}
