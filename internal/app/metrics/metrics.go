// Package metrics holds the Prometheus collectors shared by the detector, the verifier
// and the matrix. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	detectedChanges      *prometheus.CounterVec
	ruleFailures         *prometheus.CounterVec
	verifiedInteractions *prometheus.CounterVec
	contractResults      *prometheus.CounterVec
	interactionDuration  prometheus.Histogram
	matrixEntries        prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		detectedChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pactcompat_detected_changes_total",
				Help: "Number of contract changes detected, by severity.",
			},
			[]string{"severity"},
		),
		ruleFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pactcompat_rule_failures_total",
				Help: "Number of detection rules that failed and were skipped.",
			},
			[]string{"rule"},
		),
		verifiedInteractions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pactcompat_verified_interactions_total",
				Help: "Number of interactions replayed against a provider, by status.",
			},
			[]string{"status"},
		),
		contractResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pactcompat_contract_results_total",
				Help: "Number of contract verification results, by status.",
			},
			[]string{"status"},
		),
		interactionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pactcompat_interaction_duration_seconds",
				Help:    "Time taken to replay an interaction, including retries.",
				Buckets: prometheus.DefBuckets,
			},
		),
		matrixEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pactcompat_matrix_entries",
				Help: "Number of entries in the compatibility matrix.",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.detectedChanges,
			m.ruleFailures,
			m.verifiedInteractions,
			m.contractResults,
			m.interactionDuration,
			m.matrixEntries,
		)
	}
	return m
}

func (m *Metrics) ChangeDetected(severity string) {
	if m == nil {
		return
	}
	m.detectedChanges.WithLabelValues(severity).Inc()
}

func (m *Metrics) RuleFailed(rule string) {
	if m == nil {
		return
	}
	m.ruleFailures.WithLabelValues(rule).Inc()
}

func (m *Metrics) InteractionVerified(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.verifiedInteractions.WithLabelValues(status).Inc()
	m.interactionDuration.Observe(d.Seconds())
}

func (m *Metrics) ContractVerified(status string) {
	if m == nil {
		return
	}
	m.contractResults.WithLabelValues(status).Inc()
}

func (m *Metrics) MatrixSize(n int) {
	if m == nil {
		return
	}
	m.matrixEntries.Set(float64(n))
}
