// Package metrics keeps a private Prometheus registry for one command run.
// Commands are short-lived, so the registry is flushed to a node-exporter
// textfile instead of being scraped.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	registry *prometheus.Registry

	actions        *prometheus.CounterVec
	reconcileTime  prometheus.Histogram
	stageDurations *prometheus.HistogramVec
	findings       *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perimeter_reconcile_actions_total",
			Help: "Resource actions taken by the reconciler.",
		}, []string{"kind", "action"}),
		reconcileTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "perimeter_reconcile_duration_seconds",
			Help:    "Wall time of a reconcile run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		stageDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perimeter_deploy_stage_duration_seconds",
			Help:    "Duration of each deploy stage.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage", "status"}),
		findings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perimeter_audit_findings",
			Help: "Audit findings of the last run by severity.",
		}, []string{"severity"}),
	}
	m.registry.MustRegister(m.actions, m.reconcileTime, m.stageDurations, m.findings)
	return m
}

// Nop-safe recorders: a nil *Metrics discards everything.

func (m *Metrics) ObserveAction(kind, action string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(kind, action).Inc()
}

func (m *Metrics) ObserveReconcile(d time.Duration) {
	if m == nil {
		return
	}
	m.reconcileTime.Observe(d.Seconds())
}

func (m *Metrics) ObserveStage(stage, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDurations.WithLabelValues(stage, status).Observe(d.Seconds())
}

func (m *Metrics) SetFindings(severity string, n int) {
	if m == nil {
		return
	}
	m.findings.WithLabelValues(severity).Set(float64(n))
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Flush writes the registry to path. An empty path is a no-op.
func (m *Metrics) Flush(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
