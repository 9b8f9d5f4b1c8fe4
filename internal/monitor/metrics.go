package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the remediation tool.
type Metrics struct {
	Registry *prometheus.Registry

	RunsTotal            *prometheus.CounterVec
	RunDuration          prometheus.Histogram
	DecisionsTotal       *prometheus.CounterVec
	InstallerInvocations *prometheus.CounterVec
	AdminAPILatency      *prometheus.HistogramVec
	RequestsInFlight     prometheus.Gauge
	JournalLinesPerRun   prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "remediator",
				Name:      "runs_total",
				Help:      "Total remediation runs by outcome (passed, remediated, failed).",
			},
			[]string{"outcome"},
		),

		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "remediator",
				Name:      "run_duration_seconds",
				Help:      "Wall time of remediation runs in seconds.",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
		),

		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "remediator",
				Name:      "decisions_total",
				Help:      "Decision engine outcomes by terminal reason.",
			},
			[]string{"reason"},
		),

		InstallerInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "remediator",
				Name:      "installer_invocations_total",
				Help:      "Installer subprocess invocations by action and status.",
			},
			[]string{"action", "status"},
		),

		AdminAPILatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "remediator",
				Name:      "admin_api_duration_seconds",
				Help:      "Duration of agent admin API calls.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 15},
			},
			[]string{"operation"},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "remediator",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),

		JournalLinesPerRun: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "remediator",
				Name:      "journal_lines_per_run",
				Help:      "Journal entries produced per run.",
				Buckets:   prometheus.LinearBuckets(2, 4, 8),
			},
		),
	}

	// Register all collectors
	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.DecisionsTotal,
		m.InstallerInvocations,
		m.AdminAPILatency,
		m.RequestsInFlight,
		m.JournalLinesPerRun,
	)

	return m
}

// RecordRun records metrics for a completed remediation run.
func (m *Metrics) RecordRun(outcome string, durationSec float64) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(durationSec)
}

// RecordDecision records a decision engine outcome.
func (m *Metrics) RecordDecision(reason string) {
	m.DecisionsTotal.WithLabelValues(reason).Inc()
}

// RecordInstallerInvocation records an installer subprocess result.
func (m *Metrics) RecordInstallerInvocation(action, status string) {
	m.InstallerInvocations.WithLabelValues(action, status).Inc()
}
