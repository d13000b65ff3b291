package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the runner.
type Metrics struct {
	Registry *prometheus.Registry

	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	StageDuration     *prometheus.HistogramVec
	ExecutionErrors   *prometheus.CounterVec
	ActiveExecutions  prometheus.Gauge
	QueuedExecutions  prometheus.Gauge
	ProcessKills      *prometheus.CounterVec
	Detections        *prometheus.CounterVec
	RequestsInFlight  prometheus.Gauge
	CodeSizeBytes     prometheus.Histogram
	OutputSizeBytes   prometheus.Histogram
	OutputTruncated   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runner",
				Name:      "executions_total",
				Help:      "Total number of executions by language and outcome.",
			},
			[]string{"language", "outcome"},
		),

		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "runner",
				Name:      "execution_duration_seconds",
				Help:      "End-to-end duration of executions in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 4, 5, 7.5, 10},
			},
			[]string{"language"},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "runner",
				Name:      "stage_duration_seconds",
				Help:      "Duration of individual pipeline stages (prepare, compile, run).",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"language", "stage"},
		),

		ExecutionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runner",
				Name:      "execution_errors_total",
				Help:      "Total execution failures by kind.",
			},
			[]string{"kind"},
		),

		ActiveExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "runner",
				Name:      "active_executions",
				Help:      "Number of executions currently holding a slot.",
			},
		),

		QueuedExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "runner",
				Name:      "queued_executions",
				Help:      "Number of executions waiting for a free slot.",
			},
		),

		ProcessKills: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runner",
				Name:      "process_kills_total",
				Help:      "Processes force-terminated at the deadline, by stage.",
			},
			[]string{"stage"},
		),

		Detections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runner",
				Name:      "code_detections_total",
				Help:      "Suspicious patterns found in submitted code or output.",
			},
			[]string{"pattern", "severity"},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "runner",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),

		CodeSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "runner",
				Name:      "code_size_bytes",
				Help:      "Size of submitted code in bytes.",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
			},
		),

		OutputSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "runner",
				Name:      "output_size_bytes",
				Help:      "Size of captured output in bytes.",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
			},
		),

		OutputTruncated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runner",
				Name:      "output_truncated_total",
				Help:      "Executions whose output exceeded the capture limit.",
			},
			[]string{"language"},
		),
	}

	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.StageDuration,
		m.ExecutionErrors,
		m.ActiveExecutions,
		m.QueuedExecutions,
		m.ProcessKills,
		m.Detections,
		m.RequestsInFlight,
		m.CodeSizeBytes,
		m.OutputSizeBytes,
		m.OutputTruncated,
	)

	return m
}

// RecordExecution records metrics for a finished execution.
func (m *Metrics) RecordExecution(language, outcome string, durationSec float64) {
	m.ExecutionsTotal.WithLabelValues(language, outcome).Inc()
	m.ExecutionDuration.WithLabelValues(language).Observe(durationSec)
}

// RecordStage records the duration of one pipeline stage.
func (m *Metrics) RecordStage(language, stage string, durationSec float64) {
	m.StageDuration.WithLabelValues(language, stage).Observe(durationSec)
}

// RecordError records an execution failure by kind.
func (m *Metrics) RecordError(kind string) {
	m.ExecutionErrors.WithLabelValues(kind).Inc()
}

// RecordKill records a forced termination.
func (m *Metrics) RecordKill(stage string) {
	m.ProcessKills.WithLabelValues(stage).Inc()
}

// RecordDetection records a detector match.
func (m *Metrics) RecordDetection(d Detection) {
	m.Detections.WithLabelValues(d.Pattern, d.Severity).Inc()
}
