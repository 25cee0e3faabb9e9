// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Acquisition metrics
	FetchOutcomes *prometheus.CounterVec
	FetchRetries  *prometheus.CounterVec
	RowsFetched   *prometheus.CounterVec

	// Pipeline metrics
	StageRuns          *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	SnapshotsComputed  prometheus.Counter
	ConclusionsWritten prometheus.Counter
	ReportsGenerated   prometheus.Counter

	// Scheduler metrics
	ScheduledRunsSkipped prometheus.Counter

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
	UptimeSeconds     prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "index_compare"
	}

	return &Metrics{
		// Acquisition metrics
		FetchOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "index_outcomes_total",
			Help:      "Total number of per-index acquisition outcomes by status",
		}, []string{"index", "status"}),
		FetchRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "source_retries_total",
			Help:      "Total number of extra source attempts after a failed call",
		}, []string{"index"}),
		RowsFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "rows_fetched_total",
			Help:      "Total number of close rows appended to storage",
		}, []string{"index"}),

		// Pipeline metrics
		StageRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_runs_total",
			Help:      "Total number of pipeline stage runs by status",
		}, []string{"stage", "status"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		SnapshotsComputed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "snapshots_computed_total",
			Help:      "Total number of indicator snapshots computed",
		}),
		ConclusionsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "conclusions_written_total",
			Help:      "Total number of conclusions written",
		}),
		ReportsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated",
		}),

		// Scheduler metrics
		ScheduledRunsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_skipped_total",
			Help:      "Total number of scheduled runs skipped because one was in flight",
		}),

		// Health metrics
		LastSuccessfulRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of the last successful pipeline run",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordIndexOutcome records one index's acquisition outcome.
func RecordIndexOutcome(index, status string, rows, attempts int) {
	DefaultMetrics.FetchOutcomes.WithLabelValues(index, status).Inc()
	DefaultMetrics.RowsFetched.WithLabelValues(index).Add(float64(rows))
	if attempts > 1 {
		DefaultMetrics.FetchRetries.WithLabelValues(index).Add(float64(attempts - 1))
	}
}

// RecordStage records one pipeline stage run.
func RecordStage(stage, status string, seconds float64) {
	DefaultMetrics.StageRuns.WithLabelValues(stage, status).Inc()
	DefaultMetrics.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordSnapshots records how many indicator snapshots a calc pass produced.
func RecordSnapshots(n int) {
	DefaultMetrics.SnapshotsComputed.Add(float64(n))
}

// RecordConclusions records how many conclusions an analyze pass wrote.
func RecordConclusions(n int) {
	DefaultMetrics.ConclusionsWritten.Add(float64(n))
}

// RecordReportGenerated increments the reports generated counter.
func RecordReportGenerated() {
	DefaultMetrics.ReportsGenerated.Inc()
}

// RecordScheduleSkip increments the skipped scheduled runs counter.
func RecordScheduleSkip() {
	DefaultMetrics.ScheduledRunsSkipped.Inc()
}

// MarkRunSuccess updates the last successful run timestamp.
func MarkRunSuccess() {
	DefaultMetrics.LastSuccessfulRun.Set(float64(time.Now().Unix()))
}

// TickUptime adds one second of uptime.
func TickUptime() {
	DefaultMetrics.UptimeSeconds.Inc()
}
