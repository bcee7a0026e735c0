// Package metrics holds the Prometheus collectors for sync jobs, items, and
// outbound provider calls.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the sync pipeline.
type Metrics struct {
	JobsStarted  *prometheus.CounterVec
	JobsFinished *prometheus.CounterVec
	JobDuration  *prometheus.HistogramVec
	ActiveJobs   prometheus.Gauge

	ItemsImported *prometheus.CounterVec
	ItemsIndexed  *prometheus.CounterVec

	ProviderCalls    *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
}

// New returns the process-wide metrics, registering them on first use.
//
// Metrics:
//   - curator_jobs_started_total{kind}
//   - curator_jobs_finished_total{kind,outcome}
//   - curator_job_duration_seconds{kind}
//   - curator_active_jobs
//   - curator_items_imported_total{outcome}
//   - curator_items_indexed_total{outcome}
//   - curator_provider_calls_total{call,outcome}
//   - curator_provider_call_duration_seconds{call}
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			JobsStarted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "curator_jobs_started_total",
					Help: "Total number of sync jobs started",
				},
				[]string{"kind"}, // "sync" or "reindex"
			),
			JobsFinished: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "curator_jobs_finished_total",
					Help: "Total number of sync jobs finished by outcome",
				},
				[]string{"kind", "outcome"},
			),
			JobDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "curator_job_duration_seconds",
					Help:    "Duration of sync jobs in seconds",
					Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
				},
				[]string{"kind"},
			),
			ActiveJobs: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "curator_active_jobs",
					Help: "Number of sync jobs currently running in this process",
				},
			),
			ItemsImported: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "curator_items_imported_total",
					Help: "Total number of catalog items imported by outcome",
				},
				[]string{"outcome"},
			),
			ItemsIndexed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "curator_items_indexed_total",
					Help: "Total number of catalog items processed by the indexer by outcome",
				},
				[]string{"outcome"}, // "indexed", "skipped", "failed"
			),
			ProviderCalls: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "curator_provider_calls_total",
					Help: "Total number of outbound embedding, vision, and vector index calls",
				},
				[]string{"call", "outcome"},
			),
			ProviderDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "curator_provider_call_duration_seconds",
					Help:    "Duration of outbound provider calls in seconds",
					Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
				},
				[]string{"call"},
			),
		}
	})
	return globalMetrics
}

// JobStarted records a job start.
func (m *Metrics) JobStarted(kind string) {
	m.JobsStarted.WithLabelValues(kind).Inc()
	m.ActiveJobs.Inc()
}

// JobFinished records a job end with its outcome and duration.
func (m *Metrics) JobFinished(kind string, err error, d time.Duration) {
	m.ActiveJobs.Dec()
	m.JobsFinished.WithLabelValues(kind, outcome(err)).Inc()
	m.JobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ItemImported records one item import result.
func (m *Metrics) ItemImported(err error) {
	m.ItemsImported.WithLabelValues(outcome(err)).Inc()
}

// ItemIndexed records one indexer decision: "indexed", "skipped", or "failed".
func (m *Metrics) ItemIndexed(result string) {
	m.ItemsIndexed.WithLabelValues(result).Inc()
}

// ProviderCall records one outbound call.
func (m *Metrics) ProviderCall(call string, err error, d time.Duration) {
	m.ProviderCalls.WithLabelValues(call, outcome(err)).Inc()
	m.ProviderDuration.WithLabelValues(call).Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
