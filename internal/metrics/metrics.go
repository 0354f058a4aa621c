// Package metrics provides Prometheus metrics for vecsql query execution.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the execution-side Prometheus collectors. A nil *Metrics is
// valid and records nothing, so library callers can opt out.
type Metrics struct {
	QueriesTotal       *prometheus.CounterVec
	FanoutWidth        prometheus.Histogram
	CollectionFailures *prometheus.CounterVec
	MergeDuration      prometheus.Histogram
}

// New creates and registers all collectors on the default registry.
func New() *Metrics {
	return &Metrics{
		QueriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecsql_queries_total",
				Help: "Total number of federated query executions",
			},
			[]string{"status"},
		),
		FanoutWidth: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vecsql_fanout_width",
				Help:    "Number of collections a query fanned out to",
				Buckets: prometheus.LinearBuckets(1, 1, 16),
			},
		),
		CollectionFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecsql_collection_failures_total",
				Help: "Per-collection task failures during fan-out",
			},
			[]string{"collection"},
		),
		MergeDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vecsql_merge_duration_seconds",
				Help:    "Duration of the k-way merge step",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// ObserveQuery records a completed execution with its status label.
func (m *Metrics) ObserveQuery(status string) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(status).Inc()
}

// ObserveFanout records how many collections a query was routed to.
func (m *Metrics) ObserveFanout(width int) {
	if m == nil {
		return
	}
	m.FanoutWidth.Observe(float64(width))
}

// ObserveFailure records a per-collection task failure.
func (m *Metrics) ObserveFailure(collection string) {
	if m == nil {
		return
	}
	m.CollectionFailures.WithLabelValues(collection).Inc()
}

// ObserveMerge records the merge step duration.
func (m *Metrics) ObserveMerge(d time.Duration) {
	if m == nil {
		return
	}
	m.MergeDuration.Observe(d.Seconds())
}
