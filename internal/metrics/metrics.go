package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRegistry holds all Prometheus metrics for the indexer
type MetricsRegistry struct {
	// HTTP Metrics
	HTTPRequestsTotal    prometheus.CounterVec
	HTTPRequestDuration  prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.GaugeVec

	// Cycle Metrics
	CyclesTotal       prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	CycleListSize     prometheus.Histogram
	ItemsInFlight     prometheus.Gauge
	ItemDuration      prometheus.Histogram
	ItemRetriesTotal  prometheus.Counter
	ItemOutcomesTotal prometheus.CounterVec

	// Index Store Metrics
	UpsertsTotal    prometheus.CounterVec
	UpsertConflicts prometheus.Counter
}

// NewMetricsRegistry initializes and returns a new MetricsRegistry with all metrics
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		// HTTP Metrics
		HTTPRequestsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skywatch_http_requests_total",
				Help: "Total HTTP requests processed by endpoint, method, and status code",
			},
			[]string{"endpoint", "method", "status_code"},
		),
		HTTPRequestDuration: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "skywatch_http_request_duration_seconds",
				Help:    "HTTP request latency distribution in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "method"},
		),
		HTTPRequestsInFlight: *promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "skywatch_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"endpoint"},
		),

		// Cycle Metrics
		CyclesTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skywatch_cycles_total",
				Help: "Total ingestion cycles by trigger source and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		CycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "skywatch_cycle_duration_seconds",
				Help:    "Ingestion cycle execution time in seconds",
				Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		CycleListSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "skywatch_cycle_list_size",
				Help:    "Number of flight refs returned per list fetch",
				Buckets: []float64{0, 10, 50, 100, 500, 1000, 5000, 10000, 20000},
			},
		),
		ItemsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "skywatch_items_in_flight",
				Help: "Number of flights currently being processed",
			},
		),
		ItemDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "skywatch_item_duration_seconds",
				Help:    "Per-flight processing time in seconds, including retries",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		ItemRetriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "skywatch_item_retries_total",
				Help: "Total per-flight retry attempts",
			},
		),
		ItemOutcomesTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skywatch_item_outcomes_total",
				Help: "Terminal per-flight outcomes by kind",
			},
			[]string{"outcome"},
		),

		// Index Store Metrics
		UpsertsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skywatch_index_upserts_total",
				Help: "Total index upserts by result",
			},
			[]string{"result"},
		),
		UpsertConflicts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "skywatch_index_upsert_conflicts_total",
				Help: "Upserts rejected because the store held a newer version",
			},
		),
	}
}
