package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// cleaning pipeline.
type Metrics struct {
	RowsFetched      prometheus.Counter
	RowsEmitted      prometheus.Counter
	RowsUpserted     prometheus.Counter
	SensorsProcessed prometheus.Counter
	SensorsFailed    prometheus.Counter
	RunsFailed       prometheus.Counter

	ImputedPoints *prometheus.CounterVec // label: method

	RunDuration    prometheus.Histogram
	CleanerRunning prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RowsFetched,
		m.RowsEmitted,
		m.RowsUpserted,
		m.SensorsProcessed,
		m.SensorsFailed,
		m.RunsFailed,
		m.ImputedPoints,
		m.RunDuration,
		m.CleanerRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RowsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "precip_cleaner",
			Name:      "raw_rows_fetched_total",
			Help:      "Total raw measurement rows fetched from the raw store.",
		}),
		RowsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "precip_cleaner",
			Name:      "clean_rows_emitted_total",
			Help:      "Total clean rows produced by the cascade.",
		}),
		RowsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "precip_cleaner",
			Name:      "clean_rows_upserted_total",
			Help:      "Total clean rows upserted into the clean store.",
		}),
		SensorsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "precip_cleaner",
			Name:      "sensors_processed_total",
			Help:      "Sensors whose cascade completed.",
		}),
		SensorsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "precip_cleaner",
			Name:      "sensors_failed_total",
			Help:      "Sensors whose cascade failed; their rows were discarded.",
		}),
		RunsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "precip_cleaner",
			Name:      "runs_failed_total",
			Help:      "Cleaning runs that ended in an error.",
		}),
		ImputedPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "precip_cleaner",
			Name:      "imputed_points_total",
			Help:      "Points filled by the cascade, by imputation method.",
		}, []string{"method"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "precip_cleaner",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch-clean-persist run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		CleanerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "precip_cleaner",
			Name:      "running",
			Help:      "1 when the cleaning loop is active, 0 when shut down.",
		}),
	}
}
