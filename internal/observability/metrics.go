package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus counters, histograms, and gauges for a pipeline run.
type Metrics struct {
	FeaturesRead       prometheus.Counter
	RowsWritten        *prometheus.CounterVec // labels: table
	IncidentsPublished prometheus.Counter
	HeatPoints         prometheus.Gauge

	StageDuration *prometheus.HistogramVec // labels: stage={ingest,render}
	StageFailures *prometheus.CounterVec   // labels: stage
	LastSuccess   *prometheus.GaugeVec     // labels: stage

	registry *prometheus.Registry
}

// NewMetrics creates a fresh registry with process and Go collectors and
// registers all pipeline metrics on it.
func NewMetrics() *Metrics {
	m := newMetrics()
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// NewMetricsForTesting creates Metrics on an isolated registry without the
// runtime collectors so tests can assert on exact output.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	m := &Metrics{
		FeaturesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rnli_heatmap",
			Name:      "features_read_total",
			Help:      "Total features read from the source feature collection.",
		}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rnli_heatmap",
			Name:      "rows_written_total",
			Help:      "Rows written to the relational store by table.",
		}, []string{"table"}),
		IncidentsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rnli_heatmap",
			Name:      "incidents_published_total",
			Help:      "Harm subset incidents published to Kafka.",
		}),
		HeatPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rnli_heatmap",
			Name:      "heat_points",
			Help:      "Coordinate pairs in the most recently rendered density overlay.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rnli_heatmap",
			Name:      "stage_duration_seconds",
			Help:      "Duration of a pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rnli_heatmap",
			Name:      "stage_failures_total",
			Help:      "Pipeline stages that ended in an error.",
		}, []string{"stage"}),
		LastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rnli_heatmap",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run of a stage.",
		}, []string{"stage"}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.FeaturesRead,
		m.RowsWritten,
		m.IncidentsPublished,
		m.HeatPoints,
		m.StageDuration,
		m.StageFailures,
		m.LastSuccess,
	)
	return m
}

// Gatherer exposes the registry for HTTP handlers.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the current metric values in the Prometheus text
// format, for collection by the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
