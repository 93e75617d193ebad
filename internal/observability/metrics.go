package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lrp_smb"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// evaluation pipeline.
type Metrics struct {
	ParcelsEvaluated prometheus.Counter
	ParcelErrors     prometheus.Counter
	Verdicts         *prometheus.CounterVec // labels: status={compliant,non-compliant,indeterminate}
	PipelineRunning  prometheus.Gauge

	// Batch metrics.
	BatchParcels  prometheus.Histogram
	BatchDuration prometheus.Histogram

	// Sink metrics.
	LoadErrors    *prometheus.CounterVec // labels: sink
	SourceRecords prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ParcelsEvaluated,
		m.ParcelErrors,
		m.Verdicts,
		m.PipelineRunning,
		m.BatchParcels,
		m.BatchDuration,
		m.LoadErrors,
		m.SourceRecords,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ParcelsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parcels_evaluated_total",
			Help:      "Parcels that completed balance, aggregation and evaluation.",
		}),
		ParcelErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parcel_errors_total",
			Help:      "Parcels whose input was rejected.",
		}),
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Compliance verdicts issued, by status.",
		}, []string{"status"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the evaluation loop is active, 0 when shut down.",
		}),
		BatchParcels: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_parcels",
			Help:      "Number of parcels per evaluation batch.",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000, 2500},
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of a complete load-evaluate-publish cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		LoadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_errors_total",
			Help:      "Failed attempts to publish verdicts, by sink.",
		}, []string{"sink"}),
		SourceRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_records_total",
			Help:      "Observation records read from the time-series store.",
		}),
	}
}
