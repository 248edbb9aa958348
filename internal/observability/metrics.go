package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flood_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// enrichment service.
type Metrics struct {
	// Job loop metrics.
	JobsConsumed     prometheus.Counter
	SummariesEmitted prometheus.Counter
	InvalidJobs      prometheus.Counter
	PipelineRunning  prometheus.Gauge
	BatchSize        prometheus.Histogram
	BatchDuration    prometheus.Histogram

	// Enrichment run metrics.
	Runs                  *prometheus.CounterVec   // labels: status={succeeded,failed}
	RunDuration           prometheus.Histogram
	RecordsExtracted      *prometheus.CounterVec   // labels: section={depth,flood}
	SkippedLines          prometheus.Counter
	FeaturesMatched       *prometheus.CounterVec   // labels: property
	OutDepthFailures      prometheus.Counter
	ClassificationSkipped prometheus.Counter
	ClassificationGVF     prometheus.Histogram
	HistoryErrors         prometheus.Counter
	stageDurations        *prometheus.HistogramVec // labels: stage={parse,load,enrich,classify,save}
}

// StageDuration returns the histogram for one run stage.
func (m *Metrics) StageDuration(stage string) prometheus.Observer {
	return m.stageDurations.WithLabelValues(stage)
}

func newMetrics() *Metrics {
	return &Metrics{
		JobsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_consumed_total",
			Help:      "Total enrichment jobs read from the source topic.",
		}),
		SummariesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_produced_total",
			Help:      "Total run summaries written to the sink topic.",
		}),
		InvalidJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_jobs_total",
			Help:      "Total job messages that could not be decoded.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the job loop is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of jobs per batch extracted from Kafka.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-enrich-load cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Enrichment runs by outcome.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete enrichment run.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RecordsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_extracted_total",
			Help:      "Node records extracted from reports by section.",
		}, []string{"section"}),
		SkippedLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_lines_total",
			Help:      "Malformed report rows skipped.",
		}),
		FeaturesMatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "features_matched_total",
			Help:      "Features written by property.",
		}, []string{"property"}),
		OutDepthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "out_depth_failures_total",
			Help:      "Features whose OUT_DEPTH inputs were not numeric.",
		}),
		ClassificationSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classification_skipped_total",
			Help:      "Classifications skipped for lack of data.",
		}),
		ClassificationGVF: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classification_gvf",
			Help:      "Goodness of variance fit of computed natural breaks.",
			Buckets:   []float64{0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 0.99, 1},
		}),
		HistoryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_errors_total",
			Help:      "Run summaries that could not be recorded.",
		}),
		stageDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each enrichment stage.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"stage"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.JobsConsumed,
		m.SummariesEmitted,
		m.InvalidJobs,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchDuration,
		m.Runs,
		m.RunDuration,
		m.RecordsExtracted,
		m.SkippedLines,
		m.FeaturesMatched,
		m.OutDepthFailures,
		m.ClassificationSkipped,
		m.ClassificationGVF,
		m.HistoryErrors,
		m.stageDurations,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
