package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the import pipeline.
type Metrics struct {
	RowsStaged   *prometheus.CounterVec
	RowsSkipped  *prometheus.CounterVec
	BatchLatency prometheus.Histogram

	Runs             *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	LastSuccess      prometheus.Gauge
	PublishedRecords prometheus.Gauge
	SwapLatency      prometheus.Histogram
}

// New creates a new Metrics instance with all importer metrics registered.
func New() *Metrics {
	return &Metrics{
		RowsStaged: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bizreg_import_rows_staged_total",
			Help: "Rows written to staging by relation kind",
		}, []string{"kind"}),

		RowsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bizreg_import_rows_skipped_total",
			Help: "Malformed dump lines skipped by relation kind",
		}, []string{"kind"}),

		BatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bizreg_import_batch_duration_seconds",
			Help:    "Duration of one staging batch write",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		Runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bizreg_import_runs_total",
			Help: "Import runs by terminal status",
		}, []string{"status"}),

		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bizreg_import_run_duration_seconds",
			Help:    "Duration of a full import run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		}),

		LastSuccess: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bizreg_import_last_success_timestamp_seconds",
			Help: "Unix time of the last successful publish",
		}),

		PublishedRecords: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bizreg_import_published_companies",
			Help: "Companies in the most recently published generation",
		}),

		SwapLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bizreg_import_swap_duration_seconds",
			Help:    "Duration of the exclusive generation swap",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}
}

// AddStaged records rows written for a kind.
func (m *Metrics) AddStaged(kind string, n int) {
	if m != nil {
		m.RowsStaged.WithLabelValues(kind).Add(float64(n))
	}
}

// AddSkipped records malformed lines for a kind.
func (m *Metrics) AddSkipped(kind string, n int64) {
	if m != nil {
		m.RowsSkipped.WithLabelValues(kind).Add(float64(n))
	}
}

// ObserveBatch records one staging batch write.
func (m *Metrics) ObserveBatch(d time.Duration) {
	if m != nil {
		m.BatchLatency.Observe(d.Seconds())
	}
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m != nil {
		m.Runs.WithLabelValues(status).Inc()
		m.RunDuration.Observe(d.Seconds())
	}
}

// RecordPublish records a successful generation swap.
func (m *Metrics) RecordPublish(companies int64, swap time.Duration, at time.Time) {
	if m != nil {
		m.PublishedRecords.Set(float64(companies))
		m.SwapLatency.Observe(swap.Seconds())
		m.LastSuccess.Set(float64(at.Unix()))
	}
}
