package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "forecast_sync"

// Metrics holds the Prometheus counters, histograms, and gauges for the sync pipeline.
type Metrics struct {
	NotificationsConsumed prometheus.Counter
	ReportsProduced       prometheus.Counter
	FilesProcessed        *prometheus.CounterVec // labels: outcome={success,decode_error,sync_error}
	PipelineRunning       prometheus.Gauge
	SyncDuration          prometheus.Histogram

	// Chunked write metrics.
	RowsWritten     *prometheus.CounterVec   // labels: table={cell,prediction}, result={inserted,skipped}
	ChunksCommitted *prometheus.CounterVec   // labels: table
	ChunkErrors     *prometheus.CounterVec   // labels: table
	ChunkDuration   *prometheus.HistogramVec // labels: table

	UnresolvedRecords prometheus.Counter
	LatestViewRows    prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.NotificationsConsumed,
		m.ReportsProduced,
		m.FilesProcessed,
		m.PipelineRunning,
		m.SyncDuration,
		m.RowsWritten,
		m.ChunksCommitted,
		m.ChunkErrors,
		m.ChunkDuration,
		m.UnresolvedRecords,
		m.LatestViewRows,
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
		NotificationsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_consumed_total",
			Help:      "Total file notifications read from the source topic.",
		}),
		ReportsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_produced_total",
			Help:      "Total sync reports written to the sink topic.",
		}),
		FilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Forecast files processed by outcome.",
		}, []string{"outcome"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_sync_duration_seconds",
			Help:      "Duration of a complete decode-sync-refresh cycle for one file.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows submitted for insert by table and result.",
		}, []string{"table", "result"}),
		ChunksCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_committed_total",
			Help:      "Chunks committed by table.",
		}, []string{"table"}),
		ChunkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_errors_total",
			Help:      "Chunks rolled back after a failed statement, by table.",
		}, []string{"table"}),
		ChunkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_duration_seconds",
			Help:      "Duration of one chunk transaction, by table.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"table"}),
		UnresolvedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unresolved_records_total",
			Help:      "Forecast records dropped because no cell matched their centroid.",
		}),
		LatestViewRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latest_view_rows",
			Help:      "Rows in the latest-prediction view after the last refresh.",
		}),
	}
}
