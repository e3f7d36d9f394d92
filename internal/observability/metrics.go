package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hexcov"

// Metrics holds the Prometheus counters, histograms, and gauges for queries
// and batch jobs.
type Metrics struct {
	// Radius query metrics.
	Queries           *prometheus.CounterVec // labels: policy={area,binary}, outcome={ok,invalid,error}
	QueryDuration     prometheus.Histogram
	QueryMatchedCells prometheus.Histogram

	// Cells dropped from a computation instead of failing it.
	CellsSkipped *prometheus.CounterVec // labels: stage={weighting,rollup,dataset,boundary,enrich}

	// Snapshot loading and joining.
	RecordsLoaded    *prometheus.CounterVec // labels: source={population,signal,boundary}
	RecordsSkipped   *prometheus.CounterVec // labels: source={population,signal,boundary}
	RecordsPublished *prometheus.CounterVec // labels: sink={parquet,kafka,postgres}
	JoinRecords      prometheus.Gauge
	DatasetCells     prometheus.Gauge

	// Batch jobs.
	JobDuration *prometheus.HistogramVec // labels: job
	JobRunning  prometheus.Gauge

	// Place labelling metrics.
	Labels           *prometheus.CounterVec // labels: labeler={geobed,mapbox}, outcome={success,error,empty}
	LabelCache       *prometheus.CounterVec // labels: result={hit,miss}
	LabelAPIDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Radius queries by weighting policy and outcome.",
		}, []string{"policy", "outcome"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of a radius query from resolution to totals.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		QueryMatchedCells: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_matched_cells",
			Help:      "Number of cells with non-zero weight per radius query.",
			Buckets:   []float64{1, 7, 19, 37, 61, 127, 271, 547, 1000, 5000},
		}),
		CellsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_skipped_total",
			Help:      "Cells excluded from a computation because of bad identifiers or geometry.",
		}, []string{"stage"}),
		RecordsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      "Snapshot rows accepted, by source.",
		}, []string{"source"}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Snapshot rows rejected, by source.",
		}, []string{"source"}),
		RecordsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_published_total",
			Help:      "Aggregated records written, by sink.",
		}, []string{"sink"}),
		JoinRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "join_records",
			Help:      "Records produced by the most recent population/signal join.",
		}),
		DatasetCells: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_cells",
			Help:      "Cells held by the loaded query dataset.",
		}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of a batch job.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}, []string{"job"}),
		JobRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_running",
			Help:      "1 while a batch job is running, 0 otherwise.",
		}),
		Labels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "labels_total",
			Help:      "Reverse place-label lookups by labeler and outcome.",
		}, []string{"labeler", "outcome"}),
		LabelCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "label_cache_total",
			Help:      "Place-label cache lookups by result.",
		}, []string{"result"}),
		LabelAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "label_api_duration_seconds",
			Help:      "Mapbox reverse geocoding request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}

	prometheus.MustRegister(
		m.Queries,
		m.QueryDuration,
		m.QueryMatchedCells,
		m.CellsSkipped,
		m.RecordsLoaded,
		m.RecordsSkipped,
		m.RecordsPublished,
		m.JoinRecords,
		m.DatasetCells,
		m.JobDuration,
		m.JobRunning,
		m.Labels,
		m.LabelCache,
		m.LabelAPIDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		Queries:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "queries_total"}, []string{"policy", "outcome"}),
		QueryDuration:     prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "query_duration_seconds"}),
		QueryMatchedCells: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "query_matched_cells"}),
		CellsSkipped:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "cells_skipped_total"}, []string{"stage"}),
		RecordsLoaded:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "records_loaded_total"}, []string{"source"}),
		RecordsSkipped:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "records_skipped_total"}, []string{"source"}),
		RecordsPublished:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "records_published_total"}, []string{"sink"}),
		JoinRecords:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "join_records"}),
		DatasetCells:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "dataset_cells"}),
		JobDuration:       prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "job_duration_seconds"}, []string{"job"}),
		JobRunning:        prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "job_running"}),
		Labels:            prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "labels_total"}, []string{"labeler", "outcome"}),
		LabelCache:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "label_cache_total"}, []string{"result"}),
		LabelAPIDuration:  prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "label_api_duration_seconds"}),
	}
}
