package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values shared by the pipeline counters
const (
	ResultStored  = "stored"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
	ResultLoaded  = "loaded"
	ResultEmpty   = "empty"
	ResultCorrupt = "corrupt"
	ResultSuccess = "success"
)

// Metrics holds the pipeline's Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	IngestMatches *prometheus.CounterVec
	FetchFailures *prometheus.CounterVec
	LoadBlobs     *prometheus.CounterVec
	LoadRows      *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		IngestMatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tft_ingest_matches_total",
				Help: "Candidate matches seen by ingestion, by outcome",
			},
			[]string{"result"},
		),
		FetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tft_fetch_failures_total",
				Help: "Match source requests that returned no data",
			},
			[]string{"endpoint"},
		),
		LoadBlobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tft_load_blobs_total",
				Help: "Raw match objects processed by the loader, by outcome",
			},
			[]string{"result"},
		),
		LoadRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tft_load_rows_total",
				Help: "Flat rows sent to the warehouse, by outcome",
			},
			[]string{"result"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tft_notifications_total",
				Help: "Completion events published, by outcome",
			},
			[]string{"result"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tft_run_duration_seconds",
				Help:    "Wall time of one pipeline run",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"pipeline"},
		),
	}

	m.registry.MustRegister(
		m.IngestMatches,
		m.FetchFailures,
		m.LoadBlobs,
		m.LoadRows,
		m.Notifications,
		m.RunDuration,
	)
	return m
}

// Registry exposes the underlying registry (tests gather from it)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
