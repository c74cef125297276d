package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Metrics holds the Prometheus collectors of the query services.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SearchResults      *prometheus.CounterVec
	SearchDuration     prometheus.Histogram
	ObservationFetch   prometheus.Histogram
	EmptySeries        prometheus.Counter
	BackendCallSeconds *prometheus.HistogramVec
	IngestedRecords    *prometheus.CounterVec
	SeriesCache        *prometheus.CounterVec
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SearchResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "statradar_indicator_searches_total",
			Help: "Indicator searches by result status",
		}, []string{"status"}),
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "statradar_indicator_search_duration_seconds",
			Help:    "Duration of indicator searches including place resolution",
			Buckets: latencyBuckets,
		}),
		ObservationFetch: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "statradar_observation_fetch_duration_seconds",
			Help:    "Duration of observation fetches",
			Buckets: latencyBuckets,
		}),
		EmptySeries: f.NewCounter(prometheus.CounterOpts{
			Name: "statradar_observation_empty_series_total",
			Help: "Places returned with an empty time series",
		}),
		BackendCallSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "statradar_backend_call_duration_seconds",
			Help:    "Duration of catalog backend calls by operation",
			Buckets: latencyBuckets,
		}, []string{"operation"}),
		IngestedRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "statradar_ingested_records_total",
			Help: "Catalog records handled by the worker by kind and outcome",
		}, []string{"kind", "outcome"}),
		SeriesCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "statradar_series_cache_lookups_total",
			Help: "Series cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
	}
}

// ObserveSearch records the outcome and duration of one search.
// Call with time.Now() taken at the start of the search.
func (m *Metrics) ObserveSearch(status string, start time.Time) {
	if m == nil {
		return
	}
	m.SearchResults.WithLabelValues(status).Inc()
	m.SearchDuration.Observe(time.Since(start).Seconds())
}

// ObserveFetch records the duration of an observation fetch.
func (m *Metrics) ObserveFetch(start time.Time) {
	if m == nil {
		return
	}
	m.ObservationFetch.Observe(time.Since(start).Seconds())
}

// IncrementEmptySeries counts a place answered without data.
func (m *Metrics) IncrementEmptySeries() {
	if m == nil {
		return
	}
	m.EmptySeries.Inc()
}

// ObserveBackendCall records the duration of one backend operation.
func (m *Metrics) ObserveBackendCall(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.BackendCallSeconds.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// IncrementIngested counts a worker outcome (indexed, skipped, failed).
func (m *Metrics) IncrementIngested(kind, outcome string) {
	if m == nil {
		return
	}
	m.IngestedRecords.WithLabelValues(kind, outcome).Inc()
}

// IncrementSeriesCache counts one series cache lookup.
func (m *Metrics) IncrementSeriesCache(result string) {
	if m == nil {
		return
	}
	m.SeriesCache.WithLabelValues(result).Inc()
}
