package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the report service.
type Metrics struct {
	// Data source metrics
	Fetches      *prometheus.CounterVec
	FetchLatency *prometheus.HistogramVec
	CacheLookups *prometheus.CounterVec

	// Record store metrics
	RecordsLoaded    prometheus.Gauge
	RecordsSkipped   *prometheus.CounterVec
	SnapshotLoadedAt prometheus.Gauge

	// Report metrics
	ReportBuilds       *prometheus.CounterVec
	ReportBuildLatency *prometheus.HistogramVec
	Exports            *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests  *prometheus.CounterVec
	RateLimitHits *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

var (
	// DefaultMetrics is the global metrics instance
	DefaultMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics on reg. A nil
// reg means the default registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	m := &Metrics{
		// Data source metrics
		Fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_fetches_total",
				Help:      "Upstream report fetches by outcome",
			},
			[]string{"status"},
		),
		FetchLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_fetch_latency_seconds",
				Help:      "Upstream report fetch latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"status"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Report cache lookups by backend and result",
			},
			[]string{"backend", "result"}, // hit, miss, stale, error
		),

		// Record store metrics
		RecordsLoaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "records_loaded",
				Help:      "Records in the current snapshot",
			},
		),
		RecordsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_skipped_total",
				Help:      "Malformed records dropped",
			},
			[]string{"stage"}, // decode, ingest
		),
		SnapshotLoadedAt: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "snapshot_loaded_timestamp_seconds",
				Help:      "Unix time the current snapshot was loaded",
			},
		),

		// Report metrics
		ReportBuilds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_builds_total",
				Help:      "Report builds by memo result",
			},
			[]string{"memo"},
		),
		ReportBuildLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "report_build_latency_seconds",
				Help:      "Filter and aggregation latency in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"view"},
		),
		Exports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_total",
				Help:      "Spreadsheet exports by tab and outcome",
			},
			[]string{"tab", "status"},
		),

		// HTTP metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint", "class"},
		),

		gatherer: gatherer,
	}

	if reg == nil {
		DefaultMetrics = m
	}
	return m
}

// Handler returns the Prometheus metrics HTTP handler for the registry
// the metrics were created on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Handler returns the default-registry Prometheus handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordFetch records one upstream fetch.
func (m *Metrics) RecordFetch(status string, latency time.Duration) {
	m.Fetches.WithLabelValues(status).Inc()
	m.FetchLatency.WithLabelValues(status).Observe(latency.Seconds())
}

// RecordCacheLookup records a cache lookup result.
func (m *Metrics) RecordCacheLookup(backend, result string) {
	m.CacheLookups.WithLabelValues(backend, result).Inc()
}

// RecordSnapshot updates the record store gauges.
func (m *Metrics) RecordSnapshot(records int, loadedAt time.Time) {
	m.RecordsLoaded.Set(float64(records))
	m.SnapshotLoadedAt.Set(float64(loadedAt.Unix()))
}

// RecordSkipped counts malformed records dropped at stage.
func (m *Metrics) RecordSkipped(stage string, n int) {
	if n > 0 {
		m.RecordsSkipped.WithLabelValues(stage).Add(float64(n))
	}
}

// RecordReportBuild records a report build for view.
func (m *Metrics) RecordReportBuild(view string, memoHit bool, latency time.Duration) {
	memo := "miss"
	if memoHit {
		memo = "hit"
	}
	m.ReportBuilds.WithLabelValues(memo).Inc()
	m.ReportBuildLatency.WithLabelValues(view).Observe(latency.Seconds())
}

// RecordExport records a spreadsheet export.
func (m *Metrics) RecordExport(tab, status string) {
	m.Exports.WithLabelValues(tab, status).Inc()
}

// RecordHTTPRequest records a served request.
func (m *Metrics) RecordHTTPRequest(route string, code int) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint, class string) {
	m.RateLimitHits.WithLabelValues(endpoint, class).Inc()
}
