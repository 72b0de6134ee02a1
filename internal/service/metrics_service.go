package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation. Roster counters make
// ledger divergence observable without ever surfacing it as an error.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	rosterAssignments  *prometheus.CounterVec
	rosterDivergence   prometheus.Counter
	rosterHealedRows   prometheus.Counter
	rosterStaleCaches  prometheus.Counter
	reportJobsTotal    *prometheus.CounterVec
	reportJobDurations prometheus.Observer
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	rosterAssignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_assignments_total",
		Help: "Total roster operations by kind",
	}, []string{"operation"})

	rosterDivergence := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roster_divergence_healed_total",
		Help: "Times a read found more than one active assignment and reconciled it",
	})

	rosterHealedRows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roster_divergence_rows_total",
		Help: "Stray active assignment rows deactivated by self-healing reads",
	})

	rosterStaleCaches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roster_stale_cache_total",
		Help: "Times the denormalized coach field disagreed with the ledger",
	})

	reportJobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_jobs_total",
		Help: "Report jobs by terminal status",
	}, []string{"status"})

	reportJobDurations := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "report_job_duration_seconds",
		Help:    "Wall time spent rendering report jobs",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite,
		cacheHits, cacheMisses, rosterAssignments, rosterDivergence, rosterHealedRows,
		rosterStaleCaches, reportJobsTotal, reportJobDurations, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		rosterAssignments:  rosterAssignments,
		rosterDivergence:   rosterDivergence,
		rosterHealedRows:   rosterHealedRows,
		rosterStaleCaches:  rosterStaleCaches,
		reportJobsTotal:    reportJobsTotal,
		reportJobDurations: reportJobDurations,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordRosterOperation counts a ledger operation (assign, unassign, delete).
func (m *MetricsService) RecordRosterOperation(operation string) {
	if m == nil {
		return
	}
	m.rosterAssignments.WithLabelValues(operation).Inc()
}

// RecordRosterDivergence counts a self-healed multi-active read along with the
// number of stray rows it deactivated.
func (m *MetricsService) RecordRosterDivergence(healedRows int) {
	if m == nil {
		return
	}
	m.rosterDivergence.Inc()
	m.rosterHealedRows.Add(float64(healedRows))
}

// RecordRosterStaleCache counts a denormalized-field resync.
func (m *MetricsService) RecordRosterStaleCache() {
	if m == nil {
		return
	}
	m.rosterStaleCaches.Inc()
}

// RecordReportJob counts a finished report job and its render duration.
func (m *MetricsService) RecordReportJob(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.reportJobsTotal.WithLabelValues(status).Inc()
	if m.reportJobDurations != nil {
		m.reportJobDurations.Observe(duration.Seconds())
	}
}
