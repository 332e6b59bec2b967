package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/routine-api/internal/models"
)

// Routine run outcomes used as metric labels.
const (
	RoutineOutcomeCompleted = "completed"
	RoutineOutcomeDryRun    = "dry_run"
	RoutineOutcomeFailed    = "failed"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	routineRuns     *prometheus.CounterVec
	routineDuration *prometheus.HistogramVec
	routineSessions *prometheus.GaugeVec
	routineFallback prometheus.Counter

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	routineRunCount      uint64
	routineFailureCount  uint64
	routineDurationTotal uint64
	lastScheduled        int64
	lastDropped          int64
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

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	routineRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routine_generation_runs_total",
		Help: "Routine generation runs by strategy and outcome",
	}, []string{"strategy", "outcome"})

	routineDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "routine_generation_duration_seconds",
		Help:    "Wall time of routine generation including persistence",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"strategy"})

	routineSessions := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "routine_last_run_sessions",
		Help: "Sessions scheduled and dropped by the most recent run",
	}, []string{"state"})

	routineFallback := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routine_backtracking_fallbacks_total",
		Help: "Backtracking runs that fell back to the greedy pass",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		routineRuns, routineDuration, routineSessions, routineFallback, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		routineRuns:     routineRuns,
		routineDuration: routineDuration,
		routineSessions: routineSessions,
		routineFallback: routineFallback,
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveRoutineRun records one generation attempt. Session gauges only move
// for runs that produced a routine.
func (m *MetricsService) ObserveRoutineRun(strategy, outcome string, duration time.Duration, scheduled, dropped int, fellBack bool) {
	if m == nil {
		return
	}
	m.routineRuns.WithLabelValues(strategy, outcome).Inc()
	m.routineDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	atomic.AddUint64(&m.routineRunCount, 1)
	atomic.AddUint64(&m.routineDurationTotal, uint64(duration.Nanoseconds()))
	if outcome == RoutineOutcomeFailed {
		atomic.AddUint64(&m.routineFailureCount, 1)
		return
	}
	if fellBack {
		m.routineFallback.Inc()
	}
	m.routineSessions.WithLabelValues("scheduled").Set(float64(scheduled))
	m.routineSessions.WithLabelValues("dropped").Set(float64(dropped))
	atomic.StoreInt64(&m.lastScheduled, int64(scheduled))
	atomic.StoreInt64(&m.lastDropped, int64(dropped))
}

// Snapshot returns aggregated metrics for the summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	runs := atomic.LoadUint64(&m.routineRunCount)
	runDuration := atomic.LoadUint64(&m.routineDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgRunMs float64
	if runs > 0 {
		avgRunMs = float64(runDuration) / float64(runs) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		RoutineRuns:              runs,
		RoutineFailures:          atomic.LoadUint64(&m.routineFailureCount),
		AverageRoutineRunMs:      avgRunMs,
		LastRunScheduled:         atomic.LoadInt64(&m.lastScheduled),
		LastRunDropped:           atomic.LoadInt64(&m.lastDropped),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
