package models

import "time"

// SystemMetrics is an aggregated view of the process instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	RoutineRuns              uint64    `json:"routine_runs"`
	RoutineFailures          uint64    `json:"routine_failures"`
	AverageRoutineRunMs      float64   `json:"average_routine_run_ms"`
	LastRunScheduled         int64     `json:"last_run_scheduled"`
	LastRunDropped           int64     `json:"last_run_dropped"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
