package models

import "time"

// SystemMetrics is a lightweight snapshot of process instrumentation.
type SystemMetrics struct {
	CacheHitRatio             float64   `json:"cache_hit_ratio"`
	CacheHits                 uint64    `json:"cache_hits"`
	CacheMisses               uint64    `json:"cache_misses"`
	RequestsTotal             uint64    `json:"requests_total"`
	AverageRequestDurationMs  float64   `json:"average_request_duration_ms"`
	GenerationsTotal          uint64    `json:"generations_total"`
	AverageGenerationDuration float64   `json:"average_generation_duration_ms"`
	MovesAccepted             uint64    `json:"moves_accepted"`
	MovesRejected             uint64    `json:"moves_rejected"`
	Goroutines                int       `json:"goroutines"`
	GeneratedAt               time.Time `json:"generated_at"`
}
