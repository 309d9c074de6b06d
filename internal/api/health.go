package api

import (
	"net/http"
	"time"
)

// Health handles `GET /api/health`: liveness plus a dependency probe against
// storage and cache (spec.md §6).
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	storageStatus := "ok"
	if err := h.store.Ping(ctx); err != nil {
		storageStatus = "down"
	}

	cacheStatus := "ok"
	if !h.cache.Healthy(ctx) {
		cacheStatus = "degraded"
	}

	status := "ok"
	if storageStatus != "ok" {
		status = "degraded"
	}

	resp := HealthResponse{
		Status:    status,
		Storage:   storageStatus,
		Cache:     cacheStatus,
		Timestamp: time.Now().UTC(),
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// Performance handles `GET /api/health/performance`: the last collection
// cycle's timing and the current cache hit ratio (spec.md §6).
func (h *Handlers) Performance(w http.ResponseWriter, r *http.Request) {
	snap := h.metrics.Snapshot()
	writeJSON(w, http.StatusOK, PerformanceResponse{
		LastCycleDurationSeconds: snap.LastCycleDurationSeconds,
		AdapterDurationsSeconds:  snap.AdapterDurationsSeconds,
		CacheHitRatio:            snap.CacheHitRatio,
		Timestamp:                time.Now().UTC(),
	})
}
