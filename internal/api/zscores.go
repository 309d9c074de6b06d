package api

import "net/http"

// ContractsWithZScores handles `GET /api/contracts-with-zscores`: every
// contract's statistical profile (mean, stddev, current z-score and
// percentile) computed by internal/stats (spec.md §4.6).
func (h *Handlers) ContractsWithZScores(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.ContractsWithStats(r.Context())
	if err != nil {
		writeStoreError(w, r, "api.ContractsWithZScores", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
