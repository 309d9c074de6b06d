package api

import (
	"net/http"
	"strconv"
)

// FundingRates handles `GET /api/funding-rates?base_asset=&limit=`: the flat
// array form of the live snapshot feed (spec.md §6).
func (h *Handlers) FundingRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	baseAsset := r.URL.Query().Get("base_asset")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "VALIDATION", "limit must be a non-negative integer", raw)
			return
		}
		limit = n
	}

	snapshots, err := h.store.Grid(ctx, baseAsset)
	if err != nil {
		writeStoreError(w, r, "api.FundingRates", err)
		return
	}
	if limit > 0 && limit < len(snapshots) {
		snapshots = snapshots[:limit]
	}
	writeJSON(w, http.StatusOK, snapshots)
}
