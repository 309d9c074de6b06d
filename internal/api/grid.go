package api

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/fundingobservatory/observatory/internal/cache"
	"github.com/fundingobservatory/observatory/internal/model"
)

// Grid handles `GET /api/funding-rates-grid` (spec.md §6, cached 5s).
func (h *Handlers) Grid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	baseAsset := r.URL.Query().Get("base_asset")
	cacheKey := "grid:" + baseAsset

	var cached GridResponse
	if hit, err := h.cache.Get(ctx, cache.ClassGrid, cacheKey, &cached); err == nil && hit {
		h.metrics.RecordCacheHit(string(cache.ClassGrid))
		writeJSON(w, http.StatusOK, cached)
		return
	}
	h.metrics.RecordCacheMiss(string(cache.ClassGrid))

	snapshots, err := h.store.Grid(ctx, baseAsset)
	if err != nil {
		writeStoreError(w, r, "api.Grid", err)
		return
	}

	resp := buildGridResponse(snapshots)
	if err := h.cache.Set(ctx, cache.ClassGrid, cacheKey, resp); err != nil {
		log.Warn().Err(err).Msg("api: cache grid response failed")
	}
	writeJSON(w, http.StatusOK, resp)
}

func buildGridResponse(snapshots []model.ContractSnapshot) GridResponse {
	resp := make(GridResponse)
	for _, sn := range snapshots {
		asset, ok := resp[sn.BaseAsset]
		if !ok {
			asset = GridAsset{Exchanges: make(map[string]GridEntry)}
		}
		asset.Exchanges[sn.Exchange] = GridEntry{
			FundingRate:          sn.FundingRate,
			APR:                  sn.APR,
			FundingIntervalHours: sn.FundingIntervalHours,
		}
		resp[sn.BaseAsset] = asset
	}
	return resp
}
