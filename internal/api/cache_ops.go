package api

import "net/http"

// CacheClear handles `POST /api/cache/clear`: flushes both cache tiers
// (spec.md §6).
func (h *Handlers) CacheClear(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(r.Context()); err != nil {
		writeStoreError(w, r, "api.CacheClear", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
