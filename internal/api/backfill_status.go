package api

import "net/http"

// BackfillStatus handles `GET /api/backfill-status`: the atomically-written
// progress document, self-healed on read (spec.md §6, §4.4 step 5).
func (h *Handlers) BackfillStatus(w http.ResponseWriter, r *http.Request) {
	status, err := backfillStatusReader(h.statusPath)
	if err != nil {
		writeStoreError(w, r, "api.BackfillStatus", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
