package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"
)

const (
	defaultArbitrageSinceDays = 7
	defaultPageSize           = 20
	maxPageSize               = 200
)

// ArbitrageOpportunities handles `GET /api/arbitrage/opportunities`: filtered,
// ranked (by descending APR spread), paginated candidates (spec.md §6).
func (h *Handlers) ArbitrageOpportunities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sinceDays, err := parseDays(r, defaultArbitrageSinceDays)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION", err.Error(), "since_days")
		return
	}
	since := time.Now().UTC().Add(-time.Duration(sinceDays) * 24 * time.Hour)

	minAPRSpread := h.minAPR
	if raw := q.Get("min_apr_spread"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "VALIDATION", "min_apr_spread must be numeric", raw)
			return
		}
		minAPRSpread = v
	}

	page, pageSize, err := parsePagination(q)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION", err.Error(), "page")
		return
	}

	spreads, err := h.store.RecentSpreads(r.Context(), since, minAPRSpread)
	if err != nil {
		writeStoreError(w, r, "api.ArbitrageOpportunities", err)
		return
	}

	sort.Slice(spreads, func(i, j int) bool {
		return spreads[i].APRSpread.GreaterThan(spreads[j].APRSpread)
	})

	total := len(spreads)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, ArbitrageResponse{
		Opportunities: spreads[start:end],
		Page:          page,
		PageSize:      pageSize,
		Total:         total,
	})
}

func parsePagination(q map[string][]string) (page, pageSize int, err error) {
	page = 1
	pageSize = defaultPageSize

	if raw := first(q, "page"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 1 {
			return 0, 0, errInvalidPage
		}
		page = n
	}
	if raw := first(q, "page_size"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 1 || n > maxPageSize {
			return 0, 0, errInvalidPageSize
		}
		pageSize = n
	}
	return page, pageSize, nil
}

func first(q map[string][]string, key string) string {
	vals, ok := q[key]
	if !ok || len(vals) == 0 {
		return ""
	}
	return vals[0]
}

var (
	errInvalidPage     = errors.New("page must be a positive integer")
	errInvalidPageSize = errors.New("page_size must be between 1 and " + strconv.Itoa(maxPageSize))
)
