package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/fundingobservatory/observatory/internal/model"
)

var errInvalidDays = errors.New("days must be a positive integer")

const defaultHistoricalDays = 30

// HistoricalByAsset handles
// `GET /api/historical-funding-by-asset/{asset}?days=`: every contract for a
// base asset, bucketed to the shortest common funding interval among them
// (spec.md §6) so a multi-venue chart can share one x-axis.
func (h *Handlers) HistoricalByAsset(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	days, err := parseDays(r, defaultHistoricalDays)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION", err.Error(), "days")
		return
	}

	to := time.Now().UTC()
	from := to.Add(-time.Duration(days) * 24 * time.Hour)

	points, err := h.store.HistoricalByAsset(r.Context(), asset, from, to, 0)
	if err != nil {
		writeStoreError(w, r, "api.HistoricalByAsset", err)
		return
	}

	writeJSON(w, http.StatusOK, buildHistoricalByAssetResponse(asset, points))
}

func buildHistoricalByAssetResponse(asset string, points []model.FundingPoint) HistoricalByAssetResponse {
	shortest := 0
	contractSet := map[string]bool{}
	for _, p := range points {
		contractSet[contractKey(p.Exchange, p.Symbol)] = true
		if shortest == 0 || (p.FundingIntervalHours > 0 && p.FundingIntervalHours < shortest) {
			shortest = p.FundingIntervalHours
		}
	}
	if shortest <= 0 {
		shortest = 8
	}
	bucketDur := time.Duration(shortest) * time.Hour

	buckets := map[int64]map[string]HistoricalCell{}
	for _, p := range points {
		bucket := p.FundingTime.Truncate(bucketDur).Unix()
		row, ok := buckets[bucket]
		if !ok {
			row = make(map[string]HistoricalCell)
			buckets[bucket] = row
		}
		row[contractKey(p.Exchange, p.Symbol)] = HistoricalCell{
			Rate: p.FundingRate,
			APR:  model.APRFromFundingRate(p.FundingRate, p.FundingIntervalHours),
		}
	}

	timestamps := make([]int64, 0, len(buckets))
	for ts := range buckets {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	contracts := make([]string, 0, len(contractSet))
	for k := range contractSet {
		contracts = append(contracts, k)
	}
	sort.Strings(contracts)

	rows := make([]HistoricalAssetRow, 0, len(timestamps))
	for _, ts := range timestamps {
		rows = append(rows, HistoricalAssetRow{
			Timestamp: time.Unix(ts, 0).UTC(),
			Contracts: buckets[ts],
		})
	}

	return HistoricalByAssetResponse{Asset: asset, Contracts: contracts, Data: rows}
}

func contractKey(exchange, symbol string) string {
	return exchange + ":" + symbol
}

// HistoricalByContract handles
// `GET /api/historical-funding-by-contract/{exchange}/{symbol}?days=`: a
// single contract's raw points, newest first (spec.md §6).
func (h *Handlers) HistoricalByContract(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	exchange, symbol := vars["exchange"], vars["symbol"]

	days, err := parseDays(r, defaultHistoricalDays)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION", err.Error(), "days")
		return
	}
	limit := days * 24 // one point per hour worst case is a safe upper bound

	points, err := h.store.HistoricalBySymbol(r.Context(), exchange, symbol, limit)
	if err != nil {
		writeStoreError(w, r, "api.HistoricalByContract", err)
		return
	}

	writeJSON(w, http.StatusOK, HistoricalByContractResponse{
		Exchange: exchange,
		Symbol:   symbol,
		Points:   points,
	})
}

func parseDays(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errInvalidDays
	}
	return n, nil
}
