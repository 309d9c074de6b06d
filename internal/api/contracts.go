package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundingobservatory/observatory/internal/model"
)

// GridEntry is one venue's quote within the funding-rates-grid response.
type GridEntry struct {
	FundingRate          decimal.Decimal `json:"funding_rate"`
	APR                  decimal.Decimal `json:"apr"`
	FundingIntervalHours int             `json:"funding_interval_hours"`
}

// GridResponse is spec.md §6's `GET /api/funding-rates-grid` shape:
// `{ [base_asset]: { exchanges: { [venue]: {...} } } }`.
type GridResponse map[string]GridAsset

// GridAsset holds one base asset's per-venue quotes.
type GridAsset struct {
	Exchanges map[string]GridEntry `json:"exchanges"`
}

// HistoricalByAssetResponse is `GET /api/historical-funding-by-asset/{asset}`.
type HistoricalByAssetResponse struct {
	Asset     string               `json:"asset"`
	Contracts []string             `json:"contracts"`
	Data      []HistoricalAssetRow `json:"data"`
}

// HistoricalAssetRow is one timestamp bucket across every contract for an
// asset, timestamps aligned to the shortest common funding interval among
// the asset's contracts (spec.md §6).
type HistoricalAssetRow struct {
	Timestamp time.Time                 `json:"timestamp"`
	Contracts map[string]HistoricalCell `json:"contracts"`
}

// HistoricalCell is one contract's rate/apr at a bucketed timestamp.
type HistoricalCell struct {
	Rate decimal.Decimal `json:"rate"`
	APR  decimal.Decimal `json:"apr"`
}

// HistoricalByContractResponse is
// `GET /api/historical-funding-by-contract/{exchange}/{symbol}`, newest
// first (spec.md §6).
type HistoricalByContractResponse struct {
	Exchange string               `json:"exchange"`
	Symbol   string               `json:"symbol"`
	Points   []model.FundingPoint `json:"points"`
}

// ArbitrageResponse is `GET /api/arbitrage/opportunities`, paginated.
type ArbitrageResponse struct {
	Opportunities []model.Spread `json:"opportunities"`
	Page          int            `json:"page"`
	PageSize      int            `json:"page_size"`
	Total         int            `json:"total"`
}

// HealthResponse is `GET /api/health`: liveness + dependency probe.
type HealthResponse struct {
	Status    string    `json:"status"` // "ok" | "degraded"
	Storage   string    `json:"storage"`
	Cache     string    `json:"cache"`
	Timestamp time.Time `json:"timestamp"`
}

// PerformanceResponse is `GET /api/health/performance`: last-cycle metrics.
type PerformanceResponse struct {
	LastCycleDurationSeconds float64            `json:"last_cycle_duration_seconds,omitempty"`
	AdapterDurationsSeconds  map[string]float64 `json:"adapter_durations_seconds,omitempty"`
	CacheHitRatio            float64            `json:"cache_hit_ratio"`
	Timestamp                time.Time          `json:"timestamp"`
}

// ErrorEnvelope is spec.md §6's uniform error shape:
// `{ error: { kind, message, detail? } }`.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the error Kind (spec.md §7) and a human message.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
