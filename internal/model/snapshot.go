// Package model defines the canonical funding-rate observatory schema:
// the normalized record types every exchange adapter emits and every
// storage/query layer consumes.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpenInterestUnit records which convention an adapter used when it could
// not deterministically convert open interest to USD notional.
type OpenInterestUnit string

const (
	OpenInterestUSD  OpenInterestUnit = "usd"
	OpenInterestBase OpenInterestUnit = "base"
)

// ContractType discriminates perpetual contract settlement currency.
type ContractType string

const (
	ContractUSDM  ContractType = "usd_m"
	ContractCoinM ContractType = "coin_m"
)

// MarketType discriminates the instrument class an adapter reports on.
type MarketType string

const (
	MarketPerpetual MarketType = "perp"
)

// ContractSnapshot is the canonical live record produced by every adapter.
// Identity is (Exchange, Symbol).
type ContractSnapshot struct {
	Exchange             string           `db:"exchange" json:"exchange"`
	Symbol               string           `db:"symbol" json:"symbol"`
	BaseAsset            string           `db:"base_asset" json:"base_asset"`
	QuoteAsset           string           `db:"quote_asset" json:"quote_asset"`
	FundingRate          decimal.Decimal  `db:"funding_rate" json:"funding_rate"`
	FundingIntervalHours int              `db:"funding_interval_hours" json:"funding_interval_hours"`
	APR                  decimal.Decimal  `db:"apr" json:"apr"`
	MarkPrice            *decimal.Decimal `db:"mark_price" json:"mark_price,omitempty"`
	IndexPrice           *decimal.Decimal `db:"index_price" json:"index_price,omitempty"`
	OpenInterest         decimal.Decimal  `db:"open_interest" json:"open_interest"`
	OpenInterestUnit     OpenInterestUnit `db:"open_interest_unit" json:"open_interest_unit"`
	ContractType         ContractType     `db:"contract_type" json:"contract_type"`
	MarketType           MarketType       `db:"market_type" json:"market_type"`
	Timestamp            time.Time        `db:"timestamp" json:"timestamp"`
	Status               ContractStatus   `db:"status" json:"status"`
	MissedCycles         int              `db:"missed_cycles" json:"-"`
}

// ContractStatus tracks the decommissioning policy of SPEC_FULL.md §10: a
// contract missing from N consecutive live cycles is marked inactive rather
// than silently kept as "latest wins forever".
type ContractStatus string

const (
	ContractActive   ContractStatus = "active"
	ContractInactive ContractStatus = "inactive"
)

// StaleAfterCycles is the N in "missing for N consecutive cycles marks a
// contract inactive" (SPEC_FULL.md §10 / DESIGN.md open-question decision 3).
const StaleAfterCycles = 3

// FundingPoint is an append-only historical record. Identity is
// (Exchange, Symbol, FundingTime).
type FundingPoint struct {
	Exchange             string          `db:"exchange" json:"exchange"`
	Symbol               string          `db:"symbol" json:"symbol"`
	FundingTime          time.Time       `db:"funding_time" json:"funding_time"`
	FundingRate          decimal.Decimal `db:"funding_rate" json:"funding_rate"`
	MarkPrice             decimal.NullDecimal `db:"mark_price" json:"mark_price,omitempty"`
	FundingIntervalHours int             `db:"funding_interval_hours" json:"funding_interval_hours"`
}

// ContractStats is refreshed in place, never appended. Identity is
// (Exchange, Symbol).
type ContractStats struct {
	Exchange          string    `db:"exchange" json:"exchange"`
	Symbol            string    `db:"symbol" json:"symbol"`
	Mean              float64   `db:"mean" json:"mean"`
	StdDev            float64   `db:"std_dev" json:"std_dev"`
	Median            float64   `db:"median" json:"median"`
	Min               float64   `db:"min" json:"min"`
	Max               float64   `db:"max" json:"max"`
	DataPoints        int       `db:"data_points" json:"data_points"`
	CurrentZScore     *float64  `db:"current_z_score" json:"current_z_score,omitempty"`
	CurrentPercentile *float64  `db:"current_percentile" json:"current_percentile,omitempty"`
	LastUpdated       time.Time `db:"last_updated" json:"last_updated"`
}

// Spread is an accumulated arbitrage candidate. Identity is
// (Asset, LongExchange, ShortExchange, ObservedAt).
type Spread struct {
	Asset               string          `db:"asset" json:"asset"`
	LongExchange        string          `db:"long_exchange" json:"long_exchange"`
	ShortExchange       string          `db:"short_exchange" json:"short_exchange"`
	ObservedAt          time.Time       `db:"observed_at" json:"observed_at"`
	LongRate            decimal.Decimal `db:"long_rate" json:"long_rate"`
	ShortRate           decimal.Decimal `db:"short_rate" json:"short_rate"`
	LongIntervalHours   int             `db:"long_interval_hours" json:"long_interval_hours"`
	ShortIntervalHours  int             `db:"short_interval_hours" json:"short_interval_hours"`
	RateSpread          decimal.Decimal `db:"rate_spread" json:"rate_spread"`
	APRSpread           decimal.Decimal `db:"apr_spread" json:"apr_spread"`
	SyncPeriodHours     int             `db:"sync_period_hours" json:"sync_period_hours"`
	LongSyncFunding     decimal.Decimal `db:"long_sync_funding" json:"long_sync_funding"`
	ShortSyncFunding    decimal.Decimal `db:"short_sync_funding" json:"short_sync_funding"`
	EffectiveHourlySpread decimal.Decimal `db:"effective_hourly_spread" json:"effective_hourly_spread"`
	DailySpread         decimal.Decimal `db:"daily_spread" json:"daily_spread"`
	WeeklySpread        decimal.Decimal `db:"weekly_spread" json:"weekly_spread"`
	MonthlySpread       decimal.Decimal `db:"monthly_spread" json:"monthly_spread"`
	YearlySpread        decimal.Decimal `db:"yearly_spread" json:"yearly_spread"`
}

// hoursPerYear is the annualization constant from spec.md §3: apr =
// funding_rate * (8760/interval) * 100.
const hoursPerYear = 8760

// APRFromFundingRate derives the percent APR for a funding rate observed at
// the given settlement interval, per spec.md's invariant (within 1e-9
// relative tolerance when checked against float math).
func APRFromFundingRate(rate decimal.Decimal, intervalHours int) decimal.Decimal {
	if intervalHours <= 0 {
		return decimal.Zero
	}
	periodsPerYear := decimal.NewFromInt(hoursPerYear).DivRound(decimal.NewFromInt(int64(intervalHours)), 18)
	return rate.Mul(periodsPerYear).Mul(decimal.NewFromInt(100)).Round(18)
}

// NormalizedOpenInterestUSD converts sn's open interest to USD notional
// using its mark price when the adapter reported base-unit OI (spec.md §4.2:
// "convert to USD notional using mark price, unless the venue already
// returns USD"), satisfying the storage-layer read-time normalization
// invariant of spec.md §3 so cross-exchange OI aggregation compares USD to
// USD. A base-unit snapshot with no mark price can't be converted and
// returns decimal.Zero rather than silently mixing units into an aggregate.
func NormalizedOpenInterestUSD(sn ContractSnapshot) decimal.Decimal {
	if sn.OpenInterestUnit == OpenInterestUSD {
		return sn.OpenInterest
	}
	if sn.MarkPrice == nil {
		return decimal.Zero
	}
	return sn.OpenInterest.Mul(*sn.MarkPrice)
}

// ValidFundingIntervals enumerates the only funding-interval values the
// system accepts (spec.md §3 invariant).
var ValidFundingIntervals = []int{1, 2, 4, 8}

// IsValidFundingInterval reports whether hours is one of the accepted
// funding-interval values.
func IsValidFundingInterval(hours int) bool {
	for _, v := range ValidFundingIntervals {
		if v == hours {
			return true
		}
	}
	return false
}
