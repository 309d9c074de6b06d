// Package arbitrage implements the cross-exchange funding-rate spread
// scanner of spec.md §4.8: for every unordered pair of venues that both
// list a normalized base asset, construct the candidate that goes long the
// venue paying the more negative funding and short the venue paying the
// more positive funding, then derive the annualized carry at every
// projection horizon.
//
// Grounded on application/gates/funding_divergence.go's venue-gathering
// shape (collect per-venue data for one asset, skip a venue on error rather
// than failing the whole scan) and domain/derivs/metrics.go's
// BasisDispersionResult (cross-venue spread as the core derived quantity),
// here reworked from "a single asset's dispersion against its own mean"
// into "every pairwise long/short candidate across venues".
package arbitrage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundingobservatory/observatory/internal/config"
	"github.com/fundingobservatory/observatory/internal/model"
	"github.com/fundingobservatory/observatory/internal/obserr"
)

const (
	hoursPerDay   = 24
	hoursPerWeek  = hoursPerDay * 7
	hoursPerMonth = hoursPerDay * 30
	hoursPerYear  = hoursPerDay * 365
)

// store is the subset of *storage.Store the scanner depends on.
type store interface {
	Grid(ctx context.Context, baseAsset string) ([]model.ContractSnapshot, error)
	InsertSpreads(ctx context.Context, spreads []model.Spread) error
}

// Scanner builds and persists arbitrage candidates from the current live
// grid (spec.md §4.8).
type Scanner struct {
	store store
	cfg   config.ArbitrageConfig
}

func New(s store, cfg config.ArbitrageConfig) *Scanner {
	return &Scanner{store: s, cfg: cfg}
}

// Scan builds every candidate across the live grid, discards those below
// the configured minimum APR spread, persists the survivors, and returns
// them (spec.md §4.8: "opportunities below a configured minimum APR spread
// are discarded").
func (sc *Scanner) Scan(ctx context.Context) ([]model.Spread, error) {
	snapshots, err := sc.store.Grid(ctx, "")
	if err != nil {
		return nil, obserr.New(obserr.KindStorage, "arbitrage.Scan", err)
	}

	now := time.Now()
	candidates := BuildCandidates(snapshots, now)

	kept := make([]model.Spread, 0, len(candidates))
	for _, c := range candidates {
		aprSpread, _ := c.APRSpread.Float64()
		if aprSpread >= sc.cfg.MinAPRSpread {
			kept = append(kept, c)
		}
	}

	if len(kept) > 0 {
		if err := sc.store.InsertSpreads(ctx, kept); err != nil {
			return nil, err
		}
	}
	return kept, nil
}

// BuildCandidates constructs one Spread per unordered (venue_i, venue_j)
// pair that both list the same normalized base asset, for every asset in
// snapshots. Pure and storage-free so it can be exercised directly by tests
// against spec.md's worked scenarios.
func BuildCandidates(snapshots []model.ContractSnapshot, observedAt time.Time) []model.Spread {
	byAsset := make(map[string][]model.ContractSnapshot)
	for _, s := range snapshots {
		if s.Status != model.ContractActive {
			continue
		}
		byAsset[s.BaseAsset] = append(byAsset[s.BaseAsset], s)
	}

	var out []model.Spread
	for asset, venues := range byAsset {
		for i := 0; i < len(venues); i++ {
			for j := i + 1; j < len(venues); j++ {
				out = append(out, buildCandidate(asset, venues[i], venues[j], observedAt))
			}
		}
	}
	return out
}

// buildCandidate assigns long/short by funding rate sign (long the more
// negative payer, short the more positive payer) and computes every derived
// quantity in spec.md §4.8.
func buildCandidate(asset string, a, b model.ContractSnapshot, observedAt time.Time) model.Spread {
	long, short := a, b
	if long.FundingRate.GreaterThan(short.FundingRate) {
		long, short = short, long
	}

	syncHours := lcm(long.FundingIntervalHours, short.FundingIntervalHours)

	rateSpread := short.FundingRate.Sub(long.FundingRate)
	aprSpread := model.APRFromFundingRate(short.FundingRate, short.FundingIntervalHours).
		Sub(model.APRFromFundingRate(long.FundingRate, long.FundingIntervalHours))

	longSyncFunding := syncFunding(long.FundingRate, syncHours, long.FundingIntervalHours)
	shortSyncFunding := syncFunding(short.FundingRate, syncHours, short.FundingIntervalHours)

	effectiveHourly := hourlyRate(short.FundingRate, short.FundingIntervalHours).
		Sub(hourlyRate(long.FundingRate, long.FundingIntervalHours))

	return model.Spread{
		Asset:                 asset,
		LongExchange:          long.Exchange,
		ShortExchange:         short.Exchange,
		ObservedAt:            observedAt,
		LongRate:              long.FundingRate,
		ShortRate:             short.FundingRate,
		LongIntervalHours:     long.FundingIntervalHours,
		ShortIntervalHours:    short.FundingIntervalHours,
		RateSpread:            rateSpread,
		APRSpread:             aprSpread,
		SyncPeriodHours:       syncHours,
		LongSyncFunding:       longSyncFunding,
		ShortSyncFunding:      shortSyncFunding,
		EffectiveHourlySpread: effectiveHourly,
		DailySpread:           effectiveHourly.Mul(decimal.NewFromInt(hoursPerDay)),
		WeeklySpread:          effectiveHourly.Mul(decimal.NewFromInt(hoursPerWeek)),
		MonthlySpread:         effectiveHourly.Mul(decimal.NewFromInt(hoursPerMonth)),
		YearlySpread:          effectiveHourly.Mul(decimal.NewFromInt(hoursPerYear)),
	}
}

// hourlyRate converts a per-interval funding rate to a per-hour rate.
func hourlyRate(rate decimal.Decimal, intervalHours int) decimal.Decimal {
	if intervalHours <= 0 {
		return decimal.Zero
	}
	return rate.DivRound(decimal.NewFromInt(int64(intervalHours)), 18)
}

// syncFunding projects a leg's per-interval rate onto the pair's shared
// sync period: leg_rate * (sync_period_hours / leg_interval_hours).
func syncFunding(rate decimal.Decimal, syncHours, intervalHours int) decimal.Decimal {
	if intervalHours <= 0 {
		return decimal.Zero
	}
	factor := decimal.NewFromInt(int64(syncHours)).DivRound(decimal.NewFromInt(int64(intervalHours)), 18)
	return rate.Mul(factor).Round(18)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// lcm returns the least common multiple of two positive funding intervals,
// the sync_period_hours both legs' cadences settle into (spec.md §4.8).
func lcm(a, b int) int {
	if a <= 0 || b <= 0 {
		return 0
	}
	return a / gcd(a, b) * b
}
