package arbitrage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fundingobservatory/observatory/internal/config"
	"github.com/fundingobservatory/observatory/internal/model"
)

func snapshot(exchange, asset string, rate float64, intervalHours int) model.ContractSnapshot {
	return model.ContractSnapshot{
		Exchange: exchange, Symbol: asset + "-" + exchange, BaseAsset: asset, QuoteAsset: "USDT",
		FundingRate: decimal.NewFromFloat(rate), FundingIntervalHours: intervalHours,
		APR: model.APRFromFundingRate(decimal.NewFromFloat(rate), intervalHours),
		Status: model.ContractActive,
	}
}

func TestBuildCandidatesSameIntervalBothLegs(t *testing.T) {
	now := time.Now()
	snaps := []model.ContractSnapshot{
		snapshot("A", "BTC", -0.0001, 8),
		snapshot("B", "BTC", 0.0003, 8),
	}
	candidates := BuildCandidates(snaps, now)
	require.Len(t, candidates, 1)
	c := candidates[0]

	require.Equal(t, "A", c.LongExchange)
	require.Equal(t, "B", c.ShortExchange)
	require.Equal(t, 8, c.SyncPeriodHours)

	f := func(d decimal.Decimal) float64 { v, _ := d.Float64(); return v }
	require.InDelta(t, 0.0004, f(c.RateSpread), 1e-9)
	require.InDelta(t, 43.8, f(c.APRSpread), 1e-6)
	require.InDelta(t, -0.0001, f(c.LongSyncFunding), 1e-9)
	require.InDelta(t, 0.0003, f(c.ShortSyncFunding), 1e-9)
	require.InDelta(t, 0.00005, f(c.EffectiveHourlySpread), 1e-9)
	require.InDelta(t, 0.0012, f(c.DailySpread), 1e-9)
	require.InDelta(t, 0.0084, f(c.WeeklySpread), 1e-9)
	require.InDelta(t, 0.036, f(c.MonthlySpread), 1e-9)
	require.InDelta(t, 0.438, f(c.YearlySpread), 1e-9)
}

func TestBuildCandidatesMismatchedIntervals(t *testing.T) {
	now := time.Now()
	snaps := []model.ContractSnapshot{
		snapshot("C", "ETH", 0.0001, 4),
		snapshot("D", "ETH", -0.00005, 1),
	}
	candidates := BuildCandidates(snaps, now)
	require.Len(t, candidates, 1)
	c := candidates[0]

	require.Equal(t, "D", c.LongExchange)
	require.Equal(t, "C", c.ShortExchange)
	require.Equal(t, 4, c.SyncPeriodHours)

	f := func(d decimal.Decimal) float64 { v, _ := d.Float64(); return v }
	require.InDelta(t, 0.00015, f(c.RateSpread), 1e-9)
	require.InDelta(t, 65.7, f(c.APRSpread), 1e-6)
	require.InDelta(t, -0.0002, f(c.LongSyncFunding), 1e-9)
	require.InDelta(t, 0.0001, f(c.ShortSyncFunding), 1e-9)
	require.InDelta(t, 0.000075, f(c.EffectiveHourlySpread), 1e-9)
	require.InDelta(t, 0.0018, f(c.DailySpread), 1e-9)
	require.InDelta(t, 0.0126, f(c.WeeklySpread), 1e-9)
	require.InDelta(t, 0.054, f(c.MonthlySpread), 1e-9)
	require.InDelta(t, 0.657, f(c.YearlySpread), 1e-9)
}

func TestBuildCandidatesSkipsInactiveAndCrossAssetPairs(t *testing.T) {
	now := time.Now()
	snaps := []model.ContractSnapshot{
		snapshot("A", "BTC", -0.0001, 8),
		snapshot("B", "BTC", 0.0003, 8),
		snapshot("A", "ETH", 0.0001, 8),
		{Exchange: "C", BaseAsset: "BTC", Status: model.ContractInactive, FundingIntervalHours: 8},
	}
	candidates := BuildCandidates(snaps, now)
	require.Len(t, candidates, 1) // only the BTC A/B pair; ETH has one venue, C is inactive
}

type fakeArbStore struct {
	grid    []model.ContractSnapshot
	inserts []model.Spread
}

func (f *fakeArbStore) Grid(ctx context.Context, baseAsset string) ([]model.ContractSnapshot, error) {
	return f.grid, nil
}

func (f *fakeArbStore) InsertSpreads(ctx context.Context, spreads []model.Spread) error {
	f.inserts = append(f.inserts, spreads...)
	return nil
}

func TestScanFiltersBelowMinAPRSpread(t *testing.T) {
	fs := &fakeArbStore{grid: []model.ContractSnapshot{
		snapshot("A", "BTC", -0.0001, 8),
		snapshot("B", "BTC", 0.0003, 8), // APR spread 43.8, kept
		snapshot("C", "SOL", 0.0001, 8),
		snapshot("D", "SOL", 0.000101, 8), // tiny spread, discarded
	}}
	sc := New(fs, config.ArbitrageConfig{MinAPRSpread: 1.0})

	kept, err := sc.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, kept, 1)
	require.Equal(t, "BTC", kept[0].Asset)
	require.Len(t, fs.inserts, 1)
}

func TestScanPersistsNothingWhenAllBelowThreshold(t *testing.T) {
	fs := &fakeArbStore{grid: []model.ContractSnapshot{
		snapshot("C", "SOL", 0.0001, 8),
		snapshot("D", "SOL", 0.00011, 8),
	}}
	sc := New(fs, config.ArbitrageConfig{MinAPRSpread: 100})

	kept, err := sc.Scan(context.Background())
	require.NoError(t, err)
	require.Empty(t, kept)
	require.Empty(t, fs.inserts)
}
