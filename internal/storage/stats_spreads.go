package storage

import (
	"context"
	"time"

	"github.com/fundingobservatory/observatory/internal/model"
	"github.com/fundingobservatory/observatory/internal/obserr"
)

// UpsertStats refreshes one contract's rolling-window statistics in place
// (spec.md §4.7: "refreshed in place, never appended").
func (s *Store) UpsertStats(ctx context.Context, stats model.ContractStats) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contract_stats (exchange, symbol, mean, std_dev, median, min, max,
			data_points, current_z_score, current_percentile, last_updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (exchange, symbol) DO UPDATE SET
			mean = EXCLUDED.mean, std_dev = EXCLUDED.std_dev, median = EXCLUDED.median,
			min = EXCLUDED.min, max = EXCLUDED.max, data_points = EXCLUDED.data_points,
			current_z_score = EXCLUDED.current_z_score,
			current_percentile = EXCLUDED.current_percentile,
			last_updated = EXCLUDED.last_updated`,
		stats.Exchange, stats.Symbol, stats.Mean, stats.StdDev, stats.Median, stats.Min, stats.Max,
		stats.DataPoints, stats.CurrentZScore, stats.CurrentPercentile, stats.LastUpdated)
	if err != nil {
		return obserr.New(obserr.KindStorage, "storage.UpsertStats", err)
	}
	return nil
}

// ContractsWithStats returns every active contract joined with its latest
// statistics row, the read behind the contracts-with-zscores endpoint.
func (s *Store) ContractsWithStats(ctx context.Context) ([]model.ContractStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out []model.ContractStats
	err := s.db.SelectContext(ctx, &out, `
		SELECT cst.exchange, cst.symbol, cst.mean, cst.std_dev, cst.median, cst.min, cst.max,
			cst.data_points, cst.current_z_score, cst.current_percentile, cst.last_updated
		FROM contract_stats cst
		INNER JOIN contract_snapshots cs ON cs.exchange = cst.exchange AND cs.symbol = cst.symbol
		WHERE cs.status = 'active'`)
	if err != nil {
		return nil, obserr.New(obserr.KindStorage, "storage.ContractsWithStats", err)
	}
	return out, nil
}

// InsertSpreads persists the arbitrage scanner's detected opportunities for
// one scan cycle.
func (s *Store) InsertSpreads(ctx context.Context, spreads []model.Spread) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return obserr.New(obserr.KindStorage, "storage.InsertSpreads", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO spreads (asset, long_exchange, short_exchange, observed_at, long_rate, short_rate,
			long_interval_hours, short_interval_hours, rate_spread, apr_spread, sync_period_hours,
			long_sync_funding, short_sync_funding, effective_hourly_spread, daily_spread, weekly_spread,
			monthly_spread, yearly_spread)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (asset, long_exchange, short_exchange, observed_at) DO NOTHING`)
	if err != nil {
		return obserr.New(obserr.KindStorage, "storage.InsertSpreads", err)
	}
	defer stmt.Close()

	for _, sp := range spreads {
		if _, err := stmt.ExecContext(ctx, sp.Asset, sp.LongExchange, sp.ShortExchange, sp.ObservedAt,
			sp.LongRate, sp.ShortRate, sp.LongIntervalHours, sp.ShortIntervalHours, sp.RateSpread,
			sp.APRSpread, sp.SyncPeriodHours, sp.LongSyncFunding, sp.ShortSyncFunding,
			sp.EffectiveHourlySpread, sp.DailySpread, sp.WeeklySpread, sp.MonthlySpread, sp.YearlySpread); err != nil {
			return obserr.New(obserr.KindStorage, "storage.InsertSpreads", err)
		}
	}
	return tx.Commit()
}

// RecentSpreads returns spreads observed at or after since, ordered by the
// largest APR spread first.
func (s *Store) RecentSpreads(ctx context.Context, since time.Time, minAPRSpread float64) ([]model.Spread, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out []model.Spread
	err := s.db.SelectContext(ctx, &out, `
		SELECT asset, long_exchange, short_exchange, observed_at, long_rate, short_rate,
			long_interval_hours, short_interval_hours, rate_spread, apr_spread, sync_period_hours,
			long_sync_funding, short_sync_funding, effective_hourly_spread, daily_spread, weekly_spread,
			monthly_spread, yearly_spread
		FROM spreads
		WHERE observed_at >= $1 AND apr_spread >= $2
		ORDER BY apr_spread DESC`, since, minAPRSpread)
	if err != nil {
		return nil, obserr.New(obserr.KindStorage, "storage.RecentSpreads", err)
	}
	return out, nil
}
