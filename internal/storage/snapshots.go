package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fundingobservatory/observatory/internal/model"
	"github.com/fundingobservatory/observatory/internal/obserr"
)

const snapshotColumns = `exchange, symbol, base_asset, quote_asset, funding_rate,
	funding_interval_hours, apr, mark_price, index_price, open_interest,
	open_interest_unit, contract_type, market_type, timestamp, status, missed_cycles`

// UpsertSnapshots writes the live grid (spec.md §4.3 step 4: "UPSERT for
// live"), batching at upsertBatchSize rows per statement and conflicting on
// the (exchange, symbol) identity.
func (s *Store) UpsertSnapshots(ctx context.Context, snapshots []model.ContractSnapshot) error {
	for _, batch := range batches(snapshots, upsertBatchSize) {
		if err := s.upsertSnapshotBatch(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertSnapshotBatch(ctx context.Context, batch []model.ContractSnapshot) error {
	if len(batch) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const fieldsPerRow = 16
	placeholders := make([]string, 0, len(batch))
	args := make([]interface{}, 0, len(batch)*fieldsPerRow)
	for i, sn := range batch {
		base := i * fieldsPerRow
		ph := make([]string, fieldsPerRow)
		for j := 0; j < fieldsPerRow; j++ {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
		args = append(args,
			sn.Exchange, sn.Symbol, sn.BaseAsset, sn.QuoteAsset, sn.FundingRate,
			sn.FundingIntervalHours, sn.APR, sn.MarkPrice, sn.IndexPrice, sn.OpenInterest,
			sn.OpenInterestUnit, sn.ContractType, sn.MarketType, sn.Timestamp, sn.Status, sn.MissedCycles,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO contract_snapshots (%s)
		VALUES %s
		ON CONFLICT (exchange, symbol) DO UPDATE SET
			base_asset = EXCLUDED.base_asset,
			quote_asset = EXCLUDED.quote_asset,
			funding_rate = EXCLUDED.funding_rate,
			funding_interval_hours = EXCLUDED.funding_interval_hours,
			apr = EXCLUDED.apr,
			mark_price = EXCLUDED.mark_price,
			index_price = EXCLUDED.index_price,
			open_interest = EXCLUDED.open_interest,
			open_interest_unit = EXCLUDED.open_interest_unit,
			contract_type = EXCLUDED.contract_type,
			market_type = EXCLUDED.market_type,
			timestamp = EXCLUDED.timestamp,
			status = EXCLUDED.status,
			missed_cycles = EXCLUDED.missed_cycles
	`, snapshotColumns, strings.Join(placeholders, ","))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return obserr.New(obserr.KindStorage, "storage.UpsertSnapshots", err)
	}
	return nil
}

// MarkInactive flips a contract's status without touching its numeric
// fields, per the stale-contract policy (model.StaleAfterCycles).
func (s *Store) MarkInactive(ctx context.Context, exchange, symbol string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`UPDATE contract_snapshots SET status = $1 WHERE exchange = $2 AND symbol = $3`,
		model.ContractInactive, exchange, symbol)
	if err != nil {
		return obserr.New(obserr.KindStorage, "storage.MarkInactive", err)
	}
	return nil
}

// Grid returns every active snapshot (one row per (exchange, symbol)),
// optionally filtered to one base_asset, the read behind the
// funding-rates-grid endpoint (spec.md §6).
func (s *Store) Grid(ctx context.Context, baseAsset string) ([]model.ContractSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + snapshotColumns + ` FROM contract_snapshots WHERE status = 'active'`
	args := []interface{}{}
	if baseAsset != "" {
		query += ` AND base_asset = $1`
		args = append(args, baseAsset)
	}
	query += ` ORDER BY base_asset, exchange`

	var out []model.ContractSnapshot
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, obserr.New(obserr.KindStorage, "storage.Grid", err)
	}
	normalizeOpenInterest(out)
	return out, nil
}

// normalizeOpenInterest converts every snapshot's open interest to USD
// notional in place (spec.md §3: "the storage layer MUST normalize to USD
// at read time for consistent aggregation"), so cross-exchange OI
// comparisons and aggregates never mix base-unit and USD-unit figures.
func normalizeOpenInterest(snapshots []model.ContractSnapshot) {
	for i := range snapshots {
		snapshots[i].OpenInterest = model.NormalizedOpenInterestUSD(snapshots[i])
		snapshots[i].OpenInterestUnit = model.OpenInterestUSD
	}
}

// HistoricalBySymbol returns funding_points for one (exchange, symbol),
// ordered desc by funding_time and capped at limit (spec.md §4.5: "single-
// symbol historical (ordered desc by funding_time, limit)").
func (s *Store) HistoricalBySymbol(ctx context.Context, exchange, symbol string, limit int) ([]model.FundingPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out []model.FundingPoint
	err := s.db.SelectContext(ctx, &out, `
		SELECT exchange, symbol, funding_time, funding_rate, mark_price, funding_interval_hours
		FROM funding_points
		WHERE exchange = $1 AND symbol = $2
		ORDER BY funding_time DESC
		LIMIT $3`, exchange, symbol, limit)
	if err != nil {
		return nil, obserr.New(obserr.KindStorage, "storage.HistoricalBySymbol", err)
	}
	return out, nil
}

// HistoricalByAsset joins all symbols across venues for one normalized
// base_asset (spec.md §4.5: "per-asset historical (inner join across all
// symbols for that base asset)").
func (s *Store) HistoricalByAsset(ctx context.Context, baseAsset string, from, to time.Time, limit int) ([]model.FundingPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out []model.FundingPoint
	err := s.db.SelectContext(ctx, &out, `
		SELECT fp.exchange, fp.symbol, fp.funding_time, fp.funding_rate, fp.mark_price, fp.funding_interval_hours
		FROM funding_points fp
		INNER JOIN contract_snapshots cs
			ON cs.exchange = fp.exchange AND cs.symbol = fp.symbol
		WHERE cs.base_asset = $1 AND fp.funding_time BETWEEN $2 AND $3
		ORDER BY fp.funding_time DESC
		LIMIT $4`, baseAsset, from, to, limit)
	if err != nil {
		return nil, obserr.New(obserr.KindStorage, "storage.HistoricalByAsset", err)
	}
	return out, nil
}
