package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/fundingobservatory/observatory/internal/model"
	"github.com/fundingobservatory/observatory/internal/obserr"
)

// InsertFundingPoints appends historical records (spec.md §4.3: "append-only
// INSERT of a time-series window"), batched and idempotent: re-running a
// backfill window is always safe because the statement conflicts on
// (exchange, symbol, funding_time) and does nothing (spec.md §4.4's "backfill
// gap closure" testable property depends on this being a true no-op, not an
// error, on overlap).
func (s *Store) InsertFundingPoints(ctx context.Context, points []model.FundingPoint) error {
	for _, batch := range batches(points, upsertBatchSize) {
		if err := s.insertFundingPointBatch(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertFundingPointBatch(ctx context.Context, batch []model.FundingPoint) error {
	if len(batch) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const fieldsPerRow = 6
	placeholders := make([]string, 0, len(batch))
	args := make([]interface{}, 0, len(batch)*fieldsPerRow)
	for i, p := range batch {
		base := i * fieldsPerRow
		ph := make([]string, fieldsPerRow)
		for j := 0; j < fieldsPerRow; j++ {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
		args = append(args, p.Exchange, p.Symbol, p.FundingTime, p.FundingRate, p.MarkPrice, p.FundingIntervalHours)
	}

	query := fmt.Sprintf(`
		INSERT INTO funding_points (exchange, symbol, funding_time, funding_rate, mark_price, funding_interval_hours)
		VALUES %s
		ON CONFLICT (exchange, symbol, funding_time) DO NOTHING
	`, strings.Join(placeholders, ","))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return obserr.New(obserr.KindStorage, "storage.InsertFundingPoints", err)
	}
	return nil
}

// FundingTimesInRange returns the distinct set of funding_time values stored
// for (exchange, symbol) within [from, to], used by the backfill runner to
// compute gaps against the venue's reported set (spec.md §8's backfill
// gap-closure property).
func (s *Store) FundingTimesInRange(ctx context.Context, exchange, symbol string, fromUnix, toUnix int64) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out []int64
	err := s.db.SelectContext(ctx, &out, `
		SELECT EXTRACT(EPOCH FROM funding_time)::bigint
		FROM funding_points
		WHERE exchange = $1 AND symbol = $2
			AND funding_time >= to_timestamp($3) AND funding_time <= to_timestamp($4)
		ORDER BY funding_time`, exchange, symbol, fromUnix, toUnix)
	if err != nil {
		return nil, obserr.New(obserr.KindStorage, "storage.FundingTimesInRange", err)
	}
	return out, nil
}
