// Package storage implements the relational store of spec.md §4.5: schema,
// UPSERT/INSERT batching, and query methods, grounded on
// internal/persistence/postgres/trades_repo.go's sqlx+lib/pq transaction
// idiom (prepared statement inside a tx, batched ExecContext calls).
package storage

import "context"

// Schema is the DDL executed by Migrate. NUMERIC(38,18) backs every
// decimal-valued column so shopspring/decimal round-trips without precision
// loss (spec.md §3's funding_rate/apr/open_interest fields).
const Schema = `
CREATE TABLE IF NOT EXISTS contract_snapshots (
	exchange               TEXT NOT NULL,
	symbol                 TEXT NOT NULL,
	base_asset             TEXT NOT NULL,
	quote_asset            TEXT NOT NULL,
	funding_rate           NUMERIC(38,18) NOT NULL,
	funding_interval_hours INTEGER NOT NULL,
	apr                    NUMERIC(38,18) NOT NULL,
	mark_price             NUMERIC(38,18),
	index_price            NUMERIC(38,18),
	open_interest          NUMERIC(38,18) NOT NULL,
	open_interest_unit     TEXT NOT NULL,
	contract_type          TEXT NOT NULL,
	market_type            TEXT NOT NULL,
	timestamp              TIMESTAMPTZ NOT NULL,
	status                 TEXT NOT NULL DEFAULT 'active',
	missed_cycles          INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (exchange, symbol)
);

CREATE INDEX IF NOT EXISTS idx_contract_snapshots_base_asset
	ON contract_snapshots (base_asset) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS funding_points (
	exchange               TEXT NOT NULL,
	symbol                 TEXT NOT NULL,
	funding_time           TIMESTAMPTZ NOT NULL,
	funding_rate           NUMERIC(38,18) NOT NULL,
	mark_price             NUMERIC(38,18),
	funding_interval_hours INTEGER NOT NULL,
	PRIMARY KEY (exchange, symbol, funding_time)
);

CREATE INDEX IF NOT EXISTS idx_funding_points_symbol_time
	ON funding_points (exchange, symbol, funding_time DESC);

CREATE TABLE IF NOT EXISTS contract_stats (
	exchange           TEXT NOT NULL,
	symbol             TEXT NOT NULL,
	mean               DOUBLE PRECISION NOT NULL,
	std_dev            DOUBLE PRECISION NOT NULL,
	median             DOUBLE PRECISION NOT NULL,
	min                DOUBLE PRECISION NOT NULL,
	max                DOUBLE PRECISION NOT NULL,
	data_points        INTEGER NOT NULL,
	current_z_score    DOUBLE PRECISION,
	current_percentile DOUBLE PRECISION,
	last_updated       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (exchange, symbol)
);

CREATE TABLE IF NOT EXISTS spreads (
	asset                   TEXT NOT NULL,
	long_exchange           TEXT NOT NULL,
	short_exchange          TEXT NOT NULL,
	observed_at             TIMESTAMPTZ NOT NULL,
	long_rate               NUMERIC(38,18) NOT NULL,
	short_rate              NUMERIC(38,18) NOT NULL,
	long_interval_hours     INTEGER NOT NULL,
	short_interval_hours    INTEGER NOT NULL,
	rate_spread             NUMERIC(38,18) NOT NULL,
	apr_spread              NUMERIC(38,18) NOT NULL,
	sync_period_hours       INTEGER NOT NULL,
	long_sync_funding       NUMERIC(38,18) NOT NULL,
	short_sync_funding      NUMERIC(38,18) NOT NULL,
	effective_hourly_spread NUMERIC(38,18) NOT NULL,
	daily_spread            NUMERIC(38,18) NOT NULL,
	weekly_spread           NUMERIC(38,18) NOT NULL,
	monthly_spread          NUMERIC(38,18) NOT NULL,
	yearly_spread           NUMERIC(38,18) NOT NULL,
	PRIMARY KEY (asset, long_exchange, short_exchange, observed_at)
);
`

// Migrate applies Schema. Idempotent (IF NOT EXISTS throughout).
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}
