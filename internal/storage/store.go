package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fundingobservatory/observatory/internal/obserr"
)

// Store wraps a *sqlx.DB with the observatory's UPSERT/INSERT batching and
// query methods, grounded on internal/persistence/interfaces.go's
// repo-per-entity shape (collapsed to one Store here since every entity
// shares the same lib/pq connection and transaction style).
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to dsn via lib/pq (root go.mod's direct driver dep) and
// returns a Store bound to it.
func Open(dsn string, timeout time.Duration) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, obserr.New(obserr.KindStorage, "storage.Open", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{db: db, timeout: timeout}, nil
}

// NewWithDB wraps an already-open *sqlx.DB (used by sqlmock-backed tests).
func NewWithDB(db *sqlx.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{db: db, timeout: timeout}
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is reachable, used by the health
// endpoint's dependency probe (spec.md §6).
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return obserr.New(obserr.KindStorage, "storage.Ping", err)
	}
	return nil
}

// upsertBatchSize bounds how many rows go into a single UPSERT statement
// (spec.md §4.5: "UPSERT batching, ≤100 rows per statement").
const upsertBatchSize = 100

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}

func batches[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	return append(out, items)
}
