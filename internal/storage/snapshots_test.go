package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fundingobservatory/observatory/internal/model"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewWithDB(sqlxDB, 5*time.Second), mock
}

func TestUpsertSnapshotsIssuesOneStatementPerBatch(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO contract_snapshots").
		WillReturnResult(sqlmock.NewResult(0, 1))

	snap := model.ContractSnapshot{
		Exchange: "binance", Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT",
		FundingRate: decimal.NewFromFloat(0.0001), FundingIntervalHours: 8,
		APR: model.APRFromFundingRate(decimal.NewFromFloat(0.0001), 8),
		OpenInterest: decimal.NewFromInt(1000), OpenInterestUnit: model.OpenInterestBase,
		ContractType: model.ContractUSDM, MarketType: model.MarketPerpetual,
		Timestamp: time.Now(), Status: model.ContractActive,
	}

	err := store.UpsertSnapshots(context.Background(), []model.ContractSnapshot{snap})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSnapshotsSplitsIntoMultipleBatches(t *testing.T) {
	store, mock := newMockStore(t)

	// 250 rows at upsertBatchSize=100 should issue 3 statements (100,100,50).
	mock.ExpectExec("INSERT INTO contract_snapshots").WillReturnResult(sqlmock.NewResult(0, 100))
	mock.ExpectExec("INSERT INTO contract_snapshots").WillReturnResult(sqlmock.NewResult(0, 100))
	mock.ExpectExec("INSERT INTO contract_snapshots").WillReturnResult(sqlmock.NewResult(0, 50))

	snapshots := make([]model.ContractSnapshot, 250)
	for i := range snapshots {
		snapshots[i] = model.ContractSnapshot{
			Exchange: "binance", Symbol: "S", BaseAsset: "X", QuoteAsset: "USDT",
			FundingRate: decimal.Zero, FundingIntervalHours: 8, APR: decimal.Zero,
			OpenInterest: decimal.Zero, OpenInterestUnit: model.OpenInterestBase,
			ContractType: model.ContractUSDM, MarketType: model.MarketPerpetual,
			Timestamp: time.Now(), Status: model.ContractActive,
		}
	}

	err := store.UpsertSnapshots(context.Background(), snapshots)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertFundingPointsConflictDoesNothing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO funding_points").
		WillReturnResult(sqlmock.NewResult(0, 0)) // conflict -> 0 rows affected, not an error

	point := model.FundingPoint{
		Exchange: "binance", Symbol: "BTCUSDT", FundingTime: time.Now(),
		FundingRate: decimal.NewFromFloat(0.0001), FundingIntervalHours: 8,
	}
	err := store.InsertFundingPoints(context.Background(), []model.FundingPoint{point})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
