package backfill

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fundingobservatory/observatory/internal/config"
	"github.com/fundingobservatory/observatory/internal/exchanges"
	"github.com/fundingobservatory/observatory/internal/model"
)

type fakeAdapter struct {
	name    string
	symbols []string
	points  map[string][]model.FundingPoint
	errs    map[string]int // symbol -> number of leading failures before success
	calls   map[string]int
	mu      sync.Mutex
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) ListContracts(ctx context.Context) ([]exchanges.ContractMeta, error) {
	out := make([]exchanges.ContractMeta, len(f.symbols))
	for i, s := range f.symbols {
		out[i] = exchanges.ContractMeta{Symbol: s, FundingIntervalHours: 8}
	}
	return out, nil
}
func (f *fakeAdapter) Fetch(ctx context.Context, symbols []string) ([]model.ContractSnapshot, exchanges.AdapterReport, error) {
	return nil, exchanges.AdapterReport{}, nil
}
func (f *fakeAdapter) FetchHistorical(ctx context.Context, symbol string, start, end time.Time) ([]model.FundingPoint, error) {
	f.mu.Lock()
	f.calls[symbol]++
	n := f.calls[symbol]
	f.mu.Unlock()

	if fails, ok := f.errs[symbol]; ok && n <= fails {
		return nil, errors.New("upstream timeout")
	}
	return f.points[symbol], nil
}

var _ exchanges.Adapter = (*fakeAdapter)(nil)

type fakeRegistry struct{ adapters []exchanges.Adapter }

func (r *fakeRegistry) Enabled() []exchanges.Adapter { return r.adapters }

type fakeStore struct {
	mu       sync.Mutex
	inserted []model.FundingPoint
}

func (f *fakeStore) FundingTimesInRange(ctx context.Context, exchange, symbol string, fromUnix, toUnix int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for _, p := range f.inserted {
		if p.Exchange == exchange && p.Symbol == symbol {
			out = append(out, p.FundingTime.Unix())
		}
	}
	return out, nil
}

func (f *fakeStore) InsertFundingPoints(ctx context.Context, points []model.FundingPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, points...)
	return nil
}

func point(exchange, symbol string, at time.Time) model.FundingPoint {
	return model.FundingPoint{
		Exchange: exchange, Symbol: symbol, FundingTime: at,
		FundingRate: decimal.NewFromFloat(0.0001), FundingIntervalHours: 8,
	}
}

func testCfg(t *testing.T) config.HistoricalConfig {
	dir := t.TempDir()
	return config.HistoricalConfig{
		Days:             1,
		MaxRetries:       2,
		BaseBackoffSec:   0,
		MaxBackoffSec:    0,
		LockTTLSec:       60,
		PerExchangeLimit: 4,
		StatusPath:       filepath.Join(dir, "status.json"),
		LockPath:         filepath.Join(dir, "backfill.lock"),
		ProgressFlushSec: 1,
	}
}

func TestRunFillsGapsAndMarksComplete(t *testing.T) {
	now := time.Now()
	a := &fakeAdapter{
		name:    "binance",
		symbols: []string{"BTCUSDT", "ETHUSDT"},
		points: map[string][]model.FundingPoint{
			"BTCUSDT": {point("binance", "BTCUSDT", now.Add(-time.Hour))},
			"ETHUSDT": {point("binance", "ETHUSDT", now.Add(-time.Hour))},
		},
		errs:  map[string]int{},
		calls: map[string]int{},
	}
	reg := &fakeRegistry{adapters: []exchanges.Adapter{a}}
	st := &fakeStore{}
	r := New(reg, st, testCfg(t))

	status, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "complete", status.State)
	require.Equal(t, 1.0, status.Progress)
	require.Equal(t, 2, status.ContractsDone)
	require.Equal(t, 2, status.GapsFilled)
	require.Empty(t, status.IncompleteContracts)
	require.Len(t, st.inserted, 2)
}

func TestRunIsIdempotentOnSecondPass(t *testing.T) {
	now := time.Now()
	a := &fakeAdapter{
		name:    "binance",
		symbols: []string{"BTCUSDT"},
		points:  map[string][]model.FundingPoint{"BTCUSDT": {point("binance", "BTCUSDT", now.Add(-time.Hour))}},
		errs:    map[string]int{},
		calls:   map[string]int{},
	}
	reg := &fakeRegistry{adapters: []exchanges.Adapter{a}}
	st := &fakeStore{}
	cfg := testCfg(t)
	r := New(reg, st, cfg)

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, st.inserted, 1)

	second, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, second.GapsFilled)
	require.Len(t, st.inserted, 1)
}

func TestRunRetriesThenRecordsIncompleteOnExhaustion(t *testing.T) {
	now := time.Now()
	a := &fakeAdapter{
		name:    "okx",
		symbols: []string{"BTC-USDT-SWAP"},
		points:  map[string][]model.FundingPoint{"BTC-USDT-SWAP": {point("okx", "BTC-USDT-SWAP", now.Add(-time.Hour))}},
		errs:    map[string]int{"BTC-USDT-SWAP": 99}, // always fails
		calls:   map[string]int{},
	}
	reg := &fakeRegistry{adapters: []exchanges.Adapter{a}}
	st := &fakeStore{}
	cfg := testCfg(t)
	r := New(reg, st, cfg)

	status, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"okx:BTC-USDT-SWAP"}, status.IncompleteContracts)
	require.NotEmpty(t, status.Errors)
	require.Empty(t, st.inserted)
}

func TestRunRecoversAfterTransientFailures(t *testing.T) {
	now := time.Now()
	a := &fakeAdapter{
		name:    "okx",
		symbols: []string{"BTC-USDT-SWAP"},
		points:  map[string][]model.FundingPoint{"BTC-USDT-SWAP": {point("okx", "BTC-USDT-SWAP", now.Add(-time.Hour))}},
		errs:    map[string]int{"BTC-USDT-SWAP": 1}, // fails once, then succeeds
		calls:   map[string]int{},
	}
	reg := &fakeRegistry{adapters: []exchanges.Adapter{a}}
	st := &fakeStore{}
	cfg := testCfg(t)
	r := New(reg, st, cfg)

	status, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, status.IncompleteContracts)
	require.Len(t, st.inserted, 1)
}

func TestRunRejectsConcurrentLockHolder(t *testing.T) {
	reg := &fakeRegistry{adapters: nil}
	st := &fakeStore{}
	cfg := testCfg(t)

	release, err := acquireLock(cfg.LockPath, cfg.LockTTL(), "other-job")
	require.NoError(t, err)
	defer release()

	r := New(reg, st, cfg)
	_, err = r.Run(context.Background())
	require.Error(t, err)
	var lockedErr *ErrLocked
	require.ErrorAs(t, err, &lockedErr)
}

func TestReadStatusSelfHealsStuckInProgress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	require.NoError(t, writeStatus(path, Status{JobID: "j1", State: "in_progress", Progress: 1.0}))

	got, err := ReadStatus(path)
	require.NoError(t, err)
	require.Equal(t, "complete", got.State)

	// The correction must be persisted back to path, not just returned in
	// memory, so a second, independent read of the raw file also observes
	// "complete" rather than the stale "in_progress" value.
	reread, err := ReadStatus(path)
	require.NoError(t, err)
	require.Equal(t, "complete", reread.State)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk Status
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	require.Equal(t, "complete", onDisk.State)
}

func TestReadStatusLeavesHealthyDocumentUnwritten(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	want := Status{JobID: "j2", State: "in_progress", Progress: 0.5, ContractsDone: 1, ContractsTotal: 2}
	require.NoError(t, writeStatus(path, want))

	got, err := ReadStatus(path)
	require.NoError(t, err)
	require.Equal(t, want.State, got.State)
	require.Equal(t, want.Progress, got.Progress)
}

func TestReadStatusMissingFileReturnsZeroValue(t *testing.T) {
	got, err := ReadStatus(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Equal(t, Status{}, got)
}
