package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fundingobservatory/observatory/internal/config"
	"github.com/fundingobservatory/observatory/internal/exchanges"
	"github.com/fundingobservatory/observatory/internal/model"
)

type stubAdapter struct {
	name    string
	records []model.ContractSnapshot
	fetchErr error
}

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) ListContracts(ctx context.Context) ([]exchanges.ContractMeta, error) {
	return []exchanges.ContractMeta{{Symbol: "X", FundingIntervalHours: 8}}, nil
}
func (s *stubAdapter) Fetch(ctx context.Context, symbols []string) ([]model.ContractSnapshot, exchanges.AdapterReport, error) {
	if s.fetchErr != nil {
		return nil, exchanges.AdapterReport{}, s.fetchErr
	}
	return s.records, exchanges.AdapterReport{}, nil
}
func (s *stubAdapter) FetchHistorical(ctx context.Context, symbol string, start, end time.Time) ([]model.FundingPoint, error) {
	return nil, nil
}

type fakeRegistry struct {
	adapters []exchanges.Adapter
}

func (r *fakeRegistry) Enabled() []exchanges.Adapter { return r.adapters }
func (r *fakeRegistry) ReconcileCycle(venue string, fresh []model.ContractSnapshot, markInactive func(symbol string)) {
}

type fakeStore struct {
	mu       sync.Mutex
	upserted []model.ContractSnapshot
	inactive []string
}

func (f *fakeStore) UpsertSnapshots(ctx context.Context, snapshots []model.ContractSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, snapshots...)
	return nil
}

func (f *fakeStore) MarkInactive(ctx context.Context, exchange, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inactive = append(f.inactive, exchange+":"+symbol)
	return nil
}

func TestRunOnceMergesRecordsAcrossAdapters(t *testing.T) {
	reg := &fakeRegistry{adapters: []exchanges.Adapter{
		&stubAdapter{name: "binance", records: []model.ContractSnapshot{{Exchange: "binance", Symbol: "BTCUSDT"}}},
		&stubAdapter{name: "okx", records: []model.ContractSnapshot{{Exchange: "okx", Symbol: "BTC-USDT-SWAP"}}},
	}}
	st := &fakeStore{}
	sch := New(reg, st, config.CollectionConfig{Dispatch: "parallel"}, nil)

	require.NoError(t, sch.RunOnce(context.Background()))
	require.Len(t, st.upserted, 2)
}

func TestRunOnceOneAdapterFailureDoesNotDropOthers(t *testing.T) {
	reg := &fakeRegistry{adapters: []exchanges.Adapter{
		&stubAdapter{name: "binance", records: []model.ContractSnapshot{{Exchange: "binance", Symbol: "BTCUSDT"}}},
		&stubAdapter{name: "broken", fetchErr: errors.New("boom")},
	}}
	st := &fakeStore{}
	sch := New(reg, st, config.CollectionConfig{Dispatch: "parallel"}, nil)

	require.NoError(t, sch.RunOnce(context.Background()))
	require.Len(t, st.upserted, 1)
	require.Equal(t, "binance", st.upserted[0].Exchange)
}

func TestRunOnceSequentialStaggeredZeroStaggerRunsAllAdapters(t *testing.T) {
	reg := &fakeRegistry{adapters: []exchanges.Adapter{
		&stubAdapter{name: "a", records: []model.ContractSnapshot{{Exchange: "a", Symbol: "X"}}},
		&stubAdapter{name: "b", records: []model.ContractSnapshot{{Exchange: "b", Symbol: "X"}}},
	}}
	st := &fakeStore{}
	sch := New(reg, st, config.CollectionConfig{Dispatch: "sequential_staggered", StaggerSec: 0}, nil)

	start := time.Now()
	require.NoError(t, sch.RunOnce(context.Background()))
	require.WithinDuration(t, start, time.Now(), 500*time.Millisecond)
	require.Len(t, st.upserted, 2)
}

func TestRunRespectsOverallDurationCap(t *testing.T) {
	reg := &fakeRegistry{adapters: []exchanges.Adapter{
		&stubAdapter{name: "a", records: nil},
	}}
	st := &fakeStore{}
	cfg := config.CollectionConfig{IntervalSec: 0, DurationSec: 0}
	cfg.IntervalSec = 1
	cfg.DurationSec = 1
	sch := New(reg, st, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sch.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return within the configured duration cap")
	}
}
