package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fundingobservatory/observatory/internal/cache"
	"github.com/fundingobservatory/observatory/internal/config"
	"github.com/fundingobservatory/observatory/internal/metrics"
	"github.com/fundingobservatory/observatory/internal/model"
)

type fakeStore struct {
	snapshots []model.ContractSnapshot
	points    []model.FundingPoint
	stats     []model.ContractStats
	spreads   []model.Spread
	pingErr   error
}

func (f *fakeStore) Grid(ctx context.Context, baseAsset string) ([]model.ContractSnapshot, error) {
	if baseAsset == "" {
		return f.snapshots, nil
	}
	var out []model.ContractSnapshot
	for _, s := range f.snapshots {
		if s.BaseAsset == baseAsset {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) HistoricalBySymbol(ctx context.Context, exchange, symbol string, limit int) ([]model.FundingPoint, error) {
	var out []model.FundingPoint
	for _, p := range f.points {
		if p.Exchange == exchange && p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) HistoricalByAsset(ctx context.Context, baseAsset string, from, to time.Time, limit int) ([]model.FundingPoint, error) {
	return f.points, nil
}

func (f *fakeStore) ContractsWithStats(ctx context.Context) ([]model.ContractStats, error) {
	return f.stats, nil
}

func (f *fakeStore) RecentSpreads(ctx context.Context, since time.Time, minAPRSpread float64) ([]model.Spread, error) {
	var out []model.Spread
	for _, s := range f.spreads {
		aprFloat, _ := s.APRSpread.Float64()
		if aprFloat >= minAPRSpread {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

func newTestServer(t *testing.T, store Store) (*Server, *cache.Cache) {
	t.Helper()
	c, err := cache.New(cache.Config{LRUSize: 64})
	require.NoError(t, err)

	deps := Deps{
		Store:   store,
		Cache:   c,
		Metrics: metrics.NewRegistry(),
		MinAPR:  0,
	}
	return New(config.APIConfig{ListenAddr: ":0"}, deps), c
}

func doGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}
