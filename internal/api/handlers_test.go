package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fundingobservatory/observatory/internal/backfill"
	"github.com/fundingobservatory/observatory/internal/cache"
	"github.com/fundingobservatory/observatory/internal/config"
	"github.com/fundingobservatory/observatory/internal/metrics"
	"github.com/fundingobservatory/observatory/internal/model"
)

func sampleSnapshot(asset, exchange string, rate float64) model.ContractSnapshot {
	return model.ContractSnapshot{
		Exchange:             exchange,
		Symbol:               asset + "USDT",
		BaseAsset:            asset,
		QuoteAsset:           "USDT",
		FundingRate:          decimal.NewFromFloat(rate),
		FundingIntervalHours: 8,
		APR:                  model.APRFromFundingRate(decimal.NewFromFloat(rate), 8),
		Status:               model.ContractActive,
		Timestamp:            time.Now(),
	}
}

func TestGridGroupsSnapshotsByBaseAsset(t *testing.T) {
	store := &fakeStore{snapshots: []model.ContractSnapshot{
		sampleSnapshot("BTC", "binance", 0.0001),
		sampleSnapshot("BTC", "bybit", 0.0002),
		sampleSnapshot("ETH", "binance", 0.00005),
	}}
	s, _ := newTestServer(t, store)

	w := doGet(t, s, "/api/funding-rates-grid")
	require.Equal(t, http.StatusOK, w.Code)

	var resp GridResponse
	decodeJSON(t, w, &resp)
	require.Len(t, resp, 2)
	require.Len(t, resp["BTC"].Exchanges, 2)
	require.True(t, resp["BTC"].Exchanges["bybit"].FundingRate.Equal(decimal.NewFromFloat(0.0002)))
}

func TestGridIsServedFromCacheOnSecondCall(t *testing.T) {
	store := &fakeStore{snapshots: []model.ContractSnapshot{sampleSnapshot("BTC", "binance", 0.0001)}}
	s, _ := newTestServer(t, store)

	w1 := doGet(t, s, "/api/funding-rates-grid?base_asset=BTC")
	require.Equal(t, http.StatusOK, w1.Code)

	store.snapshots = nil // if the handler hits the store again, the cached response would change
	w2 := doGet(t, s, "/api/funding-rates-grid?base_asset=BTC")

	var resp GridResponse
	decodeJSON(t, w2, &resp)
	require.Len(t, resp, 1, "second request should be served from cache, not the now-empty store")
}

func TestFundingRatesAppliesLimit(t *testing.T) {
	store := &fakeStore{snapshots: []model.ContractSnapshot{
		sampleSnapshot("BTC", "binance", 0.0001),
		sampleSnapshot("ETH", "binance", 0.0002),
		sampleSnapshot("SOL", "binance", 0.0003),
	}}
	s, _ := newTestServer(t, store)

	w := doGet(t, s, "/api/funding-rates?limit=2")
	require.Equal(t, http.StatusOK, w.Code)

	var resp []model.ContractSnapshot
	decodeJSON(t, w, &resp)
	require.Len(t, resp, 2)
}

func TestFundingRatesRejectsNegativeLimit(t *testing.T) {
	s, _ := newTestServer(t, &fakeStore{})
	w := doGet(t, s, "/api/funding-rates?limit=-1")
	require.Equal(t, http.StatusBadRequest, w.Code)

	var env ErrorEnvelope
	decodeJSON(t, w, &env)
	require.Equal(t, "VALIDATION", env.Error.Kind)
}

func TestHistoricalByAssetBucketsToShortestInterval(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Hour)
	store := &fakeStore{points: []model.FundingPoint{
		{Exchange: "binance", Symbol: "BTCUSDT", FundingTime: now, FundingRate: decimal.NewFromFloat(0.0001), FundingIntervalHours: 8},
		{Exchange: "bybit", Symbol: "BTCUSDT", FundingTime: now, FundingRate: decimal.NewFromFloat(0.00012), FundingIntervalHours: 4},
	}}
	s, _ := newTestServer(t, store)

	w := doGet(t, s, "/api/historical-funding-by-asset/BTC?days=7")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HistoricalByAssetResponse
	decodeJSON(t, w, &resp)
	require.Equal(t, "BTC", resp.Asset)
	require.ElementsMatch(t, []string{"binance:BTCUSDT", "bybit:BTCUSDT"}, resp.Contracts)
	require.Len(t, resp.Data, 1, "both points fall in the same bucket at the shortest common interval")
	require.Len(t, resp.Data[0].Contracts, 2)
}

func TestHistoricalByAssetRejectsInvalidDays(t *testing.T) {
	s, _ := newTestServer(t, &fakeStore{})
	w := doGet(t, s, "/api/historical-funding-by-asset/BTC?days=0")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoricalByContractReturnsSymbolSeries(t *testing.T) {
	now := time.Now()
	store := &fakeStore{points: []model.FundingPoint{
		{Exchange: "binance", Symbol: "BTCUSDT", FundingTime: now, FundingRate: decimal.NewFromFloat(0.0001)},
		{Exchange: "binance", Symbol: "BTCUSDT", FundingTime: now.Add(-8 * time.Hour), FundingRate: decimal.NewFromFloat(0.0002)},
	}}
	s, _ := newTestServer(t, store)

	w := doGet(t, s, "/api/historical-funding-by-contract/binance/BTCUSDT?days=5")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HistoricalByContractResponse
	decodeJSON(t, w, &resp)
	require.Equal(t, "binance", resp.Exchange)
	require.Equal(t, "BTCUSDT", resp.Symbol)
	require.Len(t, resp.Points, 2)
}

func TestContractsWithZScores(t *testing.T) {
	store := &fakeStore{stats: []model.ContractStats{{Exchange: "binance", Symbol: "BTCUSDT", Mean: 0.0001, DataPoints: 90}}}
	s, _ := newTestServer(t, store)

	w := doGet(t, s, "/api/contracts-with-zscores")
	require.Equal(t, http.StatusOK, w.Code)

	var resp []model.ContractStats
	decodeJSON(t, w, &resp)
	require.Len(t, resp, 1)
}

func spread(asset string, aprSpread float64) model.Spread {
	return model.Spread{
		Asset:         asset,
		LongExchange:  "binance",
		ShortExchange: "bybit",
		ObservedAt:    time.Now(),
		APRSpread:     decimal.NewFromFloat(aprSpread),
	}
}

func TestArbitrageOpportunitiesRanksDescendingAndPaginates(t *testing.T) {
	store := &fakeStore{spreads: []model.Spread{
		spread("BTC", 5.0),
		spread("ETH", 12.0),
		spread("SOL", 8.0),
	}}
	s, _ := newTestServer(t, store)

	w := doGet(t, s, "/api/arbitrage/opportunities?page=1&page_size=2")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ArbitrageResponse
	decodeJSON(t, w, &resp)
	require.Equal(t, 3, resp.Total)
	require.Len(t, resp.Opportunities, 2)
	require.Equal(t, "ETH", resp.Opportunities[0].Asset)
	require.Equal(t, "SOL", resp.Opportunities[1].Asset)
}

func TestArbitrageOpportunitiesFiltersByMinAPRSpread(t *testing.T) {
	store := &fakeStore{spreads: []model.Spread{spread("BTC", 1.0), spread("ETH", 20.0)}}
	s, _ := newTestServer(t, store)

	w := doGet(t, s, "/api/arbitrage/opportunities?min_apr_spread=10")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ArbitrageResponse
	decodeJSON(t, w, &resp)
	require.Equal(t, 1, resp.Total)
	require.Equal(t, "ETH", resp.Opportunities[0].Asset)
}

func TestArbitrageOpportunitiesRejectsInvalidPageSize(t *testing.T) {
	s, _ := newTestServer(t, &fakeStore{})
	w := doGet(t, s, "/api/arbitrage/opportunities?page_size=0")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCacheClearEvictsCachedGridResponse(t *testing.T) {
	store := &fakeStore{snapshots: []model.ContractSnapshot{sampleSnapshot("BTC", "binance", 0.0001)}}
	s, c := newTestServer(t, store)

	w1 := doGet(t, s, "/api/funding-rates-grid?base_asset=BTC")
	require.Equal(t, http.StatusOK, w1.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/cache/clear", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var discard GridResponse
	hit, err := c.Get(req.Context(), cache.ClassGrid, "grid:BTC", &discard)
	require.NoError(t, err)
	require.False(t, hit, "cache/clear should have evicted the previously cached grid response")
}

func TestHealthReportsDegradedOnStorageFailure(t *testing.T) {
	store := &fakeStore{pingErr: errors.New("connection refused")}
	s, _ := newTestServer(t, store)

	w := doGet(t, s, "/api/health")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp HealthResponse
	decodeJSON(t, w, &resp)
	require.Equal(t, "degraded", resp.Status)
	require.Equal(t, "down", resp.Storage)
}

func TestHealthOKWhenStorageReachable(t *testing.T) {
	s, _ := newTestServer(t, &fakeStore{})
	w := doGet(t, s, "/api/health")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestPerformanceReportsCacheHitRatio(t *testing.T) {
	store := &fakeStore{}
	s, _ := newTestServer(t, store)

	w := doGet(t, s, "/api/health/performance")
	require.Equal(t, http.StatusOK, w.Code)

	var resp PerformanceResponse
	decodeJSON(t, w, &resp)
	require.GreaterOrEqual(t, resp.CacheHitRatio, 0.0)
}

func TestNotFoundUsesErrorEnvelope(t *testing.T) {
	s, _ := newTestServer(t, &fakeStore{})
	w := doGet(t, s, "/api/does-not-exist")
	require.Equal(t, http.StatusNotFound, w.Code)

	var env ErrorEnvelope
	decodeJSON(t, w, &env)
	require.NotEmpty(t, env.Error.Message)
}

func TestBackfillStatusReadsAndSelfHealsStuckDocument(t *testing.T) {
	dir := t.TempDir()
	statusPath := filepath.Join(dir, "status.json")

	raw := `{"job_id":"job-1","state":"in_progress","progress":1.0}`
	require.NoError(t, os.WriteFile(statusPath, []byte(raw), 0o600))

	c, err := cache.New(cache.Config{LRUSize: 64})
	require.NoError(t, err)
	s := New(config.APIConfig{ListenAddr: ":0"}, Deps{
		Store:      &fakeStore{},
		Cache:      c,
		Metrics:    metrics.NewRegistry(),
		StatusPath: statusPath,
	})

	w := doGet(t, s, "/api/backfill-status")
	require.Equal(t, http.StatusOK, w.Code)

	var status backfill.Status
	decodeJSON(t, w, &status)
	require.Equal(t, "complete", status.State, "ReadStatus self-heals before the handler ever sees the document")
}
