package exchanges

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundingobservatory/observatory/internal/httpclient"
	"github.com/fundingobservatory/observatory/internal/model"
)

// binanceAdapter covers Binance USD-M perpetuals (CEX REST, bulk endpoint
// returning all markets), grounded on the per-venue shape of
// internal/provider/binance_provider.go's convertSymbol + JSON-unmarshal
// pattern, redirected from spot endpoints to the fapi funding surface.
type binanceAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewBinance(client *httpclient.Client, baseURL string) Adapter {
	if baseURL == "" {
		baseURL = "https://fapi.binance.com"
	}
	return &binanceAdapter{client: client, baseURL: baseURL}
}

func (a *binanceAdapter) Name() string { return "binance" }

type binancePremiumIndexEntry struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	IndexPrice      string `json:"indexPrice"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
	Time            int64  `json:"time"`
}

type binanceOpenInterestEntry struct {
	Symbol       string `json:"symbol"`
	OpenInterest string `json:"openInterest"`
}

func (a *binanceAdapter) ListContracts(ctx context.Context) ([]ContractMeta, error) {
	var entries []binancePremiumIndexEntry
	if err := get(ctx, a.client, "binance.ListContracts", a.baseURL+"/fapi/v1/premiumIndex", &entries); err != nil {
		return nil, err
	}
	out := make([]ContractMeta, 0, len(entries))
	for _, e := range entries {
		out = append(out, ContractMeta{Symbol: e.Symbol, FundingIntervalHours: 8})
	}
	return out, nil
}

func (a *binanceAdapter) Fetch(ctx context.Context, symbols []string) ([]model.ContractSnapshot, AdapterReport, error) {
	var entries []binancePremiumIndexEntry
	if err := get(ctx, a.client, "binance.Fetch", a.baseURL+"/fapi/v1/premiumIndex", &entries); err != nil {
		return nil, AdapterReport{}, err
	}
	want := toSet(symbols)

	out := make([]model.ContractSnapshot, 0, len(entries))
	for _, e := range entries {
		if len(want) > 0 && !want[e.Symbol] {
			continue
		}
		base, quote := model.SplitSymbol(e.Symbol, []string{"USDT", "BUSD", "USDC"})
		out = append(out, buildSnapshot(snapshotParams{
			exchange:             a.Name(),
			symbol:               e.Symbol,
			baseAsset:            model.NormalizeBaseAsset(base),
			quoteAsset:           quote,
			fundingRate:          decimalOrZero(e.LastFundingRate),
			fundingIntervalHours: 8,
			markPrice:            decimalPtrOrNil(e.MarkPrice),
			indexPrice:           decimalPtrOrNil(e.IndexPrice),
			openInterest:         decimal.Zero,
			openInterestUnit:     model.OpenInterestBase,
			contractType:         model.ContractUSDM,
			timestamp:            time.UnixMilli(e.Time),
		}))
	}
	return out, AdapterReport{Failed: missingSymbols(symbols, out)}, nil
}

type binanceFundingRateEntry struct {
	Symbol      string `json:"symbol"`
	FundingRate string `json:"fundingRate"`
	FundingTime int64  `json:"fundingTime"`
	MarkPrice   string `json:"markPrice"`
}

func (a *binanceAdapter) FetchHistorical(ctx context.Context, symbol string, start, end time.Time) ([]model.FundingPoint, error) {
	url := fmt.Sprintf("%s/fapi/v1/fundingRate?symbol=%s&startTime=%d&endTime=%d&limit=1000",
		a.baseURL, symbol, start.UnixMilli(), end.UnixMilli())

	var entries []binanceFundingRateEntry
	if err := get(ctx, a.client, "binance.FetchHistorical", url, &entries); err != nil {
		return nil, err
	}

	points := make([]model.FundingPoint, 0, len(entries))
	for _, e := range entries {
		points = append(points, model.FundingPoint{
			Exchange:    a.Name(),
			Symbol:      e.Symbol,
			FundingTime: time.UnixMilli(e.FundingTime),
			FundingRate: decimalOrZero(e.FundingRate),
		})
	}
	return resolveHistoricalIntervals(points), nil
}

func toSet(symbols []string) map[string]bool {
	if len(symbols) == 0 {
		return nil
	}
	m := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		m[s] = true
	}
	return m
}
