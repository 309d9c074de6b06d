package exchanges

import (
	"context"
	"fmt"
	"time"

	"github.com/fundingobservatory/observatory/internal/httpclient"
	"github.com/fundingobservatory/observatory/internal/model"
)

type bybitAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewBybit(client *httpclient.Client, baseURL string) Adapter {
	if baseURL == "" {
		baseURL = "https://api.bybit.com"
	}
	return &bybitAdapter{client: client, baseURL: baseURL}
}

func (a *bybitAdapter) Name() string { return "bybit" }

type bybitTickerEntry struct {
	Symbol        string `json:"symbol"`
	MarkPrice     string `json:"markPrice"`
	IndexPrice    string `json:"indexPrice"`
	FundingRate   string `json:"fundingRate"`
	OpenInterest  string `json:"openInterest"`
}

type bybitResult struct {
	List []bybitTickerEntry `json:"list"`
}

type bybitEnvelope struct {
	RetCode int         `json:"retCode"`
	RetMsg  string      `json:"retMsg"`
	Result  bybitResult `json:"result"`
}

func (a *bybitAdapter) ListContracts(ctx context.Context) ([]ContractMeta, error) {
	var env bybitEnvelope
	if err := get(ctx, a.client, "bybit.ListContracts", a.baseURL+"/v5/market/tickers?category=linear", &env); err != nil {
		return nil, err
	}
	out := make([]ContractMeta, 0, len(env.Result.List))
	for _, t := range env.Result.List {
		out = append(out, ContractMeta{Symbol: t.Symbol, FundingIntervalHours: 8})
	}
	return out, nil
}

func (a *bybitAdapter) Fetch(ctx context.Context, symbols []string) ([]model.ContractSnapshot, AdapterReport, error) {
	var env bybitEnvelope
	if err := get(ctx, a.client, "bybit.Fetch", a.baseURL+"/v5/market/tickers?category=linear", &env); err != nil {
		return nil, AdapterReport{}, err
	}
	want := toSet(symbols)

	out := make([]model.ContractSnapshot, 0, len(env.Result.List))
	for _, t := range env.Result.List {
		if len(want) > 0 && !want[t.Symbol] {
			continue
		}
		base, quote := model.SplitSymbol(t.Symbol, []string{"USDT", "USDC"})
		out = append(out, buildSnapshot(snapshotParams{
			exchange:             a.Name(),
			symbol:               t.Symbol,
			baseAsset:            model.NormalizeBaseAsset(base),
			quoteAsset:           quote,
			fundingRate:          decimalOrZero(t.FundingRate),
			fundingIntervalHours: 8,
			markPrice:            decimalPtrOrNil(t.MarkPrice),
			indexPrice:           decimalPtrOrNil(t.IndexPrice),
			openInterest:         decimalOrZero(t.OpenInterest),
			openInterestUnit:     model.OpenInterestBase,
			contractType:         model.ContractUSDM,
			timestamp:            time.Now().UTC(),
		}))
	}
	return out, AdapterReport{Failed: missingSymbols(symbols, out)}, nil
}

type bybitFundingHistoryEntry struct {
	Symbol           string `json:"symbol"`
	FundingRate      string `json:"fundingRate"`
	FundingRateTimestamp string `json:"fundingRateTimestamp"`
}

type bybitFundingHistoryResult struct {
	List []bybitFundingHistoryEntry `json:"list"`
}

type bybitFundingHistoryEnvelope struct {
	Result bybitFundingHistoryResult `json:"result"`
}

func (a *bybitAdapter) FetchHistorical(ctx context.Context, symbol string, start, end time.Time) ([]model.FundingPoint, error) {
	url := fmt.Sprintf("%s/v5/market/funding/history?category=linear&symbol=%s&startTime=%d&endTime=%d&limit=200",
		a.baseURL, symbol, start.UnixMilli(), end.UnixMilli())

	var env bybitFundingHistoryEnvelope
	if err := get(ctx, a.client, "bybit.FetchHistorical", url, &env); err != nil {
		return nil, err
	}

	points := make([]model.FundingPoint, 0, len(env.Result.List))
	for _, e := range env.Result.List {
		var ms int64
		fmt.Sscanf(e.FundingRateTimestamp, "%d", &ms)
		points = append(points, model.FundingPoint{
			Exchange:    a.Name(),
			Symbol:      e.Symbol,
			FundingTime: time.UnixMilli(ms),
			FundingRate: decimalOrZero(e.FundingRate),
		})
	}
	return resolveHistoricalIntervals(points), nil
}
