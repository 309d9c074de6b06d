package exchanges

import (
	"context"
	"fmt"
	"time"

	"github.com/fundingobservatory/observatory/internal/httpclient"
	"github.com/fundingobservatory/observatory/internal/model"
)

type bitgetAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewBitget(client *httpclient.Client, baseURL string) Adapter {
	if baseURL == "" {
		baseURL = "https://api.bitget.com"
	}
	return &bitgetAdapter{client: client, baseURL: baseURL}
}

func (a *bitgetAdapter) Name() string { return "bitget" }

type bitgetTicker struct {
	Symbol         string `json:"symbol"`
	MarkPrice      string `json:"markPrice"`
	IndexPrice     string `json:"indexPrice"`
	FundingRate    string `json:"fundingRate"`
	HoldingAmount  string `json:"holdingAmount"`
}

type bitgetEnvelope struct {
	Code string         `json:"code"`
	Data []bitgetTicker `json:"data"`
}

func (a *bitgetAdapter) ListContracts(ctx context.Context) ([]ContractMeta, error) {
	var env bitgetEnvelope
	if err := get(ctx, a.client, "bitget.ListContracts", a.baseURL+"/api/v2/mix/market/tickers?productType=usdt-futures", &env); err != nil {
		return nil, err
	}
	out := make([]ContractMeta, 0, len(env.Data))
	for _, t := range env.Data {
		out = append(out, ContractMeta{Symbol: t.Symbol, FundingIntervalHours: 8})
	}
	return out, nil
}

func (a *bitgetAdapter) Fetch(ctx context.Context, symbols []string) ([]model.ContractSnapshot, AdapterReport, error) {
	var env bitgetEnvelope
	if err := get(ctx, a.client, "bitget.Fetch", a.baseURL+"/api/v2/mix/market/tickers?productType=usdt-futures", &env); err != nil {
		return nil, AdapterReport{}, err
	}
	want := toSet(symbols)

	out := make([]model.ContractSnapshot, 0, len(env.Data))
	for _, t := range env.Data {
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
			openInterest:         decimalOrZero(t.HoldingAmount),
			openInterestUnit:     model.OpenInterestBase,
			contractType:         model.ContractUSDM,
			timestamp:            time.Now().UTC(),
		}))
	}
	return out, AdapterReport{Failed: missingSymbols(symbols, out)}, nil
}

type bitgetHistoryEntry struct {
	FundingRate string `json:"fundingRate"`
	FundingTime string `json:"fundingTime"`
}

type bitgetHistoryEnvelope struct {
	Data []bitgetHistoryEntry `json:"data"`
}

func (a *bitgetAdapter) FetchHistorical(ctx context.Context, symbol string, start, end time.Time) ([]model.FundingPoint, error) {
	url := fmt.Sprintf("%s/api/v2/mix/market/history-fund-rate?symbol=%s&productType=usdt-futures&pageSize=100",
		a.baseURL, symbol)

	var env bitgetHistoryEnvelope
	if err := get(ctx, a.client, "bitget.FetchHistorical", url, &env); err != nil {
		return nil, err
	}

	points := make([]model.FundingPoint, 0, len(env.Data))
	for _, e := range env.Data {
		var ms int64
		fmt.Sscanf(e.FundingTime, "%d", &ms)
		ts := time.UnixMilli(ms)
		if ts.Before(start) || ts.After(end) {
			continue
		}
		points = append(points, model.FundingPoint{
			Exchange:    a.Name(),
			Symbol:      symbol,
			FundingTime: ts,
			FundingRate: decimalOrZero(e.FundingRate),
		})
	}
	return resolveHistoricalIntervals(points), nil
}
