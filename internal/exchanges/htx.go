package exchanges

import (
	"context"
	"fmt"
	"time"

	"github.com/fundingobservatory/observatory/internal/httpclient"
	"github.com/fundingobservatory/observatory/internal/model"
)

type htxAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewHTX(client *httpclient.Client, baseURL string) Adapter {
	if baseURL == "" {
		baseURL = "https://api.hbdm.com"
	}
	return &htxAdapter{client: client, baseURL: baseURL}
}

func (a *htxAdapter) Name() string { return "htx" }

type htxFundingEntry struct {
	ContractCode string  `json:"contract_code"`
	FundingRate  string  `json:"funding_rate"`
	FundingTime  string  `json:"funding_time"`
}

type htxEnvelope struct {
	Status string             `json:"status"`
	Data   []htxFundingEntry  `json:"data"`
}

func (a *htxAdapter) ListContracts(ctx context.Context) ([]ContractMeta, error) {
	var env htxEnvelope
	if err := get(ctx, a.client, "htx.ListContracts", a.baseURL+"/linear-swap-api/v1/swap_batch_funding_rate", &env); err != nil {
		return nil, err
	}
	out := make([]ContractMeta, 0, len(env.Data))
	for _, d := range env.Data {
		out = append(out, ContractMeta{Symbol: d.ContractCode, FundingIntervalHours: 8})
	}
	return out, nil
}

func (a *htxAdapter) Fetch(ctx context.Context, symbols []string) ([]model.ContractSnapshot, AdapterReport, error) {
	var env htxEnvelope
	if err := get(ctx, a.client, "htx.Fetch", a.baseURL+"/linear-swap-api/v1/swap_batch_funding_rate", &env); err != nil {
		return nil, AdapterReport{}, err
	}
	want := toSet(symbols)

	out := make([]model.ContractSnapshot, 0, len(env.Data))
	for _, d := range env.Data {
		if len(want) > 0 && !want[d.ContractCode] {
			continue
		}
		base, quote := model.SplitSymbol(d.ContractCode, []string{"USDT", "USD"})
		var ms int64
		fmt.Sscanf(d.FundingTime, "%d", &ms)
		out = append(out, buildSnapshot(snapshotParams{
			exchange:             a.Name(),
			symbol:               d.ContractCode,
			baseAsset:            model.NormalizeBaseAsset(base),
			quoteAsset:           quote,
			fundingRate:          decimalOrZero(d.FundingRate),
			fundingIntervalHours: 8,
			openInterestUnit:     model.OpenInterestBase,
			contractType:         model.ContractUSDM,
			timestamp:            time.UnixMilli(ms),
		}))
	}
	return out, AdapterReport{Failed: missingSymbols(symbols, out)}, nil
}

type htxHistoryEntry struct {
	FundingRate string `json:"funding_rate"`
	FundingTime string `json:"funding_time"`
}

type htxHistoryEnvelope struct {
	Data struct {
		Data []htxHistoryEntry `json:"data"`
	} `json:"data"`
}

func (a *htxAdapter) FetchHistorical(ctx context.Context, symbol string, start, end time.Time) ([]model.FundingPoint, error) {
	url := fmt.Sprintf("%s/linear-swap-api/v1/swap_historical_funding_rate?contract_code=%s&page_size=50",
		a.baseURL, symbol)

	var env htxHistoryEnvelope
	if err := get(ctx, a.client, "htx.FetchHistorical", url, &env); err != nil {
		return nil, err
	}

	points := make([]model.FundingPoint, 0, len(env.Data.Data))
	for _, e := range env.Data.Data {
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
