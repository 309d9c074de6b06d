package exchanges

import (
	"context"
	"fmt"
	"time"

	"github.com/fundingobservatory/observatory/internal/httpclient"
	"github.com/fundingobservatory/observatory/internal/model"
)

type mexcAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewMEXC(client *httpclient.Client, baseURL string) Adapter {
	if baseURL == "" {
		baseURL = "https://contract.mexc.com"
	}
	return &mexcAdapter{client: client, baseURL: baseURL}
}

func (a *mexcAdapter) Name() string { return "mexc" }

type mexcFundingEntry struct {
	Symbol        string  `json:"symbol"`
	FundingRate   float64 `json:"fundingRate"`
	CollectCycle  int     `json:"collectCycle"`
}

type mexcEnvelope struct {
	Success bool               `json:"success"`
	Data    []mexcFundingEntry `json:"data"`
}

// mexcIntervalHours falls back to the 8h default cadence when the venue's
// collectCycle field isn't one of the system's accepted interval values.
func mexcIntervalHours(collectCycle int) int {
	if !model.IsValidFundingInterval(collectCycle) {
		return 8
	}
	return collectCycle
}

func (a *mexcAdapter) ListContracts(ctx context.Context) ([]ContractMeta, error) {
	var env mexcEnvelope
	if err := get(ctx, a.client, "mexc.ListContracts", a.baseURL+"/api/v1/contract/funding_rate", &env); err != nil {
		return nil, err
	}
	out := make([]ContractMeta, 0, len(env.Data))
	for _, d := range env.Data {
		out = append(out, ContractMeta{Symbol: d.Symbol, FundingIntervalHours: mexcIntervalHours(d.CollectCycle)})
	}
	return out, nil
}

func (a *mexcAdapter) Fetch(ctx context.Context, symbols []string) ([]model.ContractSnapshot, AdapterReport, error) {
	var env mexcEnvelope
	if err := get(ctx, a.client, "mexc.Fetch", a.baseURL+"/api/v1/contract/funding_rate", &env); err != nil {
		return nil, AdapterReport{}, err
	}
	want := toSet(symbols)

	out := make([]model.ContractSnapshot, 0, len(env.Data))
	for _, d := range env.Data {
		if len(want) > 0 && !want[d.Symbol] {
			continue
		}
		base, quote := model.SplitSymbol(d.Symbol, []string{"USDT", "USD"})
		intervalHours := mexcIntervalHours(d.CollectCycle)
		out = append(out, buildSnapshot(snapshotParams{
			exchange:             a.Name(),
			symbol:               d.Symbol,
			baseAsset:            model.NormalizeBaseAsset(base),
			quoteAsset:           quote,
			fundingRate:          decimalFromFloat(d.FundingRate),
			fundingIntervalHours: intervalHours,
			openInterestUnit:     model.OpenInterestBase,
			contractType:         model.ContractUSDM,
			timestamp:            time.Now().UTC(),
		}))
	}
	return out, AdapterReport{Failed: missingSymbols(symbols, out)}, nil
}

type mexcHistoryEntry struct {
	Symbol      string  `json:"symbol"`
	FundingRate float64 `json:"fundingRate"`
	SettleTime  int64   `json:"settleTime"`
}

type mexcHistoryEnvelope struct {
	Data struct {
		ResultList []mexcHistoryEntry `json:"resultList"`
	} `json:"data"`
}

func (a *mexcAdapter) FetchHistorical(ctx context.Context, symbol string, start, end time.Time) ([]model.FundingPoint, error) {
	url := fmt.Sprintf("%s/api/v1/contract/funding_rate/history?symbol=%s&page_size=1000", a.baseURL, symbol)

	var env mexcHistoryEnvelope
	if err := get(ctx, a.client, "mexc.FetchHistorical", url, &env); err != nil {
		return nil, err
	}

	points := make([]model.FundingPoint, 0, len(env.Data.ResultList))
	for _, e := range env.Data.ResultList {
		ts := time.UnixMilli(e.SettleTime)
		if ts.Before(start) || ts.After(end) {
			continue
		}
		points = append(points, model.FundingPoint{
			Exchange:    a.Name(),
			Symbol:      e.Symbol,
			FundingTime: ts,
			FundingRate: decimalFromFloat(e.FundingRate),
		})
	}
	return resolveHistoricalIntervals(points), nil
}
