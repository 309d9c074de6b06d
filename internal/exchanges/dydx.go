package exchanges

import (
	"context"
	"fmt"
	"time"

	"github.com/fundingobservatory/observatory/internal/httpclient"
	"github.com/fundingobservatory/observatory/internal/model"
)

// dydxAdapter covers dYdX v4 perpetuals: a DEX REST indexer returning all
// markets in one call.
type dydxAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewDYDX(client *httpclient.Client, baseURL string) Adapter {
	if baseURL == "" {
		baseURL = "https://indexer.dydx.trade"
	}
	return &dydxAdapter{client: client, baseURL: baseURL}
}

func (a *dydxAdapter) Name() string { return "dydx" }

type dydxMarket struct {
	Ticker             string `json:"ticker"`
	OraclePrice        string `json:"oraclePrice"`
	NextFundingRate    string `json:"nextFundingRate"`
	OpenInterest       string `json:"openInterest"`
}

type dydxMarketsResponse struct {
	Markets map[string]dydxMarket `json:"markets"`
}

func (a *dydxAdapter) ListContracts(ctx context.Context) ([]ContractMeta, error) {
	var resp dydxMarketsResponse
	if err := get(ctx, a.client, "dydx.ListContracts", a.baseURL+"/v4/perpetualMarkets", &resp); err != nil {
		return nil, err
	}
	out := make([]ContractMeta, 0, len(resp.Markets))
	for ticker := range resp.Markets {
		out = append(out, ContractMeta{Symbol: ticker, FundingIntervalHours: 1})
	}
	return out, nil
}

func (a *dydxAdapter) Fetch(ctx context.Context, symbols []string) ([]model.ContractSnapshot, AdapterReport, error) {
	var resp dydxMarketsResponse
	if err := get(ctx, a.client, "dydx.Fetch", a.baseURL+"/v4/perpetualMarkets", &resp); err != nil {
		return nil, AdapterReport{}, err
	}
	want := toSet(symbols)

	out := make([]model.ContractSnapshot, 0, len(resp.Markets))
	for ticker, m := range resp.Markets {
		if len(want) > 0 && !want[ticker] {
			continue
		}
		base, quote := model.SplitSymbol(ticker, []string{"USD"})
		out = append(out, buildSnapshot(snapshotParams{
			exchange:             a.Name(),
			symbol:               ticker,
			baseAsset:            model.NormalizeBaseAsset(base),
			quoteAsset:           quote,
			fundingRate:          decimalOrZero(m.NextFundingRate),
			fundingIntervalHours: 1,
			indexPrice:           decimalPtrOrNil(m.OraclePrice),
			openInterest:         decimalOrZero(m.OpenInterest),
			openInterestUnit:     model.OpenInterestBase,
			contractType:         model.ContractUSDM,
			timestamp:            time.Now().UTC(),
		}))
	}
	return out, AdapterReport{Failed: missingSymbols(symbols, out)}, nil
}

type dydxFundingHistoryEntry struct {
	Rate      string `json:"rate"`
	EffectiveAt string `json:"effectiveAt"`
}

type dydxFundingHistoryResponse struct {
	HistoricalFunding []dydxFundingHistoryEntry `json:"historicalFunding"`
}

func (a *dydxAdapter) FetchHistorical(ctx context.Context, symbol string, start, end time.Time) ([]model.FundingPoint, error) {
	url := fmt.Sprintf("%s/v4/historicalFunding/%s?effectiveBeforeOrAt=%s",
		a.baseURL, symbol, end.Format(time.RFC3339))

	var resp dydxFundingHistoryResponse
	if err := get(ctx, a.client, "dydx.FetchHistorical", url, &resp); err != nil {
		return nil, err
	}

	points := make([]model.FundingPoint, 0, len(resp.HistoricalFunding))
	for _, e := range resp.HistoricalFunding {
		ts, err := time.Parse(time.RFC3339, e.EffectiveAt)
		if err != nil || ts.Before(start) || ts.After(end) {
			continue
		}
		points = append(points, model.FundingPoint{
			Exchange:    a.Name(),
			Symbol:      symbol,
			FundingTime: ts,
			FundingRate: decimalOrZero(e.Rate),
		})
	}
	return resolveHistoricalIntervals(points), nil
}
