package exchanges

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundingobservatory/observatory/internal/httpclient"
	"github.com/fundingobservatory/observatory/internal/model"
)

// vertexAdapter covers Vertex Protocol: a DEX aggregator whose archive
// endpoint normalizes across its own cross-chain deployments (spec.md
// §4.2's "DEX aggregator (normalizes across upstream venues)" polymorphic
// variant) before exposing a single funding_rate_8h symbol feed.
type vertexAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewVertex(client *httpclient.Client, baseURL string) Adapter {
	if baseURL == "" {
		baseURL = "https://archive.prod.vertexprotocol.com"
	}
	return &vertexAdapter{client: client, baseURL: baseURL}
}

func (a *vertexAdapter) Name() string { return "vertex" }

type vertexMarket struct {
	Ticker          string  `json:"ticker_id"`
	FundingRate8H   float64 `json:"funding_rate"`
	MarkPrice       float64 `json:"mark_price"`
	IndexPrice      float64 `json:"index_price"`
}

type vertexContractsResponse struct {
	Markets []vertexMarket `json:"markets"`
}

func (a *vertexAdapter) ListContracts(ctx context.Context) ([]ContractMeta, error) {
	var resp vertexContractsResponse
	if err := get(ctx, a.client, "vertex.ListContracts", a.baseURL+"/v1/contracts", &resp); err != nil {
		return nil, err
	}
	out := make([]ContractMeta, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		out = append(out, ContractMeta{Symbol: m.Ticker, FundingIntervalHours: 8})
	}
	return out, nil
}

func (a *vertexAdapter) Fetch(ctx context.Context, symbols []string) ([]model.ContractSnapshot, AdapterReport, error) {
	var resp vertexContractsResponse
	if err := get(ctx, a.client, "vertex.Fetch", a.baseURL+"/v1/contracts", &resp); err != nil {
		return nil, AdapterReport{}, err
	}
	want := toSet(symbols)

	out := make([]model.ContractSnapshot, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		if len(want) > 0 && !want[m.Ticker] {
			continue
		}
		base, quote := model.SplitSymbol(m.Ticker, []string{"USDC", "USD"})
		mark := decimal.NewFromFloat(m.MarkPrice)
		index := decimal.NewFromFloat(m.IndexPrice)
		out = append(out, buildSnapshot(snapshotParams{
			exchange:             a.Name(),
			symbol:               m.Ticker,
			baseAsset:            model.NormalizeBaseAsset(base),
			quoteAsset:           quote,
			fundingRate:          decimalFromFloat(m.FundingRate8H),
			fundingIntervalHours: 8,
			markPrice:            &mark,
			indexPrice:           &index,
			openInterest:         decimal.Zero,
			openInterestUnit:     model.OpenInterestBase,
			contractType:         model.ContractUSDM,
			timestamp:            time.Now().UTC(),
		}))
	}
	return out, AdapterReport{Failed: missingSymbols(symbols, out)}, nil
}

type vertexFundingHistoryEntry struct {
	Rate float64 `json:"funding_rate"`
	Time int64   `json:"time"`
}

type vertexFundingHistoryResponse struct {
	Rates []vertexFundingHistoryEntry `json:"rates"`
}

func (a *vertexAdapter) FetchHistorical(ctx context.Context, symbol string, start, end time.Time) ([]model.FundingPoint, error) {
	url := fmt.Sprintf("%s/v1/funding_rate?ticker_id=%s&start_time=%d&end_time=%d",
		a.baseURL, symbol, start.Unix(), end.Unix())

	var resp vertexFundingHistoryResponse
	if err := get(ctx, a.client, "vertex.FetchHistorical", url, &resp); err != nil {
		return nil, err
	}

	points := make([]model.FundingPoint, 0, len(resp.Rates))
	for _, r := range resp.Rates {
		points = append(points, model.FundingPoint{
			Exchange:    a.Name(),
			Symbol:      symbol,
			FundingTime: time.Unix(r.Time, 0),
			FundingRate: decimalFromFloat(r.Rate),
		})
	}
	return resolveHistoricalIntervals(points), nil
}
