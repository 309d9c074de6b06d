package exchanges

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundingobservatory/observatory/internal/httpclient"
	"github.com/fundingobservatory/observatory/internal/model"
)

// deribitStoreContinuousRate records DESIGN.md's open-question decision 2:
// false means we store the 8-hour-equivalent rate (matching every other
// adapter's funding_interval_hours domain and keeping cross-venue
// aggregation uniform) rather than Deribit's instantaneous continuous rate.
const deribitStoreContinuousRate = false

type deribitAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewDeribit(client *httpclient.Client, baseURL string) Adapter {
	if baseURL == "" {
		baseURL = "https://www.deribit.com"
	}
	return &deribitAdapter{client: client, baseURL: baseURL}
}

func (a *deribitAdapter) Name() string { return "deribit" }

type deribitTicker struct {
	InstrumentName      string  `json:"instrument_name"`
	MarkPrice           float64 `json:"mark_price"`
	IndexPrice          float64 `json:"index_price"`
	CurrentFunding      float64 `json:"current_funding"`
	Funding8H           float64 `json:"funding_8h"`
	OpenInterest        float64 `json:"open_interest"`
}

type deribitRPCResult[T any] struct {
	Result T `json:"result"`
}

func (a *deribitAdapter) ListContracts(ctx context.Context) ([]ContractMeta, error) {
	var env deribitRPCResult[[]struct {
		InstrumentName string `json:"instrument_name"`
	}]
	url := a.baseURL + "/api/v2/public/get_instruments?currency=any&kind=future&perpetual=true"
	if err := get(ctx, a.client, "deribit.ListContracts", url, &env); err != nil {
		return nil, err
	}
	out := make([]ContractMeta, 0, len(env.Result))
	for _, i := range env.Result {
		out = append(out, ContractMeta{Symbol: i.InstrumentName, FundingIntervalHours: 8})
	}
	return out, nil
}

func (a *deribitAdapter) Fetch(ctx context.Context, symbols []string) ([]model.ContractSnapshot, AdapterReport, error) {
	instruments, err := a.ListContracts(ctx)
	if err != nil {
		return nil, AdapterReport{}, err
	}
	want := toSet(symbols)

	out := make([]model.ContractSnapshot, 0, len(instruments))
	var failed []string
	for _, inst := range instruments {
		instName := inst.Symbol
		if len(want) > 0 && !want[instName] {
			continue
		}
		var env deribitRPCResult[deribitTicker]
		url := a.baseURL + "/api/v2/public/ticker?instrument_name=" + instName
		if err := get(ctx, a.client, "deribit.Fetch", url, &env); err != nil {
			failed = append(failed, instName)
			continue
		}

		rate := decimal.NewFromFloat(env.Result.Funding8H)
		if deribitStoreContinuousRate {
			rate = decimal.NewFromFloat(env.Result.CurrentFunding)
		}

		base, quote := model.SplitSymbol(instName, []string{"PERPETUAL", "PERP"})
		mark := decimal.NewFromFloat(env.Result.MarkPrice)
		index := decimal.NewFromFloat(env.Result.IndexPrice)
		out = append(out, buildSnapshot(snapshotParams{
			exchange:             a.Name(),
			symbol:               instName,
			baseAsset:            model.NormalizeBaseAsset(base),
			quoteAsset:           quote,
			fundingRate:          rate,
			fundingIntervalHours: 8,
			markPrice:            &mark,
			indexPrice:           &index,
			openInterest:         decimal.NewFromFloat(env.Result.OpenInterest),
			openInterestUnit:     model.OpenInterestBase,
			contractType:         model.ContractCoinM,
			timestamp:            time.Now().UTC(),
		}))
	}
	return out, AdapterReport{Failed: failed, Retryable: failed}, nil
}

type deribitFundingHistoryEntry struct {
	Timestamp   int64   `json:"timestamp"`
	Interest8H  float64 `json:"interest_8h"`
}

func (a *deribitAdapter) FetchHistorical(ctx context.Context, symbol string, start, end time.Time) ([]model.FundingPoint, error) {
	url := fmt.Sprintf("%s/api/v2/public/get_funding_rate_history?instrument_name=%s&start_timestamp=%d&end_timestamp=%d",
		a.baseURL, symbol, start.UnixMilli(), end.UnixMilli())

	var env deribitRPCResult[[]deribitFundingHistoryEntry]
	if err := get(ctx, a.client, "deribit.FetchHistorical", url, &env); err != nil {
		return nil, err
	}

	points := make([]model.FundingPoint, 0, len(env.Result))
	for _, e := range env.Result {
		points = append(points, model.FundingPoint{
			Exchange:    a.Name(),
			Symbol:      symbol,
			FundingTime: time.UnixMilli(e.Timestamp),
			FundingRate: decimal.NewFromFloat(e.Interest8H),
		})
	}
	return resolveHistoricalIntervals(points), nil
}
