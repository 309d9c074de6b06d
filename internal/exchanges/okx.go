package exchanges

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundingobservatory/observatory/internal/httpclient"
	"github.com/fundingobservatory/observatory/internal/model"
)

// okxAdapter covers OKX perpetual swaps, grounded on
// internal/provider/okx_provider.go's envelope-wrapped {code,data} response
// shape.
type okxAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewOKX(client *httpclient.Client, baseURL string) Adapter {
	if baseURL == "" {
		baseURL = "https://www.okx.com"
	}
	return &okxAdapter{client: client, baseURL: baseURL}
}

func (a *okxAdapter) Name() string { return "okx" }

type okxEnvelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

type okxInstrument struct {
	InstID string `json:"instId"`
	State  string `json:"state"`
}

type okxFundingRate struct {
	InstID      string `json:"instId"`
	FundingRate string `json:"fundingRate"`
	NextFunding string `json:"fundingTime"`
}

type okxMarkPrice struct {
	InstID    string `json:"instId"`
	MarkPx    string `json:"markPx"`
}

type okxOpenInterest struct {
	InstID string `json:"instId"`
	Oi     string `json:"oi"`
	OiCcy  string `json:"oiCcy"`
}

func (a *okxAdapter) ListContracts(ctx context.Context) ([]ContractMeta, error) {
	var env okxEnvelope[okxInstrument]
	url := a.baseURL + "/api/v5/public/instruments?instType=SWAP"
	if err := get(ctx, a.client, "okx.ListContracts", url, &env); err != nil {
		return nil, err
	}
	out := make([]ContractMeta, 0, len(env.Data))
	for _, d := range env.Data {
		if d.State == "live" {
			out = append(out, ContractMeta{Symbol: d.InstID, FundingIntervalHours: 8})
		}
	}
	return out, nil
}

func (a *okxAdapter) Fetch(ctx context.Context, symbols []string) ([]model.ContractSnapshot, AdapterReport, error) {
	want := toSet(symbols)
	out := make([]model.ContractSnapshot, 0)
	var failed []string

	instruments, err := a.ListContracts(ctx)
	if err != nil {
		return nil, AdapterReport{}, err
	}

	for _, inst := range instruments {
		instID := inst.Symbol
		if len(want) > 0 && !want[instID] {
			continue
		}

		var fr okxEnvelope[okxFundingRate]
		if err := get(ctx, a.client, "okx.Fetch", a.baseURL+"/api/v5/public/funding-rate?instId="+instID, &fr); err != nil {
			failed = append(failed, instID)
			continue
		}
		if len(fr.Data) == 0 {
			failed = append(failed, instID)
			continue
		}

		var mp okxEnvelope[okxMarkPrice]
		_ = get(ctx, a.client, "okx.Fetch.mark", a.baseURL+"/api/v5/public/mark-price?instType=SWAP&instId="+instID, &mp)
		var markPrice *decimal.Decimal
		if len(mp.Data) > 0 {
			markPrice = decimalPtrOrNil(mp.Data[0].MarkPx)
		}

		base, quote := model.SplitSymbol(instID, []string{"USDT", "USDC", "USD"})
		out = append(out, buildSnapshot(snapshotParams{
			exchange:             a.Name(),
			symbol:               instID,
			baseAsset:            model.NormalizeBaseAsset(base),
			quoteAsset:           quote,
			fundingRate:          decimalOrZero(fr.Data[0].FundingRate),
			fundingIntervalHours: 8,
			markPrice:            markPrice,
			openInterest:         decimal.Zero,
			openInterestUnit:     model.OpenInterestBase,
			contractType:         model.ContractUSDM,
			timestamp:            time.Now().UTC(),
		}))
	}
	return out, AdapterReport{Failed: failed, Retryable: failed}, nil
}

type okxFundingHistory struct {
	InstID      string `json:"instId"`
	FundingRate string `json:"fundingRate"`
	FundingTime string `json:"fundingTime"`
}

func (a *okxAdapter) FetchHistorical(ctx context.Context, symbol string, start, end time.Time) ([]model.FundingPoint, error) {
	url := fmt.Sprintf("%s/api/v5/public/funding-rate-history?instId=%s&before=%d&after=%d&limit=100",
		a.baseURL, symbol, start.UnixMilli(), end.UnixMilli())

	var env okxEnvelope[okxFundingHistory]
	if err := get(ctx, a.client, "okx.FetchHistorical", url, &env); err != nil {
		return nil, err
	}

	points := make([]model.FundingPoint, 0, len(env.Data))
	for _, d := range env.Data {
		var ms int64
		fmt.Sscanf(d.FundingTime, "%d", &ms)
		points = append(points, model.FundingPoint{
			Exchange:    a.Name(),
			Symbol:      d.InstID,
			FundingTime: time.UnixMilli(ms),
			FundingRate: decimalOrZero(d.FundingRate),
		})
	}
	return resolveHistoricalIntervals(points), nil
}
