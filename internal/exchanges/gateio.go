package exchanges

import (
	"context"
	"fmt"
	"time"

	"github.com/fundingobservatory/observatory/internal/httpclient"
	"github.com/fundingobservatory/observatory/internal/model"
)

type gateioAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewGateio(client *httpclient.Client, baseURL string) Adapter {
	if baseURL == "" {
		baseURL = "https://api.gateio.ws"
	}
	return &gateioAdapter{client: client, baseURL: baseURL}
}

func (a *gateioAdapter) Name() string { return "gateio" }

type gateioContract struct {
	Name              string `json:"name"`
	MarkPrice         string `json:"mark_price"`
	IndexPrice        string `json:"index_price"`
	FundingRate       string `json:"funding_rate"`
	FundingIntervalSec int   `json:"funding_interval"`
}

// gateioIntervalHours converts the venue's funding_interval (seconds) to
// hours, falling back to the 8h default cadence when the reported interval
// isn't one of the system's accepted values.
func gateioIntervalHours(sec int) int {
	hours := sec / 3600
	if !model.IsValidFundingInterval(hours) {
		return 8
	}
	return hours
}

func (a *gateioAdapter) ListContracts(ctx context.Context) ([]ContractMeta, error) {
	var contracts []gateioContract
	if err := get(ctx, a.client, "gateio.ListContracts", a.baseURL+"/api/v4/futures/usdt/contracts", &contracts); err != nil {
		return nil, err
	}
	out := make([]ContractMeta, 0, len(contracts))
	for _, c := range contracts {
		out = append(out, ContractMeta{Symbol: c.Name, FundingIntervalHours: gateioIntervalHours(c.FundingIntervalSec)})
	}
	return out, nil
}

func (a *gateioAdapter) Fetch(ctx context.Context, symbols []string) ([]model.ContractSnapshot, AdapterReport, error) {
	var contracts []gateioContract
	if err := get(ctx, a.client, "gateio.Fetch", a.baseURL+"/api/v4/futures/usdt/contracts", &contracts); err != nil {
		return nil, AdapterReport{}, err
	}
	want := toSet(symbols)

	out := make([]model.ContractSnapshot, 0, len(contracts))
	for _, c := range contracts {
		if len(want) > 0 && !want[c.Name] {
			continue
		}
		base, quote := model.SplitSymbol(c.Name, []string{"USDT", "USD"})
		intervalHours := gateioIntervalHours(c.FundingIntervalSec)
		out = append(out, buildSnapshot(snapshotParams{
			exchange:             a.Name(),
			symbol:               c.Name,
			baseAsset:            model.NormalizeBaseAsset(base),
			quoteAsset:           quote,
			fundingRate:          decimalOrZero(c.FundingRate),
			fundingIntervalHours: intervalHours,
			markPrice:            decimalPtrOrNil(c.MarkPrice),
			indexPrice:           decimalPtrOrNil(c.IndexPrice),
			openInterest:         decimalOrZero(""),
			openInterestUnit:     model.OpenInterestBase,
			contractType:         model.ContractUSDM,
			timestamp:            time.Now().UTC(),
		}))
	}
	return out, AdapterReport{Failed: missingSymbols(symbols, out)}, nil
}

type gateioFundingHistoryEntry struct {
	Rate string `json:"r"`
	Time int64  `json:"t"`
}

func (a *gateioAdapter) FetchHistorical(ctx context.Context, symbol string, start, end time.Time) ([]model.FundingPoint, error) {
	url := fmt.Sprintf("%s/api/v4/futures/usdt/funding_rate?contract=%s&limit=1000", a.baseURL, symbol)

	var entries []gateioFundingHistoryEntry
	if err := get(ctx, a.client, "gateio.FetchHistorical", url, &entries); err != nil {
		return nil, err
	}

	points := make([]model.FundingPoint, 0, len(entries))
	for _, e := range entries {
		ts := time.Unix(e.Time, 0)
		if ts.Before(start) || ts.After(end) {
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
