package exchanges

import (
	"context"
	"fmt"
	"time"

	"github.com/fundingobservatory/observatory/internal/httpclient"
	"github.com/fundingobservatory/observatory/internal/model"
)

// coinbaseAdapter covers Coinbase International perpetuals, grounded on
// internal/provider/coinbase_provider.go's REST shape. Fetch reads the bulk
// instruments list in one request; it has no per-symbol fallback.
type coinbaseAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewCoinbase(client *httpclient.Client, baseURL string) Adapter {
	if baseURL == "" {
		baseURL = "https://api.international.coinbase.com"
	}
	return &coinbaseAdapter{client: client, baseURL: baseURL}
}

func (a *coinbaseAdapter) Name() string { return "coinbase" }

type coinbaseInstrument struct {
	InstrumentID  string `json:"instrument_id"`
	Symbol        string `json:"symbol"`
	FundingRate   string `json:"funding_rate"`
	IndexPrice    string `json:"index_price"`
	MarkPrice     string `json:"mark_price"`
	QuoteVolume24H string `json:"quote_volume_24h"`
	OpenInterest  string `json:"open_interest"`
}

func (a *coinbaseAdapter) ListContracts(ctx context.Context) ([]ContractMeta, error) {
	var instruments []coinbaseInstrument
	if err := get(ctx, a.client, "coinbase.ListContracts", a.baseURL+"/api/v1/instruments", &instruments); err != nil {
		return nil, err
	}
	out := make([]ContractMeta, 0, len(instruments))
	for _, i := range instruments {
		out = append(out, ContractMeta{Symbol: i.Symbol, FundingIntervalHours: 1})
	}
	return out, nil
}

func (a *coinbaseAdapter) Fetch(ctx context.Context, symbols []string) ([]model.ContractSnapshot, AdapterReport, error) {
	var instruments []coinbaseInstrument
	if err := get(ctx, a.client, "coinbase.Fetch", a.baseURL+"/api/v1/instruments", &instruments); err != nil {
		return nil, AdapterReport{}, err
	}
	want := toSet(symbols)

	out := make([]model.ContractSnapshot, 0, len(instruments))
	for _, i := range instruments {
		if len(want) > 0 && !want[i.Symbol] {
			continue
		}
		base, quote := model.SplitSymbol(i.Symbol, []string{"USDC", "USD", "PERP"})
		out = append(out, buildSnapshot(snapshotParams{
			exchange:             a.Name(),
			symbol:               i.Symbol,
			baseAsset:            model.NormalizeBaseAsset(base),
			quoteAsset:           quote,
			fundingRate:          decimalOrZero(i.FundingRate),
			fundingIntervalHours: 1,
			markPrice:            decimalPtrOrNil(i.MarkPrice),
			indexPrice:           decimalPtrOrNil(i.IndexPrice),
			openInterest:         decimalOrZero(i.OpenInterest),
			openInterestUnit:     model.OpenInterestBase,
			contractType:         model.ContractUSDM,
			timestamp:            time.Now().UTC(),
		}))
	}
	return out, AdapterReport{Failed: missingSymbols(symbols, out)}, nil
}

type coinbaseFundingHistoryEntry struct {
	Time        string `json:"time"`
	FundingRate string `json:"funding_rate"`
}

func (a *coinbaseAdapter) FetchHistorical(ctx context.Context, symbol string, start, end time.Time) ([]model.FundingPoint, error) {
	url := fmt.Sprintf("%s/api/v1/instruments/%s/funding?start=%s&end=%s",
		a.baseURL, symbol, start.Format(time.RFC3339), end.Format(time.RFC3339))

	var entries []coinbaseFundingHistoryEntry
	if err := get(ctx, a.client, "coinbase.FetchHistorical", url, &entries); err != nil {
		return nil, err
	}

	points := make([]model.FundingPoint, 0, len(entries))
	for _, e := range entries {
		ts, err := time.Parse(time.RFC3339, e.Time)
		if err != nil {
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
