package exchanges

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fundingobservatory/observatory/internal/httpclient"
	"github.com/fundingobservatory/observatory/internal/model"
	"github.com/fundingobservatory/observatory/internal/obserr"
)

// hyperliquidAdapter covers Hyperliquid perpetuals: a DEX whose info
// endpoint is POST-only and returns all markets in a single call (spec.md
// §4.2's "DEX REST (single call returns all markets)" polymorphic variant).
type hyperliquidAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewHyperliquid(client *httpclient.Client, baseURL string) Adapter {
	if baseURL == "" {
		baseURL = "https://api.hyperliquid.xyz"
	}
	return &hyperliquidAdapter{client: client, baseURL: baseURL}
}

func (a *hyperliquidAdapter) Name() string { return "hyperliquid" }

type hyperliquidUniverseAsset struct {
	Name string `json:"name"`
}

type hyperliquidMeta struct {
	Universe []hyperliquidUniverseAsset `json:"universe"`
}

type hyperliquidAssetCtx struct {
	Funding      string `json:"funding"`
	OpenInterest string `json:"openInterest"`
	MarkPx       string `json:"markPx"`
	OraclePx     string `json:"oraclePx"`
}

func (a *hyperliquidAdapter) post(ctx context.Context, body interface{}, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return obserr.New(obserr.KindInternal, "hyperliquid.post", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/info", bytes.NewReader(b))
	if err != nil {
		return obserr.New(obserr.KindInternal, "hyperliquid.post", err)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, _, err := a.client.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return obserr.New(obserr.KindParse, "hyperliquid.post", err)
	}
	return nil
}

func (a *hyperliquidAdapter) metaAndCtxs(ctx context.Context) (hyperliquidMeta, []hyperliquidAssetCtx, error) {
	var raw []json.RawMessage
	if err := a.post(ctx, map[string]string{"type": "metaAndAssetCtxs"}, &raw); err != nil {
		return hyperliquidMeta{}, nil, err
	}
	if len(raw) < 2 {
		return hyperliquidMeta{}, nil, obserr.New(obserr.KindParse, "hyperliquid.metaAndCtxs", errShapeMismatch)
	}
	var meta hyperliquidMeta
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return hyperliquidMeta{}, nil, obserr.New(obserr.KindParse, "hyperliquid.metaAndCtxs", err)
	}
	var ctxs []hyperliquidAssetCtx
	if err := json.Unmarshal(raw[1], &ctxs); err != nil {
		return hyperliquidMeta{}, nil, obserr.New(obserr.KindParse, "hyperliquid.metaAndCtxs", err)
	}
	return meta, ctxs, nil
}

func (a *hyperliquidAdapter) ListContracts(ctx context.Context) ([]ContractMeta, error) {
	meta, _, err := a.metaAndCtxs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ContractMeta, 0, len(meta.Universe))
	for _, u := range meta.Universe {
		out = append(out, ContractMeta{Symbol: u.Name, FundingIntervalHours: 1})
	}
	return out, nil
}

func (a *hyperliquidAdapter) Fetch(ctx context.Context, symbols []string) ([]model.ContractSnapshot, AdapterReport, error) {
	meta, ctxs, err := a.metaAndCtxs(ctx)
	if err != nil {
		return nil, AdapterReport{}, err
	}
	want := toSet(symbols)

	n := len(meta.Universe)
	if len(ctxs) < n {
		n = len(ctxs)
	}

	out := make([]model.ContractSnapshot, 0, n)
	for i := 0; i < n; i++ {
		name := meta.Universe[i].Name
		if len(want) > 0 && !want[name] {
			continue
		}
		c := ctxs[i]
		out = append(out, buildSnapshot(snapshotParams{
			exchange:             a.Name(),
			symbol:               name,
			baseAsset:            model.NormalizeBaseAsset(name),
			quoteAsset:           "USD",
			fundingRate:          decimalOrZero(c.Funding),
			fundingIntervalHours: 1,
			markPrice:            decimalPtrOrNil(c.MarkPx),
			indexPrice:           decimalPtrOrNil(c.OraclePx),
			openInterest:         decimalOrZero(c.OpenInterest),
			openInterestUnit:     model.OpenInterestBase,
			contractType:         model.ContractUSDM,
			timestamp:            time.Now().UTC(),
		}))
	}
	return out, AdapterReport{Failed: missingSymbols(symbols, out)}, nil
}

type hyperliquidFundingHistoryEntry struct {
	Coin        string `json:"coin"`
	FundingRate string `json:"fundingRate"`
	Time        int64  `json:"time"`
}

func (a *hyperliquidAdapter) FetchHistorical(ctx context.Context, symbol string, start, end time.Time) ([]model.FundingPoint, error) {
	var entries []hyperliquidFundingHistoryEntry
	body := map[string]interface{}{
		"type":      "fundingHistory",
		"coin":      symbol,
		"startTime": start.UnixMilli(),
		"endTime":   end.UnixMilli(),
	}
	if err := a.post(ctx, body, &entries); err != nil {
		return nil, err
	}

	points := make([]model.FundingPoint, 0, len(entries))
	for _, e := range entries {
		points = append(points, model.FundingPoint{
			Exchange:    a.Name(),
			Symbol:      e.Coin,
			FundingTime: time.UnixMilli(e.Time),
			FundingRate: decimalOrZero(e.FundingRate),
		})
	}
	return resolveHistoricalIntervals(points), nil
}

var errShapeMismatch = shapeMismatchError{}

type shapeMismatchError struct{}

func (shapeMismatchError) Error() string { return "unexpected metaAndAssetCtxs response shape" }
