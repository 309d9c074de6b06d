package exchanges

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundingobservatory/observatory/internal/httpclient"
	"github.com/fundingobservatory/observatory/internal/model"
	"github.com/fundingobservatory/observatory/internal/obserr"
)

// get issues a GET request through the shared httpclient.Client and decodes
// the JSON response body into out.
func get(ctx context.Context, c *httpclient.Client, op, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return obserr.New(obserr.KindInternal, op, err)
	}
	req.Header.Set("Accept", "application/json")

	body, _, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return obserr.New(obserr.KindParse, op, fmt.Errorf("%w: %s", err, truncate(body, 200)))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// decimalOrZero parses s as a decimal, returning decimal.Zero on empty or
// malformed input rather than erroring the whole snapshot over one field —
// venues occasionally report "" for mark_price on delisted contracts.
func decimalOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// decimalFromFloat converts a float64-typed wire field to decimal.Decimal.
// Used by venues (MEXC, Vertex) whose JSON encodes funding rate as a JSON
// number rather than a string; float64 already lost precision on the wire,
// so this is strictly no worse than the source data.
func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// decimalPtrOrNil is like decimalOrZero but returns nil for the optional
// mark/index price fields when absent.
func decimalPtrOrNil(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

// snapshotParams collects the fields common to every venue's snapshot
// construction so each adapter's fetch loop is a short struct literal rather
// than a 15-argument constructor call.
type snapshotParams struct {
	exchange             string
	symbol               string
	baseAsset            string
	quoteAsset           string
	fundingRate          decimal.Decimal
	fundingIntervalHours int
	markPrice            *decimal.Decimal
	indexPrice           *decimal.Decimal
	openInterest         decimal.Decimal
	openInterestUnit     model.OpenInterestUnit
	contractType         model.ContractType
	timestamp            time.Time
}

// resolveHistoricalIntervals infers one symbol's funding settlement cadence
// from its historical series via model.ValidateHistoricalGaps and stamps
// every point with the resolved FundingIntervalHours, in place of a venue
// constant. spec.md §4.2 Scenario 3 requires refusing the whole series
// rather than emitting an unresolved or inconsistent cadence, so a series
// too short to have a gap, or whose gaps disagree, returns nil.
func resolveHistoricalIntervals(points []model.FundingPoint) []model.FundingPoint {
	if len(points) < 2 {
		return nil
	}
	times := make([]time.Time, len(points))
	for i, p := range points {
		times[i] = p.FundingTime
	}
	hours, ok := model.ValidateHistoricalGaps(times)
	if !ok {
		return nil
	}
	for i := range points {
		points[i].FundingIntervalHours = hours
	}
	return points
}

// missingSymbols returns the subset of requested not present among got's
// symbols, letting a bulk-fetch adapter (one request covering every listed
// contract) still report which requested symbols never showed up in the
// response (spec.md §4.2: "partial results with the failing items listed in
// the report"). An empty requested slice means "fetch everything" and is
// never reported as missing.
func missingSymbols(requested []string, got []model.ContractSnapshot) []string {
	if len(requested) == 0 {
		return nil
	}
	present := make(map[string]bool, len(got))
	for _, sn := range got {
		present[sn.Symbol] = true
	}
	var missing []string
	for _, s := range requested {
		if !present[s] {
			missing = append(missing, s)
		}
	}
	return missing
}

func buildSnapshot(p snapshotParams) model.ContractSnapshot {
	return model.ContractSnapshot{
		Exchange:             p.exchange,
		Symbol:               p.symbol,
		BaseAsset:            p.baseAsset,
		QuoteAsset:           p.quoteAsset,
		FundingRate:          p.fundingRate,
		FundingIntervalHours: p.fundingIntervalHours,
		APR:                  model.APRFromFundingRate(p.fundingRate, p.fundingIntervalHours),
		MarkPrice:            p.markPrice,
		IndexPrice:           p.indexPrice,
		OpenInterest:         p.openInterest,
		OpenInterestUnit:     p.openInterestUnit,
		ContractType:         p.contractType,
		MarketType:           model.MarketPerpetual,
		Timestamp:            p.timestamp,
		Status:               model.ContractActive,
	}
}
