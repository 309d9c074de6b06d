// Package exchanges implements the ~13 venue adapters of spec.md §4.2,
// expressed as values implementing a single capability interface rather than
// the teacher's ExchangeProvider class hierarchy (spec.md §9 "Adapter
// polymorphism": "the systems-language rewrite expresses adapters as values
// implementing a single capability set {fetch, fetch_historical,
// list_contracts, name}"), grounded on the shape of
// internal/provider/exchange.go's ExchangeProvider interface and the
// per-venue internal/provider/{binance,okx,kraken,coinbase}_provider.go
// implementations.
package exchanges

import (
	"context"
	"time"

	"github.com/fundingobservatory/observatory/internal/model"
)

// ContractMeta is one venue-listed contract's identity plus the funding
// cadence and extra fields backfill planning consults (spec.md §4.2:
// "list_contracts() returns list<(symbol, funding_interval_hours,
// metadata)>"), rather than collapsing listing to a bare symbol string.
type ContractMeta struct {
	Symbol               string
	FundingIntervalHours int
	Metadata             map[string]string
}

// AdapterReport enumerates the per-symbol outcome of one Fetch call (spec.md
// §4.2: "fetch() returns partial results with the failing items listed in
// the report"), so a caller can tell which symbols within a venue's batch
// failed instead of the whole batch collapsing to a single error or a
// silently shrunk result slice.
type AdapterReport struct {
	// Failed lists symbols Fetch could not produce a snapshot for.
	Failed []string
	// Retryable is the subset of Failed that failed for a reason a retry on
	// the next cycle could plausibly resolve (a single request timing out,
	// as opposed to a venue no longer listing the symbol at all).
	Retryable []string
}

// Adapter is the capability set every venue implements. The scheduler
// depends only on this interface (spec.md §9).
type Adapter interface {
	// Name returns the lowercase venue identifier used as the exchange
	// column and as the ratelimit/httpclient registry key.
	Name() string

	// ListContracts enumerates the venue's currently listed perpetual
	// contracts (spec.md §4.3 step 1).
	ListContracts(ctx context.Context) ([]ContractMeta, error)

	// Fetch retrieves one polling cycle's worth of latest snapshots for the
	// given symbols (empty slice means "all listed contracts"), along with a
	// report of any symbols it could not fetch.
	Fetch(ctx context.Context, symbols []string) ([]model.ContractSnapshot, AdapterReport, error)

	// FetchHistorical retrieves the funding-rate time series for symbol over
	// [start, end), used by the backfill runner (spec.md §4.4).
	FetchHistorical(ctx context.Context, symbol string, start, end time.Time) ([]model.FundingPoint, error)
}
