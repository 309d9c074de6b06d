package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fundingobservatory/observatory/internal/backfill"
	"github.com/fundingobservatory/observatory/internal/cache"
	"github.com/fundingobservatory/observatory/internal/metrics"
	"github.com/fundingobservatory/observatory/internal/model"
	"github.com/fundingobservatory/observatory/internal/obserr"
)

// Store is the subset of *storage.Store every handler depends on.
type Store interface {
	Grid(ctx context.Context, baseAsset string) ([]model.ContractSnapshot, error)
	HistoricalBySymbol(ctx context.Context, exchange, symbol string, limit int) ([]model.FundingPoint, error)
	HistoricalByAsset(ctx context.Context, baseAsset string, from, to time.Time, limit int) ([]model.FundingPoint, error)
	ContractsWithStats(ctx context.Context) ([]model.ContractStats, error)
	RecentSpreads(ctx context.Context, since time.Time, minAPRSpread float64) ([]model.Spread, error)
	Ping(ctx context.Context) error
}

// Handlers holds the query layer's dependencies (spec.md §6 endpoints).
type Handlers struct {
	store      Store
	cache      *cache.Cache
	metrics    metricsSink
	statusPath string
	lockPath   string
	minAPR     float64
}

// metricsSink is the narrow slice of *metrics.Registry the handlers use;
// kept local so handler tests don't need a real Prometheus registry.
type metricsSink interface {
	Handler() http.Handler
	RecordCacheHit(class string)
	RecordCacheMiss(class string)
	Snapshot() metrics.Snapshot
}

// NewHandlers builds a Handlers from Deps.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		store:      deps.Store,
		cache:      deps.Cache,
		metrics:    deps.Metrics,
		statusPath: deps.StatusPath,
		lockPath:   deps.LockPath,
		minAPR:     deps.MinAPR,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("api: encode response failed")
	}
}

// writeError renders the uniform error envelope of spec.md §6:
// `{ error: { kind, message, detail? } }`.
func writeError(w http.ResponseWriter, r *http.Request, status int, kind, message, detail string) {
	writeJSON(w, status, ErrorEnvelope{Error: ErrorBody{Kind: kind, Message: message, Detail: detail}})
}

// writeStoreError maps an obserr.Kind-carrying error to an HTTP status and
// the uniform error envelope.
func writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := obserr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case obserr.KindValidation:
		status = http.StatusBadRequest
	case obserr.KindCancelled:
		status = http.StatusRequestTimeout
	case obserr.KindStorage, obserr.KindCache:
		status = http.StatusServiceUnavailable
	}
	log.Error().Err(err).Str("op", op).Msg("api: handler failed")
	writeError(w, r, status, string(kind), err.Error(), op)
}

// backfillStatusReader is a package-level seam so tests can stub
// backfill.ReadStatus without a real filesystem fixture for every test.
var backfillStatusReader = backfill.ReadStatus
