package stats

import (
	"context"
	"math"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fundingobservatory/observatory/internal/config"
	"github.com/fundingobservatory/observatory/internal/model"
	"github.com/fundingobservatory/observatory/internal/obserr"
)

// zThreshold is the |z| >= 2 boundary between the active and stable refresh
// zones (spec.md §4.7).
const zThreshold = 2.0

// store is the subset of *storage.Store the engine depends on, narrowed to
// ease testing with a fake.
type store interface {
	Grid(ctx context.Context, baseAsset string) ([]model.ContractSnapshot, error)
	HistoricalBySymbol(ctx context.Context, exchange, symbol string, limit int) ([]model.FundingPoint, error)
	UpsertStats(ctx context.Context, stats model.ContractStats) error
}

// defaultWindowDays is spec.md §4.7's 30-day rolling window.
const defaultWindowDays = 30

// historyLimitForWindow bounds how many historical rows are pulled per
// refresh for a given window: the shortest valid funding interval is 1 hour
// (model.ValidFundingIntervals), so windowDays*24 rows covers the full
// window even for the most frequently-settling contract.
func historyLimitForWindow(windowDays int) int {
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}
	return windowDays * 24
}

type contractState struct {
	lastRefreshed time.Time
	lastZ         *float64
	inFlight      bool
}

// Engine refreshes every active contract's rolling statistics on a cadence
// that depends on its current zone, using a bounded worker pool so a full
// population refresh stays cheap (spec.md §4.7: "target full-population
// refresh <= 1s on the reference fleet").
type Engine struct {
	store store
	cfg   config.StatsConfig

	activeInterval time.Duration
	stableInterval time.Duration
	workers        int
	historyLimit   int

	mu    sync.Mutex
	state map[string]*contractState
}

func New(s store, cfg config.StatsConfig) *Engine {
	workers := cfg.WorkerPoolSize
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	active := time.Duration(cfg.ActiveRefreshSec) * time.Second
	if active <= 0 {
		active = 30 * time.Second
	}
	stable := time.Duration(cfg.StableRefreshSec) * time.Second
	if stable <= 0 {
		stable = 2 * time.Minute
	}
	return &Engine{
		store:          s,
		cfg:            cfg,
		activeInterval: active,
		stableInterval: stable,
		workers:        workers,
		historyLimit:   historyLimitForWindow(cfg.WindowDays),
		state:          make(map[string]*contractState),
	}
}

func key(exchange, symbol string) string { return exchange + ":" + symbol }

// zoneInterval returns how often a contract with the given last-known
// z-score should be refreshed.
func (e *Engine) zoneInterval(lastZ *float64) time.Duration {
	if lastZ != nil && math.Abs(*lastZ) >= zThreshold {
		return e.activeInterval
	}
	return e.stableInterval
}

// due reports whether a contract's refresh cadence has elapsed, marking it
// in-flight (and thus not re-dispatched by a concurrent caller) as a side
// effect when it returns true.
func (e *Engine) due(keyStr string, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.state[keyStr]
	if !ok {
		st = &contractState{}
		e.state[keyStr] = st
	}
	if st.inFlight {
		return false
	}
	if !st.lastRefreshed.IsZero() && now.Sub(st.lastRefreshed) < e.zoneInterval(st.lastZ) {
		return false
	}
	st.inFlight = true
	return true
}

func (e *Engine) markDone(keyStr string, z *float64, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.state[keyStr]
	if !ok {
		st = &contractState{}
		e.state[keyStr] = st
	}
	st.inFlight = false
	st.lastRefreshed = at
	st.lastZ = z
}

// RefreshOne recomputes and upserts one contract's statistics, regardless of
// zone cadence. Used for an initial population pass and by RefreshDue for
// each contract that is due.
func (e *Engine) RefreshOne(ctx context.Context, exchange, symbol string) error {
	points, err := e.store.HistoricalBySymbol(ctx, exchange, symbol, e.historyLimit)
	if err != nil {
		return obserr.New(obserr.KindStorage, "stats.RefreshOne", err)
	}
	computed := Compute(exchange, symbol, points, time.Now())
	if err := e.store.UpsertStats(ctx, computed); err != nil {
		return err
	}
	e.markDone(key(exchange, symbol), computed.CurrentZScore, computed.LastUpdated)
	return nil
}

// RefreshDue scans every active contract and refreshes those whose zone
// cadence has elapsed, fanned out across a worker pool bounded to
// cfg.WorkerPoolSize (spec.md §5: "bounded worker pool sized to available
// cores"). A contract already mid-refresh is skipped, which is what keeps
// "no two concurrent workers write the same contract's stats row" true
// (spec.md §5) even if RefreshDue is called again before the prior call's
// in-flight work has finished.
func (e *Engine) RefreshDue(ctx context.Context) error {
	contracts, err := e.store.Grid(ctx, "")
	if err != nil {
		return obserr.New(obserr.KindStorage, "stats.RefreshDue", err)
	}

	now := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, c := range contracts {
		c := c
		k := key(c.Exchange, c.Symbol)
		if !e.due(k, now) {
			continue
		}
		g.Go(func() error {
			return e.RefreshOne(gctx, c.Exchange, c.Symbol)
		})
	}
	return g.Wait()
}

// Run refreshes due contracts on tick until ctx is cancelled. tick should be
// shorter than the active-zone interval so active contracts are actually
// caught on their cadence.
func (e *Engine) Run(ctx context.Context, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.RefreshDue(ctx); err != nil && ctx.Err() == nil {
				return err
			}
		}
	}
}
