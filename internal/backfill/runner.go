package backfill

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fundingobservatory/observatory/internal/config"
	"github.com/fundingobservatory/observatory/internal/exchanges"
	"github.com/fundingobservatory/observatory/internal/model"
)

// store is the subset of *storage.Store the backfill runner depends on.
type store interface {
	FundingTimesInRange(ctx context.Context, exchange, symbol string, fromUnix, toUnix int64) ([]int64, error)
	InsertFundingPoints(ctx context.Context, points []model.FundingPoint) error
}

// registry is the subset of *exchanges.Registry the backfill runner depends on.
type registry interface {
	Enabled() []exchanges.Adapter
}

// Runner executes one historical backfill job over cfg's (days, exchanges)
// window (spec.md §4.4).
type Runner struct {
	registry registry
	store    store
	cfg      config.HistoricalConfig
}

func New(reg registry, st store, cfg config.HistoricalConfig) *Runner {
	return &Runner{registry: reg, store: st, cfg: cfg}
}

// Run executes a full backfill job: enumerate contracts, gap-fill each
// (exchange, symbol) under a per-exchange concurrency cap, flush progress on
// a regular cadence, and release the lock on return. Concurrent Run calls
// (this process or another) are rejected with *ErrLocked unless the held
// lock is older than cfg.LockTTL().
func (r *Runner) Run(ctx context.Context) (Status, error) {
	jobID := uuid.New().String()

	release, err := acquireLock(r.cfg.LockPath, r.cfg.LockTTL(), jobID)
	if err != nil {
		return Status{}, err
	}
	defer release()

	adapters := r.enabledAdapters()

	st := Status{
		JobID:     jobID,
		State:     "in_progress",
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	var mu sync.Mutex
	flush := func() {
		mu.Lock()
		snapshot := st
		mu.Unlock()
		snapshot.UpdatedAt = time.Now()
		if err := writeStatus(r.cfg.StatusPath, snapshot); err != nil {
			log.Error().Err(err).Msg("backfill: write status failed")
		}
	}

	stopTicker := make(chan struct{})
	var tickerWG sync.WaitGroup
	tickerWG.Add(1)
	go func() {
		defer tickerWG.Done()
		t := time.NewTicker(r.cfg.ProgressFlush())
		defer t.Stop()
		for {
			select {
			case <-t.C:
				flush()
			case <-stopTicker:
				return
			}
		}
	}()

	end := time.Now()
	start := end.Add(-r.cfg.Window())

	for _, a := range adapters {
		mu.Lock()
		st.CurrentExchange = a.Name()
		mu.Unlock()
		flush()

		contracts, err := a.ListContracts(ctx)
		if err != nil {
			mu.Lock()
			st.Errors = append(st.Errors, a.Name()+": list_contracts: "+err.Error())
			mu.Unlock()
			continue
		}
		symbols := make([]string, len(contracts))
		for i, c := range contracts {
			symbols[i] = c.Symbol
		}

		mu.Lock()
		st.ContractsTotal += len(symbols)
		mu.Unlock()

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.PerExchangeLimit)

		for _, symbol := range symbols {
			symbol := symbol
			g.Go(func() error {
				gaps, incomplete, err := r.fillSymbol(gctx, a, symbol, start, end)

				mu.Lock()
				defer mu.Unlock()
				st.ContractsDone++
				st.GapsFilled += gaps
				if incomplete {
					st.IncompleteContracts = append(st.IncompleteContracts, a.Name()+":"+symbol)
				}
				if err != nil {
					st.Errors = append(st.Errors, a.Name()+":"+symbol+": "+err.Error())
				}
				// Per-symbol failure never aborts the job (spec.md §4.4:
				// "after exhaustion the symbol is recorded ... and the
				// overall job continues").
				return nil
			})
		}
		_ = g.Wait()
		flush()
	}

	close(stopTicker)
	tickerWG.Wait()

	mu.Lock()
	st.State = "complete"
	st.Progress = 1.0
	st.UpdatedAt = time.Now()
	final := st
	mu.Unlock()

	if err := writeStatus(r.cfg.StatusPath, final); err != nil {
		return final, err
	}
	return final, nil
}

// fillSymbol retries fetch_historical + insert for one (exchange, symbol)
// up to cfg.MaxRetries times with exponential backoff, returning the number
// of funding_times newly persisted and whether the symbol exhausted its
// retries (spec.md §4.4: "retried with exponential backoff up to
// max_retries; after exhaustion the symbol is recorded in an
// incomplete_contracts list").
func (r *Runner) fillSymbol(ctx context.Context, a exchanges.Adapter, symbol string, start, end time.Time) (gaps int, incomplete bool, err error) {
	backoff := r.cfg.BaseBackoff()
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, true, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if max := r.cfg.MaxBackoff(); backoff > max {
				backoff = max
			}
		}

		n, fetchErr := r.fillSymbolOnce(ctx, a, symbol, start, end)
		if fetchErr == nil {
			return n, false, nil
		}
		err = fetchErr
		log.Warn().Err(err).Str("exchange", a.Name()).Str("symbol", symbol).Int("attempt", attempt).Msg("backfill: fetch_historical failed, retrying")
	}
	return 0, true, err
}

func (r *Runner) fillSymbolOnce(ctx context.Context, a exchanges.Adapter, symbol string, start, end time.Time) (int, error) {
	points, err := a.FetchHistorical(ctx, symbol, start, end)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, nil
	}

	existing, err := r.store.FundingTimesInRange(ctx, a.Name(), symbol, start.Unix(), end.Unix())
	if err != nil {
		return 0, err
	}
	have := make(map[int64]bool, len(existing))
	for _, t := range existing {
		have[t] = true
	}

	fresh := make([]model.FundingPoint, 0, len(points))
	for _, p := range points {
		if !have[p.FundingTime.Unix()] {
			fresh = append(fresh, p)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	if err := r.store.InsertFundingPoints(ctx, fresh); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

// enabledAdapters returns the registry's adapters restricted to
// cfg.EnabledVenues (all, if unset), sorted by name for deterministic
// progress ordering.
func (r *Runner) enabledAdapters() []exchanges.Adapter {
	all := r.registry.Enabled()
	sort.Slice(all, func(i, j int) bool { return all[i].Name() < all[j].Name() })

	if len(r.cfg.EnabledVenues) == 0 {
		return all
	}
	want := make(map[string]bool, len(r.cfg.EnabledVenues))
	for _, v := range r.cfg.EnabledVenues {
		want[v] = true
	}
	out := all[:0:0]
	for _, a := range all {
		if want[a.Name()] {
			out = append(out, a)
		}
	}
	return out
}
