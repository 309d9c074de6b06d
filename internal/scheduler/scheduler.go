// Package scheduler implements the live-mode collection loop of spec.md
// §4.3: on a fixed tick, run one cycle of every enabled adapter and persist
// the batch, in either parallel or sequential-staggered dispatch, bounded by
// a per-cycle duration cap and an optional overall run-duration cap.
//
// Grounded on the teacher's internal/scheduler job-dispatch idiom (a
// supervisor goroutine per unit of work, errors collected rather than
// aborting the batch) generalized from the teacher's cron-scheduled
// "scan.hot"/"scan.warm" jobs to a tick-driven per-adapter fetch cycle.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fundingobservatory/observatory/internal/config"
	"github.com/fundingobservatory/observatory/internal/exchanges"
	"github.com/fundingobservatory/observatory/internal/model"
)

// store is the subset of *storage.Store the scheduler depends on.
type store interface {
	UpsertSnapshots(ctx context.Context, snapshots []model.ContractSnapshot) error
	MarkInactive(ctx context.Context, exchange, symbol string) error
}

// registry is the subset of *exchanges.Registry the scheduler depends on.
type registry interface {
	Enabled() []exchanges.Adapter
	ReconcileCycle(venue string, fresh []model.ContractSnapshot, markInactive func(symbol string))
}

// Sink receives cycle-level observability events (spec.md §4.3 step 5:
// "cycle duration, per-adapter duration, record counts, failure counts").
// internal/metrics provides the Prometheus-backed implementation; tests use
// a no-op.
type Sink interface {
	ObserveCycle(d time.Duration)
	ObserveAdapter(exchange string, d time.Duration, records, failures int)
	// ObserveAdapterReport surfaces the per-symbol failed/retryable lists a
	// venue's Fetch call returned (spec.md §4.2: "returns partial results
	// with the failing items listed in the report"), so a caller can tell
	// which symbols within a batch failed rather than only a coarse count.
	ObserveAdapterReport(exchange string, report exchanges.AdapterReport)
}

type noopSink struct{}

func (noopSink) ObserveCycle(time.Duration)                                       {}
func (noopSink) ObserveAdapter(string, time.Duration, int, int)                    {}
func (noopSink) ObserveAdapterReport(string, exchanges.AdapterReport)              {}

// Scheduler runs the live collection loop.
type Scheduler struct {
	registry registry
	store    store
	cfg      config.CollectionConfig
	sink     Sink
}

func New(reg registry, st store, cfg config.CollectionConfig, sink Sink) *Scheduler {
	if sink == nil {
		sink = noopSink{}
	}
	return &Scheduler{registry: reg, store: st, cfg: cfg, sink: sink}
}

// Run executes cycles on cfg's tick until ctx is cancelled or the overall
// run-duration elapses (spec.md §4.3: "enforced inside the cycle loop, not
// only at tick boundaries"). The first cycle runs immediately, not after the
// first tick.
func (s *Scheduler) Run(ctx context.Context) error {
	var deadline time.Time
	if d := s.cfg.Duration(); d > 0 {
		deadline = time.Now().Add(d)
	}

	ticker := time.NewTicker(s.cfg.Interval())
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil
		}

		if err := s.runCycle(ctx); err != nil {
			log.Error().Err(err).Msg("collection cycle failed")
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runCycle dispatches one fetch round across every enabled adapter, merges
// the results, and hands the batch to storage as a single UPSERT — a
// per-adapter failure does not prevent the other adapters' records from
// being written (spec.md §4.3 step 3).
func (s *Scheduler) runCycle(ctx context.Context) error {
	cycleCtx := ctx
	var cancel context.CancelFunc
	if maxCycle := s.cfg.MaxCycle(); maxCycle > 0 {
		cycleCtx, cancel = context.WithTimeout(ctx, maxCycle)
		defer cancel()
	}

	start := time.Now()
	adapters := s.registry.Enabled()
	sort.Slice(adapters, func(i, j int) bool { return adapters[i].Name() < adapters[j].Name() })

	byVenue := s.dispatch(cycleCtx, adapters)

	var merged []model.ContractSnapshot
	for _, records := range byVenue {
		merged = append(merged, records...)
	}

	if len(merged) > 0 {
		if err := s.store.UpsertSnapshots(ctx, merged); err != nil {
			return err
		}
	}

	for _, a := range adapters {
		venue := a.Name()
		s.registry.ReconcileCycle(venue, byVenue[venue], func(symbol string) {
			if err := s.store.MarkInactive(ctx, venue, symbol); err != nil {
				log.Error().Err(err).Str("exchange", venue).Str("symbol", symbol).Msg("mark inactive failed")
			}
		})
	}

	s.sink.ObserveCycle(time.Since(start))
	return nil
}

// dispatch runs every adapter's fetch per the configured dispatch mode and
// returns each venue's fetched batch (empty on a failed fetch, logged but
// not fatal to the cycle).
func (s *Scheduler) dispatch(ctx context.Context, adapters []exchanges.Adapter) map[string][]model.ContractSnapshot {
	var mu sync.Mutex
	out := make(map[string][]model.ContractSnapshot, len(adapters))

	var wg sync.WaitGroup
	for i, a := range adapters {
		offset := time.Duration(0)
		if s.cfg.Dispatch == "sequential_staggered" {
			offset = time.Duration(i) * s.cfg.Stagger()
		}

		wg.Add(1)
		go func(a exchanges.Adapter, offset time.Duration) {
			defer wg.Done()

			if offset > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(offset):
				}
			}

			records, report := s.fetchAdapter(ctx, a)
			mu.Lock()
			out[a.Name()] = records
			mu.Unlock()
			s.sink.ObserveAdapterReport(a.Name(), report)
			if len(report.Failed) > 0 {
				log.Warn().Str("exchange", a.Name()).Strs("failed", report.Failed).
					Strs("retryable", report.Retryable).Msg("adapter reported partial failure")
			}
		}(a, offset)
	}
	wg.Wait()

	return out
}

// fetchAdapter runs one adapter's full fetch cycle: list contracts, fetch
// snapshots, and report the outcome to the metrics sink.
func (s *Scheduler) fetchAdapter(ctx context.Context, a exchanges.Adapter) ([]model.ContractSnapshot, exchanges.AdapterReport) {
	start := time.Now()

	contracts, err := a.ListContracts(ctx)
	if err != nil {
		log.Error().Err(err).Str("exchange", a.Name()).Msg("list contracts failed")
		s.sink.ObserveAdapter(a.Name(), time.Since(start), 0, 1)
		return nil, exchanges.AdapterReport{}
	}
	symbols := make([]string, len(contracts))
	for i, c := range contracts {
		symbols[i] = c.Symbol
	}

	records, report, err := a.Fetch(ctx, symbols)
	if err != nil {
		log.Error().Err(err).Str("exchange", a.Name()).Msg("fetch failed")
		s.sink.ObserveAdapter(a.Name(), time.Since(start), len(records), 1)
		return records, report
	}

	s.sink.ObserveAdapter(a.Name(), time.Since(start), len(records), len(report.Failed))
	return records, report
}

// RunOnce executes exactly one cycle, for callers (tests, a manual
// "--once" CLI mode) that don't want the ticking loop.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runCycle(ctx)
}

