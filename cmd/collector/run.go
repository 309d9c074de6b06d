package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fundingobservatory/observatory/internal/api"
	"github.com/fundingobservatory/observatory/internal/arbitrage"
	"github.com/fundingobservatory/observatory/internal/backfill"
	"github.com/fundingobservatory/observatory/internal/cache"
	"github.com/fundingobservatory/observatory/internal/config"
	"github.com/fundingobservatory/observatory/internal/exchanges"
	"github.com/fundingobservatory/observatory/internal/metrics"
	"github.com/fundingobservatory/observatory/internal/ratelimit"
	"github.com/fundingobservatory/observatory/internal/scheduler"
	"github.com/fundingobservatory/observatory/internal/stats"
	"github.com/fundingobservatory/observatory/internal/storage"
)

// arbitrageScanInterval is how often the arbitrage scanner re-joins the live
// grid in live mode; the scanner itself has no notion of cadence (spec.md
// §4.8 describes what it computes, not how often).
const arbitrageScanInterval = time.Minute

// configError marks a startup failure as spec.md §6's exit code 1 ("config
// error"), distinguishing it from an unrecoverable runtime failure (exit 2).
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func newConfigError(format string, args ...interface{}) *configError {
	return &configError{err: fmt.Errorf(format, args...)}
}

func run(ctx context.Context, opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	if cfg.Collection.LogLevel != "" {
		level, err := zerolog.ParseLevel(cfg.Collection.LogLevel)
		if err != nil {
			return newConfigError("collector: invalid collection.log_level %q: %v", cfg.Collection.LogLevel, err)
		}
		zerolog.SetGlobalLevel(level)
	}

	store, err := storage.Open(cfg.Database.ResolvedDSN(), 10*time.Second)
	if err != nil {
		return fmt.Errorf("connect storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate storage: %w", err)
	}

	limiters := ratelimit.NewRegistry()
	registry, err := exchanges.BuildRegistry(cfg, limiters)
	if err != nil {
		return &configError{err: err}
	}

	switch cfg.Collection.Mode {
	case "live":
		return runLive(ctx, cfg, registry, store)
	case "historical":
		return runHistorical(ctx, cfg, registry, store)
	default:
		return newConfigError("collector: unknown mode %q (must be live|historical)", cfg.Collection.Mode)
	}
}

// loadConfig reads cfg.configPath and layers the CLI flag overrides on top,
// per spec.md §6's "CLI flags override the configuration file" contract.
func loadConfig(opts options) (*config.Config, error) {
	if opts.parallel && opts.sequential {
		return nil, newConfigError("collector: --parallel and --sequential are mutually exclusive")
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, &configError{err: err}
	}

	if opts.mode != "" {
		cfg.Collection.Mode = opts.mode
	}
	if opts.intervalS > 0 {
		cfg.Collection.IntervalSec = opts.intervalS
	}
	if opts.durationS > 0 {
		cfg.Collection.DurationSec = opts.durationS
	}
	if opts.exchanges != "" {
		cfg.Collection.EnabledVenues = splitCSV(opts.exchanges)
		cfg.Historical.EnabledVenues = cfg.Collection.EnabledVenues
	}
	if opts.parallel {
		cfg.Collection.Dispatch = "parallel"
	}
	if opts.sequential {
		cfg.Collection.Dispatch = "sequential_staggered"
	}

	if cfg.Collection.Mode != "live" && cfg.Collection.Mode != "historical" {
		return nil, newConfigError("collector: mode must be live or historical, got %q", cfg.Collection.Mode)
	}

	return cfg, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// runLive wires the scheduler, statistics engine, arbitrage scanner and
// query API together and runs them until ctx is cancelled or the configured
// duration elapses (spec.md §4.3, §6).
func runLive(ctx context.Context, cfg *config.Config, registry *exchanges.Registry, store *storage.Store) error {
	reg := metrics.NewRegistry()

	c, err := cache.New(cache.Config{
		RedisAddr: cfg.Cache.Redis.Addr,
		RedisDB:   cfg.Cache.Redis.DB,
		LRUSize:   cfg.Cache.LRUSize,
		TTL: map[cache.Class]time.Duration{
			cache.ClassGrid:       cfg.Cache.GridTTL(),
			cache.ClassStats:      cfg.Cache.StatsTTL(),
			cache.ClassHistorical: cfg.Cache.HistoricalTTL(),
			cache.ClassArbitrage:  cfg.Cache.ArbitrageTTL(),
		},
	})
	if err != nil {
		return fmt.Errorf("construct cache: %w", err)
	}

	sched := scheduler.New(registry, store, cfg.Collection, reg)
	statsEngine := stats.New(store, cfg.Stats)
	scanner := arbitrage.New(store, cfg.Arbitrage)

	apiServer := api.New(cfg.API, api.Deps{
		Store:      store,
		Cache:      c,
		Metrics:    reg,
		StatusPath: cfg.Historical.StatusPath,
		LockPath:   cfg.Historical.LockPath,
		MinAPR:     cfg.Arbitrage.MinAPRSpread,
	})

	errCh := make(chan error, 4)

	// sched.Run returns by itself once the configured duration elapses;
	// stopping runCtx then winds the other components down as well.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	go func() {
		err := sched.Run(runCtx)
		stop()
		errCh <- err
	}()
	go func() { errCh <- statsEngine.Run(runCtx, time.Duration(cfg.Stats.ActiveRefreshSec)*time.Second) }()
	go runArbitrageLoop(runCtx, scanner, reg, errCh)
	go func() { errCh <- apiServer.ListenAndServe() }()

	<-runCtx.Done()
	log.Info().Msg("collector: run finished or shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("collector: api shutdown did not complete cleanly")
	}

	return drainErrors(errCh, 4)
}

// runArbitrageLoop re-scans the live grid for arbitrage candidates on a
// fixed cadence; a scan failure is logged and does not stop the loop, since
// one failed scan must not take down the rest of the collector (the same
// "per-component failure is contained" policy as the scheduler and the
// backfill runner).
func runArbitrageLoop(ctx context.Context, scanner *arbitrage.Scanner, sink *metrics.Registry, errCh chan<- error) {
	ticker := time.NewTicker(arbitrageScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		case <-ticker.C:
			kept, err := scanner.Scan(ctx)
			if err != nil {
				log.Error().Err(err).Msg("arbitrage scan failed")
				continue
			}
			sink.ObserveArbitrageScan(len(kept))
		}
	}
}

// drainErrors collects the first non-cancellation error from n background
// goroutines started above; a plain context.Canceled from every one of them
// is the expected outcome of a clean shutdown, not a failure.
func drainErrors(errCh <-chan error, n int) error {
	for i := 0; i < n; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

// runHistorical runs exactly one backfill job over cfg.Historical's window
// and returns (spec.md §4.4); it does not serve the API.
func runHistorical(ctx context.Context, cfg *config.Config, registry *exchanges.Registry, store *storage.Store) error {
	runner := backfill.New(registry, store, cfg.Historical)

	status, err := runner.Run(ctx)
	if err != nil {
		var locked *backfill.ErrLocked
		if errors.As(err, &locked) {
			return newConfigError("collector: backfill already in progress: %w", err)
		}
		return fmt.Errorf("backfill run: %w", err)
	}

	log.Info().
		Str("job_id", status.JobID).
		Str("state", status.State).
		Int("contracts_done", status.ContractsDone).
		Int("contracts_total", status.ContractsTotal).
		Int("gaps_filled", status.GapsFilled).
		Msg("backfill complete")

	if len(status.Errors) > 0 {
		return fmt.Errorf("backfill completed with %d per-symbol errors", len(status.Errors))
	}
	return nil
}
