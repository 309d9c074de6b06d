// Package metrics implements the Prometheus-backed observability surface of
// spec.md §4.3 step 5 and §4.1 ("rate limiter observability: acquires,
// blocks, penalties, current tokens"): collection-cycle duration, per-adapter
// duration/record/failure counts, cache hit ratio, and per-exchange rate
// limiter state.
//
// Grounded on the teacher's internal/interfaces/http/metrics.go
// MetricsRegistry: HistogramVec/CounterVec/Gauge fields constructed once and
// registered with prometheus.MustRegister, a StartTimer/Stop pattern for
// duration metrics, and MetricsHandler() returning promhttp.Handler().
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/fundingobservatory/observatory/internal/exchanges"
	"github.com/fundingobservatory/observatory/internal/ratelimit"
)

// Registry holds every Prometheus metric the observatory exposes. Each
// Registry owns its own prometheus.Registerer rather than registering
// against the global DefaultRegisterer, so constructing more than one (one
// per test, one per process) never panics on a duplicate-registration
// collision.
type Registry struct {
	reg *prometheus.Registry

	CycleDuration     prometheus.Histogram
	CycleDurationLast prometheus.Gauge

	AdapterDuration     *prometheus.HistogramVec
	AdapterDurationLast *prometheus.GaugeVec
	AdapterRecords      *prometheus.CounterVec
	AdapterFailures     *prometheus.CounterVec
	AdapterSymbolFailures *prometheus.CounterVec

	CacheHitRatio prometheus.Gauge
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec

	RateLimiterTokens    *prometheus.GaugeVec
	RateLimiterAcquires  *prometheus.CounterVec
	RateLimiterBlocks    *prometheus.CounterVec
	RateLimiterPenalties *prometheus.CounterVec

	StatsRefreshDuration *prometheus.HistogramVec
	ArbitrageSpreadsKept prometheus.Gauge
}

// NewRegistry constructs every metric and registers it against the
// Registry's own prometheus.Registry, so several Registries can coexist.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "observatory_collection_cycle_duration_seconds",
			Help:    "Duration of one full live-mode collection cycle across every enabled exchange",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		CycleDurationLast: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "observatory_collection_cycle_duration_last_seconds",
			Help: "Duration of the most recently completed collection cycle",
		}),

		AdapterDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "observatory_adapter_fetch_duration_seconds",
				Help:    "Duration of one exchange adapter's fetch within a collection cycle",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"exchange"},
		),
		AdapterDurationLast: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "observatory_adapter_fetch_duration_last_seconds",
				Help: "Duration of the most recent fetch for an exchange",
			},
			[]string{"exchange"},
		),
		AdapterRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "observatory_adapter_records_total",
				Help: "Total number of contract snapshots fetched per exchange",
			},
			[]string{"exchange"},
		),
		AdapterFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "observatory_adapter_failures_total",
				Help: "Total number of failed adapter fetches per exchange",
			},
			[]string{"exchange"},
		),
		AdapterSymbolFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "observatory_adapter_symbol_failures_total",
				Help: "Total per-symbol fetch failures reported in an adapter's AdapterReport, by exchange and retryability",
			},
			[]string{"exchange", "retryable"},
		),

		CacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "observatory_cache_hit_ratio",
			Help: "Current cache hit ratio across every endpoint class (0.0 to 1.0)",
		}),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "observatory_cache_hits_total",
				Help: "Total cache hits by endpoint class",
			},
			[]string{"class"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "observatory_cache_misses_total",
				Help: "Total cache misses by endpoint class",
			},
			[]string{"class"},
		),

		RateLimiterTokens: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "observatory_rate_limiter_tokens",
				Help: "Tokens currently available in an exchange's rate limiter bucket",
			},
			[]string{"exchange"},
		),
		RateLimiterAcquires: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "observatory_rate_limiter_acquires_total",
				Help: "Total successful token acquisitions by exchange",
			},
			[]string{"exchange"},
		),
		RateLimiterBlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "observatory_rate_limiter_blocks_total",
				Help: "Total times a caller had to wait for a token by exchange",
			},
			[]string{"exchange"},
		),
		RateLimiterPenalties: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "observatory_rate_limiter_penalties_total",
				Help: "Total 429-triggered penalty boxes entered by exchange",
			},
			[]string{"exchange"},
		),

		StatsRefreshDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "observatory_stats_refresh_duration_seconds",
				Help:    "Duration of one contract's rolling-window stats recompute",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
			},
			[]string{"exchange"},
		),
		ArbitrageSpreadsKept: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "observatory_arbitrage_spreads_kept",
			Help: "Number of arbitrage candidates surviving the minimum APR spread filter in the last scan",
		}),
	}

	r.reg.MustRegister(
		r.CycleDuration, r.CycleDurationLast,
		r.AdapterDuration, r.AdapterDurationLast, r.AdapterRecords, r.AdapterFailures, r.AdapterSymbolFailures,
		r.CacheHitRatio, r.CacheHits, r.CacheMisses,
		r.RateLimiterTokens, r.RateLimiterAcquires, r.RateLimiterBlocks, r.RateLimiterPenalties,
		r.StatsRefreshDuration, r.ArbitrageSpreadsKept,
	)

	return r
}

// ObserveCycle implements scheduler.Sink.
func (r *Registry) ObserveCycle(d time.Duration) {
	r.CycleDuration.Observe(d.Seconds())
	r.CycleDurationLast.Set(d.Seconds())
}

// ObserveAdapter implements scheduler.Sink.
func (r *Registry) ObserveAdapter(exchange string, d time.Duration, records, failures int) {
	r.AdapterDuration.WithLabelValues(exchange).Observe(d.Seconds())
	r.AdapterDurationLast.WithLabelValues(exchange).Set(d.Seconds())
	r.AdapterRecords.WithLabelValues(exchange).Add(float64(records))
	if failures > 0 {
		r.AdapterFailures.WithLabelValues(exchange).Add(float64(failures))
	}
}

// ObserveAdapterReport implements scheduler.Sink, recording the per-symbol
// failed/retryable counts an adapter's Fetch call surfaced.
func (r *Registry) ObserveAdapterReport(exchange string, report exchanges.AdapterReport) {
	retryable := make(map[string]bool, len(report.Retryable))
	for _, s := range report.Retryable {
		retryable[s] = true
	}
	retryableCount := 0
	for _, s := range report.Failed {
		if retryable[s] {
			retryableCount++
		}
	}
	if n := len(report.Failed) - retryableCount; n > 0 {
		r.AdapterSymbolFailures.WithLabelValues(exchange, "false").Add(float64(n))
	}
	if retryableCount > 0 {
		r.AdapterSymbolFailures.WithLabelValues(exchange, "true").Add(float64(retryableCount))
	}
}

// RecordCacheHit records a cache hit for an endpoint class and refreshes the
// aggregate hit ratio gauge.
func (r *Registry) RecordCacheHit(class string) {
	r.CacheHits.WithLabelValues(class).Inc()
	r.refreshCacheHitRatio()
}

// RecordCacheMiss records a cache miss for an endpoint class and refreshes
// the aggregate hit ratio gauge.
func (r *Registry) RecordCacheMiss(class string) {
	r.CacheMisses.WithLabelValues(class).Inc()
	r.refreshCacheHitRatio()
}

func (r *Registry) refreshCacheHitRatio() {
	hits := sumCounterVec(r.CacheHits)
	misses := sumCounterVec(r.CacheMisses)
	total := hits + misses
	if total == 0 {
		r.CacheHitRatio.Set(0)
		return
	}
	r.CacheHitRatio.Set(hits / total)
}

func sumCounterVec(cv *prometheus.CounterVec) float64 {
	metricCh := make(chan prometheus.Metric, 64)
	go func() {
		cv.Collect(metricCh)
		close(metricCh)
	}()

	var total float64
	for metric := range metricCh {
		var m dto.Metric
		if err := metric.Write(&m); err == nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

// ObserveStatsRefresh records the duration of one contract's stats recompute.
func (r *Registry) ObserveStatsRefresh(exchange string, d time.Duration) {
	r.StatsRefreshDuration.WithLabelValues(exchange).Observe(d.Seconds())
}

// ObserveArbitrageScan records how many candidates survived the last scan.
func (r *Registry) ObserveArbitrageScan(kept int) {
	r.ArbitrageSpreadsKept.Set(float64(kept))
}

// ObserveRateLimiters snapshots every registered exchange's limiter Stats
// into the corresponding gauges/counters, called once per collection cycle
// (spec.md §4.1: "exposed via the metrics endpoint").
func (r *Registry) ObserveRateLimiters(reg *ratelimit.Registry) {
	for exchange, stats := range reg.All() {
		r.RateLimiterTokens.WithLabelValues(exchange).Set(stats.Tokens)
		r.setCounterTotal(r.RateLimiterAcquires, exchange, float64(stats.Acquires))
		r.setCounterTotal(r.RateLimiterBlocks, exchange, float64(stats.Blocks))
		r.setCounterTotal(r.RateLimiterPenalties, exchange, float64(stats.Penalties))
	}
}

// setCounterTotal reconciles a CounterVec's value for one label set up to an
// absolute total, since Limiter.Stats reports lifetime counters rather than
// deltas and prometheus.Counter only exposes Add/Inc.
func (r *Registry) setCounterTotal(cv *prometheus.CounterVec, exchange string, total float64) {
	counter := cv.WithLabelValues(exchange)
	current := counterValue(counter)
	if delta := total - current; delta > 0 {
		counter.Add(delta)
	}
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// Handler exposes the registered metrics in Prometheus text exposition
// format for the /metrics endpoint (spec.md §6).
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Snapshot is the last-cycle view `GET /api/health/performance` renders
// (spec.md §6).
type Snapshot struct {
	LastCycleDurationSeconds float64
	AdapterDurationsSeconds  map[string]float64
	CacheHitRatio            float64
}

// Snapshot reads the current gauge values back out of the registry.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		LastCycleDurationSeconds: gaugeValue(r.CycleDurationLast),
		AdapterDurationsSeconds:  collectGaugeVecByLabel(r.AdapterDurationLast, "exchange"),
		CacheHitRatio:            gaugeValue(r.CacheHitRatio),
	}
}

func gaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

// collectGaugeVecByLabel reads every time series in gv back into a map keyed
// by its labelName value, for rendering per-exchange snapshots over HTTP.
func collectGaugeVecByLabel(gv *prometheus.GaugeVec, labelName string) map[string]float64 {
	metricCh := make(chan prometheus.Metric, 64)
	go func() {
		gv.Collect(metricCh)
		close(metricCh)
	}()

	out := make(map[string]float64)
	for metric := range metricCh {
		var m dto.Metric
		if err := metric.Write(&m); err != nil {
			continue
		}
		for _, lp := range m.GetLabel() {
			if lp.GetName() == labelName {
				out[lp.GetValue()] = m.GetGauge().GetValue()
			}
		}
	}
	return out
}
