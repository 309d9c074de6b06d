package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/fundingobservatory/observatory/internal/ratelimit"
)

func TestObserveCycleAndAdapterRecordMetrics(t *testing.T) {
	r := NewRegistry()

	r.ObserveCycle(250 * time.Millisecond)
	r.ObserveAdapter("binance", 100*time.Millisecond, 42, 0)
	r.ObserveAdapter("okx", 50*time.Millisecond, 0, 1)

	require.Equal(t, float64(42), testutil.ToFloat64(r.AdapterRecords.WithLabelValues("binance")))
	require.Equal(t, float64(0), testutil.ToFloat64(r.AdapterRecords.WithLabelValues("okx")))
	require.Equal(t, float64(1), testutil.ToFloat64(r.AdapterFailures.WithLabelValues("okx")))
}

func TestSnapshotReflectsLastCycleAndAdapterDurations(t *testing.T) {
	r := NewRegistry()

	r.ObserveCycle(1500 * time.Millisecond)
	r.ObserveAdapter("binance", 200*time.Millisecond, 10, 0)
	r.ObserveAdapter("okx", 300*time.Millisecond, 5, 0)
	r.ObserveCycle(900 * time.Millisecond) // only the most recent value should survive

	snap := r.Snapshot()
	require.InDelta(t, 0.9, snap.LastCycleDurationSeconds, 1e-9)
	require.InDelta(t, 0.2, snap.AdapterDurationsSeconds["binance"], 1e-9)
	require.InDelta(t, 0.3, snap.AdapterDurationsSeconds["okx"], 1e-9)
}

func TestCacheHitRatioReflectsHitsAndMisses(t *testing.T) {
	r := NewRegistry()

	r.RecordCacheHit("grid")
	r.RecordCacheHit("grid")
	r.RecordCacheMiss("grid")

	require.InDelta(t, 2.0/3.0, testutil.ToFloat64(r.CacheHitRatio), 1e-9)
}

func TestObserveRateLimitersSnapshotsStatsIdempotently(t *testing.T) {
	r := NewRegistry()
	reg := ratelimit.NewRegistry()
	reg.Register("binance", ratelimit.New("binance", ratelimit.Config{Capacity: 10, RefillPerSec: 1}))

	l := reg.Get("binance")
	require.NoError(t, l.Acquire(context.Background(), 1))

	r.ObserveRateLimiters(reg)
	require.Equal(t, float64(1), testutil.ToFloat64(r.RateLimiterAcquires.WithLabelValues("binance")))

	// A second snapshot of the same unchanged Stats must not double-count,
	// since Limiter.Stats reports lifetime totals rather than deltas.
	r.ObserveRateLimiters(reg)
	require.Equal(t, float64(1), testutil.ToFloat64(r.RateLimiterAcquires.WithLabelValues("binance")))

	require.NoError(t, l.Acquire(context.Background(), 1))
	r.ObserveRateLimiters(reg)
	require.Equal(t, float64(2), testutil.ToFloat64(r.RateLimiterAcquires.WithLabelValues("binance")))
}
