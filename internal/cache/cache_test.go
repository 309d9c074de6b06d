package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// No RedisAddr is configured in these tests, so every call exercises the
// in-process LRU fallback tier directly.

func TestSetThenGetRoundTrips(t *testing.T) {
	c, err := New(Config{TTL: map[Class]time.Duration{ClassGrid: time.Minute}})
	require.NoError(t, err)

	type payload struct {
		Asset string `json:"asset"`
	}
	require.NoError(t, c.Set(context.Background(), ClassGrid, "BTC", payload{Asset: "BTC"}))

	var out payload
	ok, err := c.Get(context.Background(), ClassGrid, "BTC", &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "BTC", out.Asset)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)

	var out map[string]string
	ok, err := c.Get(context.Background(), ClassStats, "missing", &out)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetExpiredEntryReturnsFalse(t *testing.T) {
	c, err := New(Config{TTL: map[Class]time.Duration{ClassHistorical: time.Nanosecond}})
	require.NoError(t, err)

	require.NoError(t, c.Set(context.Background(), ClassHistorical, "k", map[string]int{"n": 1}))
	time.Sleep(time.Millisecond)

	var out map[string]int
	ok, err := c.Get(context.Background(), ClassHistorical, "k", &out)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClearPurgesLRU(t *testing.T) {
	c, err := New(Config{TTL: map[Class]time.Duration{ClassArbitrage: time.Minute}})
	require.NoError(t, err)

	require.NoError(t, c.Set(context.Background(), ClassArbitrage, "k", 1))
	require.NoError(t, c.Clear(context.Background()))

	var out int
	ok, err := c.Get(context.Background(), ClassArbitrage, "k", &out)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHealthyFalseWithoutRedisConfigured(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	require.False(t, c.Healthy(context.Background()))
}
