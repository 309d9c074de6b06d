package cache

import (
	"time"

	"github.com/fundingobservatory/observatory/internal/config"
)

// NewFromConfig builds a Cache from the root configuration's cache section,
// wiring each endpoint class to its configured TTL helper.
func NewFromConfig(cfg config.CacheConfig) (*Cache, error) {
	return New(Config{
		RedisAddr: cfg.Redis.Addr,
		RedisDB:   cfg.Redis.DB,
		LRUSize:   cfg.LRUSize,
		TTL: map[Class]time.Duration{
			ClassGrid:       cfg.GridTTL(),
			ClassStats:      cfg.StatsTTL(),
			ClassHistorical: cfg.HistoricalTTL(),
			ClassArbitrage:  cfg.ArbitrageTTL(),
		},
	})
}
