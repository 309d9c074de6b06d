// Package cache implements the two-tier TTL cache of spec.md §4.6: Redis
// primary with a graceful in-process LRU fallback, grounded on
// infrastructure/data/cache.go's CacheManager interface shape
// (Get/Set/Delete/Health/Close) and internal/datasources/cache.go's
// per-category TTL table (DefaultCacheConfig), here keyed by endpoint class
// instead of provider-category.
package cache

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fundingobservatory/observatory/internal/obserr"
)

// Class is an endpoint category, each with its own TTL (spec.md §4.6).
type Class string

const (
	ClassGrid       Class = "grid"
	ClassStats      Class = "stats"
	ClassHistorical Class = "historical"
	ClassArbitrage  Class = "arbitrage"
)

// Config carries the per-class TTLs and Redis connection info.
type Config struct {
	RedisAddr string
	RedisDB   int
	TTL       map[Class]time.Duration
	LRUSize   int
}

// Cache is a Redis-backed cache that falls back to an in-process LRU when
// Redis is unavailable, so a cache-layer outage degrades read latency rather
// than taking the API down (spec.md §4.6: "graceful in-process fallback").
type Cache struct {
	redis *redis.Client
	lru   *lru.Cache[string, []byte]
	ttl   map[Class]time.Duration

	redisUp bool
}

type lruEntry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// New constructs a Cache. Redis connectivity is probed lazily on first use,
// not at construction — matching infrastructure/data/cache.go's "don't fail
// startup on a cold cache dependency" stance.
func New(cfg Config) (*Cache, error) {
	size := cfg.LRUSize
	if size <= 0 {
		size = 10000
	}
	backing, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, obserr.New(obserr.KindInternal, "cache.New", err)
	}

	var client *redis.Client
	if cfg.RedisAddr != "" {
		client = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	}

	ttl := cfg.TTL
	if ttl == nil {
		ttl = map[Class]time.Duration{
			ClassGrid:       5 * time.Second,
			ClassStats:      10 * time.Second,
			ClassHistorical: 30 * time.Second,
			ClassArbitrage:  5 * time.Second,
		}
	}

	return &Cache{redis: client, lru: backing, ttl: ttl, redisUp: client != nil}, nil
}

// Get returns the cached value for key within class, unmarshaled into out.
// Returns (false, nil) on a clean miss (key absent, or expired in the LRU
// fallback).
func (c *Cache) Get(ctx context.Context, class Class, key string, out interface{}) (bool, error) {
	fullKey := string(class) + ":" + key

	if c.redisUp && c.redis != nil {
		b, err := c.redis.Get(ctx, fullKey).Bytes()
		if err == nil {
			return true, json.Unmarshal(b, out)
		}
		if err != redis.Nil {
			c.redisUp = false // fall through to LRU for this and subsequent calls
		} else {
			return false, nil
		}
	}

	raw, ok := c.lru.Get(fullKey)
	if !ok {
		return false, nil
	}
	var entry lruEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return false, nil
	}
	if time.Now().After(entry.ExpiresAt) {
		c.lru.Remove(fullKey)
		return false, nil
	}
	return true, json.Unmarshal(entry.Value, out)
}

// Set stores value under key within class, at that class's configured TTL.
func (c *Cache) Set(ctx context.Context, class Class, key string, value interface{}) error {
	fullKey := string(class) + ":" + key
	ttl := c.ttl[class]
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	b, err := json.Marshal(value)
	if err != nil {
		return obserr.New(obserr.KindCache, "cache.Set", err)
	}

	if c.redisUp && c.redis != nil {
		if err := c.redis.Set(ctx, fullKey, b, ttl).Err(); err != nil {
			c.redisUp = false
		} else {
			return nil
		}
	}

	entryBytes, err := json.Marshal(lruEntry{Value: b, ExpiresAt: time.Now().Add(ttl)})
	if err != nil {
		return obserr.New(obserr.KindCache, "cache.Set", err)
	}
	c.lru.Add(fullKey, entryBytes)
	return nil
}

// Clear evicts every entry from both tiers (spec.md §6's manual cache/clear
// endpoint).
func (c *Cache) Clear(ctx context.Context) error {
	c.lru.Purge()
	if c.redis == nil {
		return nil
	}
	if err := c.redis.FlushDB(ctx).Err(); err != nil {
		return obserr.New(obserr.KindCache, "cache.Clear", err)
	}
	return nil
}

// Healthy reports whether Redis is currently reachable (the in-process LRU
// is always available, so this reflects degraded-vs-full-speed, not up/down).
func (c *Cache) Healthy(ctx context.Context) bool {
	if c.redis == nil {
		return false
	}
	if err := c.redis.Ping(ctx).Err(); err != nil {
		c.redisUp = false
		return false
	}
	c.redisUp = true
	return true
}
