// Package config loads the observatory's YAML configuration file and
// resolves secret-bearing fields from the environment, grounded on the
// teacher's internal/application/config.go per-concern loaders
// (LoadAPIsConfig/LoadCacheConfig: os.ReadFile + yaml.Unmarshal + defaults
// applied after unmarshal) collapsed here into a single top-level Config
// since the observatory is one service, not the teacher's multi-surface app.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of config/observatory.yaml.
type Config struct {
	Collection CollectionConfig         `yaml:"collection"`
	Exchanges  map[string]ExchangeConfig `yaml:"exchanges"`
	Database   DatabaseConfig           `yaml:"database"`
	Cache      CacheConfig              `yaml:"cache"`
	Stats      StatsConfig              `yaml:"stats"`
	Arbitrage  ArbitrageConfig          `yaml:"arbitrage"`
	API        APIConfig                `yaml:"api"`
	Historical HistoricalConfig         `yaml:"historical"`
}

// CollectionConfig drives the scheduler (spec.md §4.3).
type CollectionConfig struct {
	LogLevel       string   `yaml:"log_level"`
	Mode           string   `yaml:"mode"` // "live" | "historical"
	IntervalSec    int      `yaml:"interval_seconds"`
	DurationSec    int      `yaml:"duration_seconds"` // 0 = run until cancelled
	MaxCycleSec    int      `yaml:"max_cycle_seconds"`
	Dispatch       string   `yaml:"dispatch"` // "parallel" | "sequential_staggered"
	StaggerSec     int      `yaml:"stagger_seconds"`
	EnabledVenues  []string `yaml:"enabled_venues"`
}

func (c CollectionConfig) Interval() time.Duration    { return time.Duration(c.IntervalSec) * time.Second }
func (c CollectionConfig) Duration() time.Duration    { return time.Duration(c.DurationSec) * time.Second }
func (c CollectionConfig) MaxCycle() time.Duration    { return time.Duration(c.MaxCycleSec) * time.Second }
func (c CollectionConfig) Stagger() time.Duration     { return time.Duration(c.StaggerSec) * time.Second }

// ExchangeConfig configures one venue's adapter and rate limiter.
type ExchangeConfig struct {
	BaseURL       string `yaml:"base_url"`
	APIKeyEnv     string `yaml:"api_key_env"`
	RateLimit     struct {
		Capacity     int     `yaml:"capacity"`
		RefillPerSec float64 `yaml:"refill_per_sec"`
	} `yaml:"rate_limit"`
}

// APIKey resolves the venue's API key from the environment, if configured.
// Returns "" if api_key_env is unset — most venues need no key for public
// funding-rate endpoints.
func (e ExchangeConfig) APIKey() string {
	if e.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(e.APIKeyEnv)
}

// DatabaseConfig holds the Postgres connection string (spec.md §6: "never
// committed"). DSN resolves ${DATABASE_URL} if the YAML value is literally
// "$DATABASE_URL" or empty.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

func (d DatabaseConfig) ResolvedDSN() string {
	return resolveEnvRef(d.DSN, "DATABASE_URL")
}

// CacheConfig configures the two-tier TTL cache (internal/cache).
type CacheConfig struct {
	Redis struct {
		Addr string `yaml:"addr"`
		DB   int    `yaml:"db"`
	} `yaml:"redis"`
	TTLSeconds struct {
		Grid       int `yaml:"grid"`
		Stats      int `yaml:"stats"`
		Historical int `yaml:"historical"`
		Arbitrage  int `yaml:"arbitrage"`
	} `yaml:"ttl_seconds"`
	LRUSize int `yaml:"lru_size"`
}

func (c CacheConfig) GridTTL() time.Duration       { return durOrDefault(c.TTLSeconds.Grid, 5*time.Second) }
func (c CacheConfig) StatsTTL() time.Duration      { return durOrDefault(c.TTLSeconds.Stats, 10*time.Second) }
func (c CacheConfig) HistoricalTTL() time.Duration { return durOrDefault(c.TTLSeconds.Historical, 30*time.Second) }
func (c CacheConfig) ArbitrageTTL() time.Duration  { return durOrDefault(c.TTLSeconds.Arbitrage, 5*time.Second) }

func durOrDefault(seconds int, def time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}

// StatsConfig configures the rolling-window statistics engine (spec.md §4.7).
type StatsConfig struct {
	WindowDays       int `yaml:"window_days"`
	ActiveRefreshSec int `yaml:"active_refresh_seconds"`
	StableRefreshSec int `yaml:"stable_refresh_seconds"`
	WorkerPoolSize   int `yaml:"worker_pool_size"`
}

// ArbitrageConfig configures the spread scanner (spec.md §4.8).
type ArbitrageConfig struct {
	MinAPRSpread float64 `yaml:"min_apr_spread"`
}

// HistoricalConfig drives the backfill runner (spec.md §4.4).
type HistoricalConfig struct {
	Days              int      `yaml:"days"`
	EnabledVenues     []string `yaml:"enabled_venues"`
	MaxRetries        int      `yaml:"max_retries"`
	BaseBackoffSec    int      `yaml:"base_backoff_seconds"`
	MaxBackoffSec     int      `yaml:"max_backoff_seconds"`
	LockTTLSec        int      `yaml:"lock_ttl_seconds"`
	StatusPath        string   `yaml:"status_path"`
	LockPath          string   `yaml:"lock_path"`
	ProgressFlushSec  int      `yaml:"progress_flush_seconds"`
	PerExchangeLimit  int      `yaml:"per_exchange_concurrency"`
}

func (h HistoricalConfig) Window() time.Duration { return time.Duration(h.Days) * 24 * time.Hour }
func (h HistoricalConfig) LockTTL() time.Duration {
	return durOrDefault(h.LockTTLSec, 10*time.Minute)
}
func (h HistoricalConfig) BaseBackoff() time.Duration {
	return durOrDefault(h.BaseBackoffSec, 2*time.Second)
}
func (h HistoricalConfig) MaxBackoff() time.Duration {
	return durOrDefault(h.MaxBackoffSec, 2*time.Minute)
}
func (h HistoricalConfig) ProgressFlush() time.Duration {
	return durOrDefault(h.ProgressFlushSec, 5*time.Second)
}

// APIConfig configures the HTTP query surface (internal/api).
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads and parses path, applying defaults for zero-valued fields that
// the teacher's loaders also defaulted post-unmarshal (e.g. CacheConfig's
// DefaultTTL derivation).
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Collection.Mode == "" {
		c.Collection.Mode = "live"
	}
	if c.Collection.IntervalSec <= 0 {
		c.Collection.IntervalSec = 30
	}
	if c.Collection.Dispatch == "" {
		c.Collection.Dispatch = "parallel"
	}
	if c.Stats.WindowDays <= 0 {
		c.Stats.WindowDays = 30
	}
	if c.Stats.WorkerPoolSize <= 0 {
		c.Stats.WorkerPoolSize = runtime.NumCPU()
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.Historical.Days <= 0 {
		c.Historical.Days = 30
	}
	if c.Historical.MaxRetries <= 0 {
		c.Historical.MaxRetries = 5
	}
	if c.Historical.StatusPath == "" {
		c.Historical.StatusPath = "data/backfill-status.json"
	}
	if c.Historical.LockPath == "" {
		c.Historical.LockPath = "data/backfill.lock"
	}
	if c.Historical.PerExchangeLimit <= 0 {
		c.Historical.PerExchangeLimit = 4
	}
	if c.Exchanges == nil {
		c.Exchanges = make(map[string]ExchangeConfig)
	}
	for _, name := range c.Collection.EnabledVenues {
		if _, ok := c.Exchanges[name]; !ok {
			c.Exchanges[name] = ExchangeConfig{}
		}
	}
	for name, ex := range c.Exchanges {
		if ex.RateLimit.Capacity <= 0 {
			ex.RateLimit.Capacity = 10
		}
		if ex.RateLimit.RefillPerSec <= 0 {
			ex.RateLimit.RefillPerSec = 5
		}
		c.Exchanges[name] = ex
	}
}

// resolveEnvRef returns os.Getenv(envName) if raw is empty or literally
// "$"+envName, else returns raw unchanged (spec.md §6 credential-resolution
// note).
func resolveEnvRef(raw, envName string) string {
	ref := "$" + envName
	if raw == "" || strings.EqualFold(raw, ref) {
		return os.Getenv(envName)
	}
	return raw
}
