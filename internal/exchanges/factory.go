package exchanges

import (
	"fmt"

	"github.com/fundingobservatory/observatory/internal/config"
	"github.com/fundingobservatory/observatory/internal/httpclient"
	"github.com/fundingobservatory/observatory/internal/ratelimit"
)

// constructors maps a venue name to its Adapter constructor. Adding a venue
// means adding one entry here plus its own file — the scheduler and
// everything above it never changes.
var constructors = map[string]func(*httpclient.Client, string) Adapter{
	"binance":     NewBinance,
	"okx":         NewOKX,
	"kraken":      NewKraken,
	"coinbase":    NewCoinbase,
	"bybit":       NewBybit,
	"bitget":      NewBitget,
	"gateio":      NewGateio,
	"mexc":        NewMEXC,
	"htx":         NewHTX,
	"deribit":     NewDeribit,
	"hyperliquid": NewHyperliquid,
	"dydx":        NewDYDX,
	"vertex":      NewVertex,
}

// BuildRegistry constructs one Adapter per enabled venue in cfg, each wired
// to its own rate limiter (registered into limiters) and a shared-shape
// httpclient.Client, per spec.md §9's "registry maps enabled venue names to
// constructors driven by configuration."
func BuildRegistry(cfg *config.Config, limiters *ratelimit.Registry) (*Registry, error) {
	reg := NewRegistry()

	for _, name := range cfg.Collection.EnabledVenues {
		ctor, ok := constructors[name]
		if !ok {
			return nil, fmt.Errorf("exchanges: unknown venue %q", name)
		}

		venueCfg := cfg.Exchanges[name]
		limiter := ratelimit.New(name, ratelimit.Config{
			Capacity:     venueCfg.RateLimit.Capacity,
			RefillPerSec: venueCfg.RateLimit.RefillPerSec,
		})
		limiters.Register(name, limiter)

		client := httpclient.New(name, limiter, httpclient.Config{})
		reg.Register(ctor(client, venueCfg.BaseURL))
	}

	return reg, nil
}
