package exchanges

import (
	"sync"

	"github.com/fundingobservatory/observatory/internal/model"
)

// Registry maps enabled venue names to their Adapter (spec.md §9: "A
// registry maps enabled venue names to constructors driven by configuration;
// the scheduler depends only on the capability set"), grounded on
// internal/provider/registry.go's provider map, generalized from a
// provider-class registry to a value-capability registry and extended with
// the stale-contract decommissioning policy of DESIGN.md's open-question
// decision 3.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	missed   map[string]map[string]int // exchange -> symbol -> consecutive missed cycles
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		missed:   make(map[string]map[string]int),
	}
}

// Register installs an Adapter under its own Name().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
	r.missed[a.Name()] = make(map[string]int)
}

// Get returns the Adapter for venue, or nil if not registered.
func (r *Registry) Get(venue string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[venue]
}

// Enabled returns every registered Adapter, in no particular order; callers
// that need deterministic offsets (the sequential-staggered dispatch mode)
// should sort by Name() themselves.
func (r *Registry) Enabled() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	return out
}

// ReconcileCycle applies the stale-contract policy (model.StaleAfterCycles)
// to one venue's freshly fetched snapshot batch: symbols present in fresh
// have their miss counter reset; symbols previously seen for this venue but
// absent from fresh have their miss counter incremented, and once it reaches
// model.StaleAfterCycles the caller-supplied markInactive callback is
// invoked so the storage layer can flip that row to ContractInactive without
// the adapter itself needing to track history across cycles.
func (r *Registry) ReconcileCycle(venue string, fresh []model.ContractSnapshot, markInactive func(symbol string)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(fresh))
	for _, s := range fresh {
		seen[s.Symbol] = true
	}

	counts := r.missed[venue]
	if counts == nil {
		counts = make(map[string]int)
		r.missed[venue] = counts
	}
	for symbol := range counts {
		if seen[symbol] {
			continue
		}
		counts[symbol]++
		if counts[symbol] >= model.StaleAfterCycles {
			markInactive(symbol)
		}
	}
	for symbol := range seen {
		counts[symbol] = 0
	}
}
