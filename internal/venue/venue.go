// Package venue holds the venue registry and the performance tracker that
// feeds routing decisions.
package venue

import (
	"sync"
)

// FeeSchedule is a venue's trading fee rates as fractions (0.001 = 10 bps).
type FeeSchedule struct {
	MakerRate float64 `yaml:"maker_rate" json:"maker_rate"`
	TakerRate float64 `yaml:"taker_rate" json:"taker_rate"`
}

// Capabilities describes what a venue supports beyond plain spot trading.
type Capabilities struct {
	Iceberg  bool `yaml:"iceberg" json:"iceberg"`
	DarkPool bool `yaml:"dark_pool" json:"dark_pool"`
	PostOnly bool `yaml:"post_only" json:"post_only"`
}

// Venue is a tradeable liquidity source.
type Venue struct {
	ID             string       `yaml:"id" json:"id"`
	Name           string       `yaml:"name" json:"name"`
	Fees           FeeSchedule  `yaml:"fees" json:"fees"`
	Capabilities   Capabilities `yaml:"capabilities" json:"capabilities"`
	Operational    bool         `yaml:"operational" json:"operational"`
	TradingEnabled bool         `yaml:"trading_enabled" json:"trading_enabled"`
	Symbols        []string     `yaml:"symbols" json:"symbols"`
}

// SupportsSymbol reports whether the venue lists the symbol. An empty symbol
// list means the venue trades everything.
func (v *Venue) SupportsSymbol(symbol string) bool {
	if len(v.Symbols) == 0 {
		return true
	}
	for _, s := range v.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// Registry is the process-local venue table. It is constructed explicitly
// and injected; there is no package-level instance.
type Registry struct {
	mu     sync.RWMutex
	venues map[string]*Venue
}

// NewRegistry creates an empty venue registry.
func NewRegistry() *Registry {
	return &Registry{venues: make(map[string]*Venue)}
}

// Upsert installs or replaces a venue definition.
func (r *Registry) Upsert(v Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := v
	r.venues[v.ID] = &copied
}

// Get returns a copy of the venue, if registered.
func (r *Registry) Get(id string) (Venue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.venues[id]
	if !ok {
		return Venue{}, false
	}
	return *v, true
}

// List returns copies of all registered venues.
func (r *Registry) List() []Venue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Venue, 0, len(r.venues))
	for _, v := range r.venues {
		out = append(out, *v)
	}
	return out
}

// SetOperational flips a venue's operational status.
func (r *Registry) SetOperational(id string, operational bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.venues[id]; ok {
		v.Operational = operational
	}
}

// SetTradingEnabled flips a venue's trading-enabled status.
func (r *Registry) SetTradingEnabled(id string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.venues[id]; ok {
		v.TradingEnabled = enabled
	}
}
