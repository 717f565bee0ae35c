package pricing

import (
	"github.com/reelforge/server/internal/shared/config"
)

// Registry holds the pricing table. Built once at startup from configuration
// and never mutated afterwards.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry creates a registry from the configured pricing table.
func NewRegistry(cfg *config.PricingConfig) *Registry {
	entries := make(map[string]Entry, len(cfg.Models))
	for _, m := range cfg.Models {
		unit := Unit(m.Unit)
		if unit != UnitPerDuration {
			unit = UnitPerItem
		}
		entries[m.Model] = Entry{
			ModelID:            m.Model,
			Unit:               unit,
			UnitPrice:          m.UnitPrice,
			AvgDurationSeconds: m.AvgDurationSeconds,
		}
	}
	return &Registry{entries: entries}
}

// Lookup returns the pricing entry for a model identifier.
func (r *Registry) Lookup(modelID string) (Entry, bool) {
	e, ok := r.entries[modelID]
	return e, ok
}

// Models returns all priced model identifiers.
func (r *Registry) Models() []string {
	result := make([]string, 0, len(r.entries))
	for id := range r.entries {
		result = append(result, id)
	}
	return result
}
