package provider

import (
	"sync"

	apperrors "github.com/reelforge/server/internal/shared/errors"
)

// AdapterEntry is one registered (capability, provider) adapter slot.
type AdapterEntry struct {
	Capability Capability
	Name       string
	Adapter    Adapter
}

// AdapterRegistry maps (capability, provider name) pairs to their wire
// adapters. A provider name may carry a different adapter per capability.
type AdapterRegistry struct {
	mu      sync.RWMutex
	entries map[string]AdapterEntry
}

func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{entries: make(map[string]AdapterEntry)}
}

// Register adds an adapter under its name for every capability it reports.
// Later registrations replace earlier ones for the same pair.
func (r *AdapterRegistry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cap := range a.Capabilities() {
		r.entries[configKey(cap, a.Name())] = AdapterEntry{Capability: cap, Name: a.Name(), Adapter: a}
	}
}

// Get returns the adapter serving a provider name under a capability.
func (r *AdapterRegistry) Get(cap Capability, name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[configKey(cap, name)]
	if !ok {
		return nil, apperrors.Configuration("no " + string(cap) + " adapter registered for provider " + name)
	}
	return e.Adapter, nil
}

// Entries returns all registered adapter slots.
func (r *AdapterRegistry) Entries() []AdapterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]AdapterEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	return entries
}
