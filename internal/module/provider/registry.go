package provider

import (
	"sort"
	"time"

	"github.com/reelforge/server/internal/shared/config"
)

// Registry holds provider configurations per capability. It is built once at
// startup and read-only afterwards, so concurrent reads need no locking. The
// registry decides which providers exist and in what order; when to walk the
// fallback chain is the caller's policy.
//
// Configs are one per (capability, provider): the same provider name may
// appear under image and video with independent settings.
type Registry struct {
	byCapability map[Capability][]*Config
	byKey        map[string]*Config
}

func configKey(cap Capability, name string) string {
	return string(cap) + "/" + name
}

// NewRegistry builds a registry from configuration.
func NewRegistry(configs []config.ProviderConfig) *Registry {
	r := &Registry{
		byCapability: make(map[Capability][]*Config),
		byKey:        make(map[string]*Config),
	}

	for _, pc := range configs {
		cfg := &Config{
			Name:       pc.Name,
			Capability: Capability(pc.Capability),
			Enabled:    pc.Enabled,
			Priority:   pc.Priority,
			MaxRetries: pc.MaxRetries,
			Timeout:    time.Duration(pc.TimeoutMs) * time.Millisecond,
			BaseURL:    pc.BaseURL,
			APIKey:     pc.APIKey,
		}
		r.byCapability[cfg.Capability] = append(r.byCapability[cfg.Capability], cfg)
		r.byKey[configKey(cfg.Capability, cfg.Name)] = cfg
	}

	// Highest priority first
	for cap := range r.byCapability {
		list := r.byCapability[cap]
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority > list[j].Priority
		})
	}

	return r
}

// Get returns the configuration for a provider name under a capability.
func (r *Registry) Get(cap Capability, name string) (*Config, bool) {
	cfg, ok := r.byKey[configKey(cap, name)]
	return cfg, ok
}

// Select returns the preferred provider if it is enabled for the capability,
// else the highest-priority enabled alternative. The second return is false
// when no enabled provider exists.
func (r *Registry) Select(cap Capability, preferred string) (string, bool) {
	if preferred != "" {
		if cfg, ok := r.Get(cap, preferred); ok && cfg.Enabled {
			return cfg.Name, true
		}
	}
	for _, cfg := range r.byCapability[cap] {
		if cfg.Enabled {
			return cfg.Name, true
		}
	}
	return "", false
}

// FallbackChain returns all enabled providers for a capability ordered by
// priority, the preferred provider first when enabled.
func (r *Registry) FallbackChain(cap Capability, preferred string) []string {
	var chain []string
	if preferred != "" {
		if cfg, ok := r.Get(cap, preferred); ok && cfg.Enabled {
			chain = append(chain, cfg.Name)
		}
	}
	for _, cfg := range r.byCapability[cap] {
		if !cfg.Enabled || (len(chain) > 0 && cfg.Name == chain[0]) {
			continue
		}
		chain = append(chain, cfg.Name)
	}
	return chain
}

// All returns every configured (capability, provider) entry.
func (r *Registry) All() []*Config {
	result := make([]*Config, 0, len(r.byKey))
	for _, cfg := range r.byKey {
		result = append(result, cfg)
	}
	return result
}
