package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/server/internal/shared/config"
)

func testConfigs() []config.ProviderConfig {
	return []config.ProviderConfig{
		{Name: "openai", Capability: "image", Enabled: true, Priority: 10},
		{Name: "stability", Capability: "image", Enabled: true, Priority: 5},
		{Name: "dormant", Capability: "image", Enabled: false, Priority: 100},
		{Name: "runway", Capability: "video", Enabled: true, Priority: 10},
	}
}

func TestRegistrySelect(t *testing.T) {
	r := NewRegistry(testConfigs())

	t.Run("preferred provider wins when enabled", func(t *testing.T) {
		name, ok := r.Select(CapabilityImage, "stability")
		require.True(t, ok)
		assert.Equal(t, "stability", name)
	})

	t.Run("falls back to highest priority when no preference", func(t *testing.T) {
		name, ok := r.Select(CapabilityImage, "")
		require.True(t, ok)
		assert.Equal(t, "openai", name)
	})

	t.Run("disabled preferred falls back", func(t *testing.T) {
		name, ok := r.Select(CapabilityImage, "dormant")
		require.True(t, ok)
		assert.Equal(t, "openai", name)
	})

	t.Run("preferred with wrong capability falls back", func(t *testing.T) {
		name, ok := r.Select(CapabilityVideo, "openai")
		require.True(t, ok)
		assert.Equal(t, "runway", name)
	})

	t.Run("no enabled provider for capability", func(t *testing.T) {
		r := NewRegistry([]config.ProviderConfig{
			{Name: "dormant", Capability: "video", Enabled: false, Priority: 1},
		})
		_, ok := r.Select(CapabilityVideo, "")
		assert.False(t, ok)
	})
}

func TestRegistryFallbackChain(t *testing.T) {
	r := NewRegistry(testConfigs())

	t.Run("ordered by priority, disabled excluded", func(t *testing.T) {
		chain := r.FallbackChain(CapabilityImage, "")
		assert.Equal(t, []string{"openai", "stability"}, chain)
	})

	t.Run("preferred moves to the front without duplication", func(t *testing.T) {
		chain := r.FallbackChain(CapabilityImage, "stability")
		assert.Equal(t, []string{"stability", "openai"}, chain)
	})

	t.Run("empty for unknown capability", func(t *testing.T) {
		chain := r.FallbackChain(Capability("audio"), "")
		assert.Empty(t, chain)
	})
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry(testConfigs())

	cfg, ok := r.Get(CapabilityVideo, "runway")
	require.True(t, ok)
	assert.Equal(t, CapabilityVideo, cfg.Capability)

	_, ok = r.Get(CapabilityImage, "runway")
	assert.False(t, ok)

	_, ok = r.Get(CapabilityVideo, "missing")
	assert.False(t, ok)
}

func TestRegistryProviderServingBothCapabilities(t *testing.T) {
	r := NewRegistry([]config.ProviderConfig{
		{Name: "openai", Capability: "image", Enabled: true, Priority: 10},
		{Name: "openai", Capability: "video", Enabled: true, Priority: 10},
	})

	require.Len(t, r.All(), 2)

	imageCfg, ok := r.Get(CapabilityImage, "openai")
	require.True(t, ok)
	assert.Equal(t, CapabilityImage, imageCfg.Capability)

	videoCfg, ok := r.Get(CapabilityVideo, "openai")
	require.True(t, ok)
	assert.Equal(t, CapabilityVideo, videoCfg.Capability)

	assert.Equal(t, []string{"openai"}, r.FallbackChain(CapabilityImage, ""))
	assert.Equal(t, []string{"openai"}, r.FallbackChain(CapabilityVideo, ""))
}
