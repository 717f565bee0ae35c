package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reelforge/server/internal/utils/metrics"
)

type fakeAdapter struct {
	name      string
	caps      []Capability
	healthErr error
	imageFn   func(ctx context.Context, req *ImageRequest) (*Result, error)
	videoFn   func(ctx context.Context, req *VideoRequest) (*Result, error)
}

func (f *fakeAdapter) Name() string              { return f.name }
func (f *fakeAdapter) Capabilities() []Capability { return f.caps }

func (f *fakeAdapter) GenerateImage(ctx context.Context, req *ImageRequest) (*Result, error) {
	if f.imageFn != nil {
		return f.imageFn(ctx, req)
	}
	return &Result{Provider: f.name, ModelID: req.Model, AssetURL: "https://cdn.test/" + f.name}, nil
}

func (f *fakeAdapter) GenerateVideo(ctx context.Context, req *VideoRequest) (*Result, error) {
	if f.videoFn != nil {
		return f.videoFn(ctx, req)
	}
	return &Result{Provider: f.name, ModelID: req.Model, AssetURL: "https://cdn.test/" + f.name}, nil
}

func (f *fakeAdapter) HealthCheck(ctx context.Context) error { return f.healthErr }

func newTestMonitor(t *testing.T, adapters ...Adapter) *HealthMonitor {
	t.Helper()
	reg := NewAdapterRegistry()
	for _, a := range adapters {
		reg.Register(a)
	}
	m := metrics.New("test_health_" + t.Name())
	monitor := NewHealthMonitor(reg, &HealthMonitorConfig{
		CheckInterval:    time.Hour,
		FailureThreshold: 2,
		BreakerTimeout:   time.Second,
	}, m, zap.NewNop())
	t.Cleanup(monitor.Stop)
	return monitor
}

func TestHealthMonitorCheck(t *testing.T) {
	healthy := &fakeAdapter{name: "healthy", caps: []Capability{CapabilityImage}}
	sick := &fakeAdapter{name: "sick", caps: []Capability{CapabilityImage}, healthErr: errors.New("down")}

	monitor := newTestMonitor(t, healthy, sick)
	monitor.Start()

	require.NoError(t, monitor.Check(context.Background(), CapabilityImage, "healthy"))
	assert.True(t, monitor.IsHealthy(CapabilityImage, "healthy"))

	require.Error(t, monitor.Check(context.Background(), CapabilityImage, "sick"))
	assert.False(t, monitor.IsHealthy(CapabilityImage, "sick"))
	assert.Equal(t, HealthStatusUnhealthy, monitor.GetStatus(CapabilityImage, "sick"))
}

func TestHealthMonitorRecovery(t *testing.T) {
	flapping := &fakeAdapter{name: "flapping", caps: []Capability{CapabilityVideo}, healthErr: errors.New("down")}

	monitor := newTestMonitor(t, flapping)
	monitor.Start()

	require.Error(t, monitor.Check(context.Background(), CapabilityVideo, "flapping"))
	assert.False(t, monitor.IsHealthy(CapabilityVideo, "flapping"))

	flapping.healthErr = nil
	require.NoError(t, monitor.Check(context.Background(), CapabilityVideo, "flapping"))
	assert.True(t, monitor.IsHealthy(CapabilityVideo, "flapping"))
}

func TestHealthMonitorUnknownProviderIsHealthy(t *testing.T) {
	monitor := newTestMonitor(t)
	assert.True(t, monitor.IsHealthy(CapabilityImage, "never-registered"))
}

func TestHealthMonitorTracksCapabilitiesIndependently(t *testing.T) {
	imageSide := &fakeAdapter{name: "openai", caps: []Capability{CapabilityImage}}
	videoSide := &fakeAdapter{name: "openai", caps: []Capability{CapabilityVideo}, healthErr: errors.New("down")}

	monitor := newTestMonitor(t, imageSide, videoSide)
	monitor.Start()

	require.NoError(t, monitor.Check(context.Background(), CapabilityImage, "openai"))
	require.Error(t, monitor.Check(context.Background(), CapabilityVideo, "openai"))

	assert.True(t, monitor.IsHealthy(CapabilityImage, "openai"))
	assert.False(t, monitor.IsHealthy(CapabilityVideo, "openai"))
}

func TestAdapterRegistry(t *testing.T) {
	reg := NewAdapterRegistry()
	reg.Register(&fakeAdapter{name: "openai", caps: []Capability{CapabilityImage}})

	a, err := reg.Get(CapabilityImage, "openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", a.Name())
	assert.True(t, Supports(a, CapabilityImage))
	assert.False(t, Supports(a, CapabilityVideo))

	_, err = reg.Get(CapabilityVideo, "openai")
	assert.Error(t, err)

	_, err = reg.Get(CapabilityImage, "missing")
	assert.Error(t, err)
}

func TestAdapterRegistrySeparateAdaptersPerCapability(t *testing.T) {
	reg := NewAdapterRegistry()
	reg.Register(&fakeAdapter{name: "openai", caps: []Capability{CapabilityImage}})
	reg.Register(&fakeAdapter{name: "openai", caps: []Capability{CapabilityVideo}})

	img, err := reg.Get(CapabilityImage, "openai")
	require.NoError(t, err)
	vid, err := reg.Get(CapabilityVideo, "openai")
	require.NoError(t, err)

	assert.True(t, Supports(img, CapabilityImage))
	assert.True(t, Supports(vid, CapabilityVideo))
	assert.Len(t, reg.Entries(), 2)
}
