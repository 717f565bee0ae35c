package provider

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reelforge/server/internal/utils/metrics"
)

// HealthStatus represents the health status of a provider.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthMonitor periodically probes registered adapters and keeps a circuit
// breaker per (capability, provider) slot. Requests consult IsHealthy before
// dispatch so a flapping provider drops out of the fallback chain instead of
// eating the retry budget. A provider serving two capabilities is tracked
// independently under each.
type HealthMonitor struct {
	mu sync.RWMutex

	adapters     *AdapterRegistry
	breakers     map[string]*gobreaker.CircuitBreaker[any]
	healthStatus map[string]HealthStatus
	lastCheck    map[string]time.Time

	checkInterval    time.Duration
	failureThreshold uint32
	breakerTimeout   time.Duration

	logger      *zap.Logger
	m           *metrics.Metrics
	stopMonitor chan struct{}
	stopOnce    sync.Once
}

// HealthMonitorConfig contains health monitor configuration.
type HealthMonitorConfig struct {
	CheckInterval    time.Duration
	FailureThreshold uint32
	BreakerTimeout   time.Duration
}

// DefaultHealthMonitorConfig returns the default health monitor configuration.
func DefaultHealthMonitorConfig() *HealthMonitorConfig {
	return &HealthMonitorConfig{
		CheckInterval:    30 * time.Second,
		FailureThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// NewHealthMonitor creates a new health monitor.
func NewHealthMonitor(adapters *AdapterRegistry, cfg *HealthMonitorConfig, m *metrics.Metrics, logger *zap.Logger) *HealthMonitor {
	if cfg == nil {
		cfg = DefaultHealthMonitorConfig()
	}

	return &HealthMonitor{
		adapters:         adapters,
		breakers:         make(map[string]*gobreaker.CircuitBreaker[any]),
		healthStatus:     make(map[string]HealthStatus),
		lastCheck:        make(map[string]time.Time),
		checkInterval:    cfg.CheckInterval,
		failureThreshold: cfg.FailureThreshold,
		breakerTimeout:   cfg.BreakerTimeout,
		logger:           logger,
		m:                m,
		stopMonitor:      make(chan struct{}),
	}
}

// Start initializes breakers for all registered adapters and begins the
// background check loop.
func (m *HealthMonitor) Start() {
	for _, e := range m.adapters.Entries() {
		key := configKey(e.Capability, e.Name)
		m.getOrCreateBreaker(key)
		m.mu.Lock()
		m.healthStatus[key] = HealthStatusHealthy
		m.mu.Unlock()
		m.m.ProviderHealth.WithLabelValues(e.Name, string(e.Capability)).Set(1)
	}

	go m.monitorLoop()
}

// Stop stops the health monitor.
func (m *HealthMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopMonitor) })
}

func (m *HealthMonitor) monitorLoop() {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopMonitor:
			return
		case <-ticker.C:
			m.checkAll()
		}
	}
}

func (m *HealthMonitor) checkAll() {
	g := new(errgroup.Group)
	g.SetLimit(4)
	for _, e := range m.adapters.Entries() {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			m.Check(ctx, e.Capability, e.Name)
			return nil
		})
	}
	g.Wait()
}

// Check probes a single provider slot through its circuit breaker and records
// the outcome.
func (m *HealthMonitor) Check(ctx context.Context, cap Capability, name string) error {
	adapter, err := m.adapters.Get(cap, name)
	if err != nil {
		return err
	}

	key := configKey(cap, name)
	breaker := m.getOrCreateBreaker(key)
	_, err = breaker.Execute(func() (any, error) {
		return nil, adapter.HealthCheck(ctx)
	})

	m.mu.Lock()
	m.lastCheck[key] = time.Now()
	if err != nil {
		m.healthStatus[key] = HealthStatusUnhealthy
		m.m.ProviderHealth.WithLabelValues(name, string(cap)).Set(0)
		m.logger.Warn("provider health check failed",
			zap.String("provider", name),
			zap.String("capability", string(cap)),
			zap.Error(err))
	} else {
		m.healthStatus[key] = HealthStatusHealthy
		m.m.ProviderHealth.WithLabelValues(name, string(cap)).Set(1)
	}
	m.mu.Unlock()

	return err
}

// IsHealthy reports whether a provider is healthy for a capability. Unknown
// slots are considered healthy so a freshly registered adapter is usable
// before its first probe.
func (m *HealthMonitor) IsHealthy(cap Capability, name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, ok := m.healthStatus[configKey(cap, name)]
	if !ok {
		return true
	}
	return status == HealthStatusHealthy
}

// GetStatus returns the health status of a provider slot.
func (m *HealthMonitor) GetStatus(cap Capability, name string) HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, ok := m.healthStatus[configKey(cap, name)]
	if !ok {
		return HealthStatusHealthy
	}
	return status
}

// AllStatus returns the health status of every monitored slot, keyed as
// "capability/provider".
func (m *HealthMonitor) AllStatus() map[string]HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]HealthStatus, len(m.healthStatus))
	for k, v := range m.healthStatus {
		result[k] = v
	}
	return result
}

func (m *HealthMonitor) getOrCreateBreaker(key string) *gobreaker.CircuitBreaker[any] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if breaker, ok := m.breakers[key]; ok {
		return breaker
	}

	threshold := m.failureThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := m.breakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}

	breaker := gobreaker.NewCircuitBreaker[any](settings)
	m.breakers[key] = breaker

	return breaker
}
