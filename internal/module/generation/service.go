package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reelforge/server/internal/module/approval"
	"github.com/reelforge/server/internal/module/asset"
	"github.com/reelforge/server/internal/module/ledger"
	"github.com/reelforge/server/internal/module/pricing"
	"github.com/reelforge/server/internal/module/provider"
	apperrors "github.com/reelforge/server/internal/shared/errors"
	"github.com/reelforge/server/internal/utils/metrics"
)

// HealthChecker reports whether a provider should receive traffic.
type HealthChecker interface {
	IsHealthy(cap provider.Capability, name string) bool
}

// Service orchestrates a generation request: estimate the cost, pass the
// approval gate, dispatch to a provider with fallback, secure the asset into
// owned storage, and record the spend.
type Service struct {
	estimator *pricing.Estimator
	gate      *approval.Gate
	registry  *provider.Registry
	adapters  *provider.AdapterRegistry
	health    HealthChecker
	pipeline  *asset.Pipeline
	recorder  *ledger.Recorder
	m         *metrics.Metrics
	logger    *zap.Logger
}

// NewService creates a new generation service.
func NewService(
	estimator *pricing.Estimator,
	gate *approval.Gate,
	registry *provider.Registry,
	adapters *provider.AdapterRegistry,
	health HealthChecker,
	pipeline *asset.Pipeline,
	recorder *ledger.Recorder,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		estimator: estimator,
		gate:      gate,
		registry:  registry,
		adapters:  adapters,
		health:    health,
		pipeline:  pipeline,
		recorder:  recorder,
		m:         m,
		logger:    logger,
	}
}

// Generate runs a generation request end to end.
func (s *Service) Generate(ctx context.Context, req *Request) (*Response, error) {
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	capability := provider.Capability(req.Capability)

	// The estimate computed here is the one the ledger records later; the
	// gate and the audit trail must agree on the amount.
	estimate := s.estimator.Estimate(req.ModelID, req.Quantity)

	if err := s.gate.Authorize(estimate.Amount, req.ForceApproved); err != nil {
		s.logger.Info("generation held for approval",
			zap.String("project_id", req.ProjectID),
			zap.String("model_id", req.ModelID),
			zap.Float64("estimated_cost", estimate.Amount))
		return nil, err
	}

	chain := s.registry.FallbackChain(capability, req.Provider)
	if len(chain) == 0 {
		return nil, apperrors.Configuration(
			fmt.Sprintf("no enabled provider for capability %s", capability))
	}

	result, err := s.dispatch(ctx, capability, chain, req)
	if err != nil {
		return nil, err
	}

	key := asset.ObjectKey(req.ProjectID, req.Capability, result.AssetURL)
	durableURL, err := s.pipeline.Secure(ctx, result.AssetURL, key)
	if err != nil {
		// The provider call succeeded and was billed, but the asset was
		// never owned. The request fails; the operator reconciles from logs.
		s.logger.Error("generated asset could not be secured",
			zap.String("project_id", req.ProjectID),
			zap.String("provider", result.Provider),
			zap.String("transient_url", result.AssetURL),
			zap.Error(err))
		return nil, err
	}

	s.record(req, estimate, result.Provider)

	s.m.GenerationSpendUSD.WithLabelValues(result.Provider, req.ModelID).Add(estimate.Amount)

	actualCost := result.ActualCost
	if actualCost == 0 {
		actualCost = estimate.Amount
	}

	return &Response{
		AssetURL:         durableURL,
		Provider:         result.Provider,
		ModelID:          req.ModelID,
		ActualCost:       actualCost,
		EstimatedCost:    estimate.Amount,
		Currency:         estimate.Currency,
		ProcessingTimeMs: result.ProcessingTimeMs,
		Metadata:         result.Metadata,
	}, nil
}

// dispatch walks the fallback chain. Only provider failures advance the
// chain; timeouts and configuration errors surface immediately because a
// second provider would rerun the same long or impossible work.
func (s *Service) dispatch(ctx context.Context, cap provider.Capability, chain []string, req *Request) (*provider.Result, error) {
	var lastErr error

	for _, name := range chain {
		if !s.health.IsHealthy(cap, name) {
			s.logger.Warn("skipping unhealthy provider", zap.String("provider", name))
			continue
		}

		adapter, err := s.adapters.Get(cap, name)
		if err != nil {
			lastErr = err
			continue
		}

		started := time.Now()
		result, err := s.call(ctx, adapter, cap, req)
		duration := time.Since(started).Seconds()

		if err == nil {
			s.m.GenerationRequestsTotal.WithLabelValues(name, string(cap), "success").Inc()
			s.m.GenerationDuration.WithLabelValues(name, string(cap)).Observe(duration)
			return result, nil
		}

		s.m.GenerationRequestsTotal.WithLabelValues(name, string(cap), "error").Inc()

		if !errors.Is(err, apperrors.ErrProvider) {
			return nil, err
		}

		s.logger.Warn("provider failed, trying next in chain",
			zap.String("provider", name),
			zap.Error(err))
		lastErr = err
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, apperrors.Configuration(
		fmt.Sprintf("all providers for capability %s are unhealthy", cap))
}

func (s *Service) call(ctx context.Context, adapter provider.Adapter, cap provider.Capability, req *Request) (*provider.Result, error) {
	switch cap {
	case provider.CapabilityVideo:
		return adapter.GenerateVideo(ctx, &provider.VideoRequest{
			Prompt:          req.Prompt,
			Model:           req.ModelID,
			KeyframeRef:     req.KeyframeRef,
			DurationSeconds: req.DurationSeconds,
			Resolution:      req.Resolution,
			FPS:             req.FPS,
		})
	default:
		return adapter.GenerateImage(ctx, &provider.ImageRequest{
			Prompt:     req.Prompt,
			Model:      req.ModelID,
			Resolution: req.Resolution,
			Quality:    req.Quality,
			Count:      req.Quantity,
		})
	}
}

// record writes the spend to the ledger. Ledger failures never fail the
// generation; the recorder logs and counts them.
func (s *Service) record(req *Request, estimate pricing.Estimate, providerName string) {
	action := ledger.ActionImageGeneration
	if req.Capability == "video" {
		action = ledger.ActionVideoGeneration
	}

	s.recorder.Record(&ledger.Entry{
		ProjectID:  req.ProjectID,
		UserID:     req.UserID,
		ActionType: action,
		ModelID:    req.ModelID,
		Quantity:   req.Quantity,
		Amount:     estimate.Amount,
		Currency:   estimate.Currency,
	})

	s.logger.Info("spend recorded",
		zap.String("project_id", req.ProjectID),
		zap.String("provider", providerName),
		zap.String("action", action),
		zap.Float64("amount", estimate.Amount))
}
