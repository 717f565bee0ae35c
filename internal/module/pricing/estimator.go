package pricing

import (
	"math"

	"go.uber.org/zap"
)

// Estimator turns a (model, quantity) pair into a deterministic cost estimate.
type Estimator struct {
	registry     *Registry
	defaultPrice float64
	currency     string
	logger       *zap.Logger
}

// NewEstimator creates a new cost estimator. Unknown models fall back to
// defaultPrice per item so generation is never blocked by an unpriced model.
func NewEstimator(registry *Registry, defaultPrice float64, currency string, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if currency == "" {
		currency = "USD"
	}
	return &Estimator{
		registry:     registry,
		defaultPrice: defaultPrice,
		currency:     currency,
		logger:       logger.Named("pricing"),
	}
}

// Estimate computes the cost of running modelID quantity times. The result is
// never negative and is rounded to 4 decimal places to avoid ledger drift.
func (e *Estimator) Estimate(modelID string, quantity int) Estimate {
	if quantity < 1 {
		quantity = 1
	}

	entry, ok := e.registry.Lookup(modelID)
	if !ok {
		e.logger.Warn("no pricing entry for model, using default price",
			zap.String("model", modelID),
			zap.Float64("default_price", e.defaultPrice))
		return Estimate{
			ModelID:  modelID,
			Amount:   round4(e.defaultPrice * float64(quantity)),
			Currency: e.currency,
			Unit:     UnitPerItem,
			Factors: map[string]any{
				"fallback":   true,
				"quantity":   quantity,
				"unit_price": e.defaultPrice,
			},
		}
	}

	var amount float64
	factors := map[string]any{
		"quantity":   quantity,
		"unit_price": entry.UnitPrice,
	}

	switch entry.Unit {
	case UnitPerDuration:
		amount = entry.UnitPrice * entry.AvgDurationSeconds * float64(quantity)
		factors["avg_duration_seconds"] = entry.AvgDurationSeconds
	default:
		amount = entry.UnitPrice * float64(quantity)
	}

	return Estimate{
		ModelID:  modelID,
		Amount:   round4(amount),
		Currency: e.currency,
		Unit:     entry.Unit,
		Factors:  factors,
	}
}

// round4 rounds to 4 decimal places, clamping negatives to zero.
func round4(v float64) float64 {
	if v < 0 {
		return 0
	}
	return math.Round(v*10000) / 10000
}
