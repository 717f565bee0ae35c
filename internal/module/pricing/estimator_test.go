package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reelforge/server/internal/shared/config"
)

func testEstimator() *Estimator {
	cfg := &config.PricingConfig{
		DefaultUnitPrice: 0.05,
		Currency:         "USD",
		Models: []config.PricingModel{
			{Model: "dall-e-3", Unit: "per_item", UnitPrice: 0.08},
			{Model: "gen4_turbo", Unit: "per_duration", UnitPrice: 0.25, AvgDurationSeconds: 10},
			{Model: "freebie", Unit: "per_item", UnitPrice: 0},
		},
	}
	return NewEstimator(NewRegistry(cfg), cfg.DefaultUnitPrice, cfg.Currency, nil)
}

func TestEstimatePerItem(t *testing.T) {
	e := testEstimator()

	est := e.Estimate("dall-e-3", 1)
	assert.InDelta(t, 0.08, est.Amount, 1e-9)
	assert.Equal(t, UnitPerItem, est.Unit)
	assert.Equal(t, "USD", est.Currency)

	est = e.Estimate("dall-e-3", 3)
	assert.InDelta(t, 0.24, est.Amount, 1e-9)
}

func TestEstimatePerDuration(t *testing.T) {
	e := testEstimator()

	est := e.Estimate("gen4_turbo", 1)
	assert.InDelta(t, 2.50, est.Amount, 1e-9)
	assert.Equal(t, UnitPerDuration, est.Unit)
	assert.Equal(t, 10.0, est.Factors["avg_duration_seconds"])
}

func TestEstimateUnknownModelFallsBack(t *testing.T) {
	e := testEstimator()

	est := e.Estimate("never-heard-of-it", 2)
	assert.InDelta(t, 0.10, est.Amount, 1e-9)
	assert.Equal(t, true, est.Factors["fallback"])
}

func TestEstimateDeterministic(t *testing.T) {
	e := testEstimator()

	first := e.Estimate("gen4_turbo", 4)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first.Amount, e.Estimate("gen4_turbo", 4).Amount)
	}
}

func TestEstimateQuantityFloor(t *testing.T) {
	e := testEstimator()

	assert.InDelta(t, 0.08, e.Estimate("dall-e-3", 0).Amount, 1e-9)
	assert.InDelta(t, 0.08, e.Estimate("dall-e-3", -5).Amount, 1e-9)
}

func TestEstimateNeverNegative(t *testing.T) {
	cfg := &config.PricingConfig{
		DefaultUnitPrice: 0.05,
		Currency:         "USD",
		Models: []config.PricingModel{
			{Model: "misconfigured", Unit: "per_item", UnitPrice: -1},
		},
	}
	e := NewEstimator(NewRegistry(cfg), cfg.DefaultUnitPrice, cfg.Currency, nil)

	assert.Equal(t, 0.0, e.Estimate("misconfigured", 3).Amount)
}

func TestEstimateZeroPrice(t *testing.T) {
	e := testEstimator()
	assert.Equal(t, 0.0, e.Estimate("freebie", 10).Amount)
}

func TestEstimateRounding(t *testing.T) {
	cfg := &config.PricingConfig{
		DefaultUnitPrice: 0.05,
		Currency:         "USD",
		Models: []config.PricingModel{
			{Model: "fractional", Unit: "per_item", UnitPrice: 0.00333333},
		},
	}
	e := NewEstimator(NewRegistry(cfg), cfg.DefaultUnitPrice, cfg.Currency, nil)

	assert.InDelta(t, 0.01, e.Estimate("fractional", 3).Amount, 1e-9)
}
