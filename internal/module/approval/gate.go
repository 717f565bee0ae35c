// Package approval enforces human sign-off above a spend threshold.
package approval

import (
	apperrors "github.com/reelforge/server/internal/shared/errors"
)

// Gate is the silent-spend guardrail. It is pure and synchronous: it cannot
// fail for infrastructural reasons.
type Gate struct {
	threshold float64
}

// NewGate creates a gate with a fixed spend threshold.
func NewGate(threshold float64) *Gate {
	return &Gate{threshold: threshold}
}

// Threshold returns the configured silent-spend ceiling.
func (g *Gate) Threshold() float64 {
	return g.threshold
}

// Authorize validates an estimated spend. Above threshold and without prior
// approval it returns *apperrors.RequiresApproval carrying the exact amount,
// the only channel through which spend reaches a human decision point.
func (g *Gate) Authorize(estimated float64, approved bool) error {
	if estimated <= g.threshold {
		return nil
	}
	if approved {
		return nil
	}
	return &apperrors.RequiresApproval{EstimatedCost: estimated}
}
