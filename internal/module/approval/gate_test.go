package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/reelforge/server/internal/shared/errors"
)

func TestAuthorize(t *testing.T) {
	gate := NewGate(1.00)

	t.Run("under threshold passes silently", func(t *testing.T) {
		assert.NoError(t, gate.Authorize(0.08, false))
	})

	t.Run("exactly at threshold passes", func(t *testing.T) {
		assert.NoError(t, gate.Authorize(1.00, false))
	})

	t.Run("over threshold without approval is held", func(t *testing.T) {
		err := gate.Authorize(2.50, false)
		require.Error(t, err)

		var approvalErr *apperrors.RequiresApproval
		require.ErrorAs(t, err, &approvalErr)
		assert.InDelta(t, 2.50, approvalErr.EstimatedCost, 1e-9)
	})

	t.Run("over threshold with approval passes", func(t *testing.T) {
		assert.NoError(t, gate.Authorize(2.50, true))
	})

	t.Run("zero cost always passes", func(t *testing.T) {
		assert.NoError(t, gate.Authorize(0, false))
	})
}

func TestZeroThresholdHoldsEverything(t *testing.T) {
	gate := NewGate(0)

	err := gate.Authorize(0.01, false)
	require.Error(t, err)
	assert.NoError(t, gate.Authorize(0.01, true))
}
