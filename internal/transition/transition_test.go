package transition_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kore-service/internal/transition"
)

var allStatuses = []string{
	transition.StatusInitiated,
	transition.StatusPending,
	transition.StatusProcessing,
	transition.StatusSuccess,
	transition.StatusFailed,
}

func TestShouldApply_Monotonicity(t *testing.T) {
	for _, current := range allStatuses {
		for _, proposed := range allStatuses {
			got := transition.ShouldApply(current, proposed, false)

			var want bool
			switch {
			case current == proposed:
				want = true
			case transition.IsTerminal(current):
				want = false
			default:
				want = transition.Rank(proposed) >= transition.Rank(current)
			}

			assert.Equal(t, want, got, "current=%s proposed=%s", current, proposed)
		}
	}
}

func TestShouldApply_TerminalProtection(t *testing.T) {
	assert.False(t, transition.ShouldApply("SUCCESS", "PENDING", false))
	assert.False(t, transition.ShouldApply("SUCCESS", "FAILED", false))
	assert.False(t, transition.ShouldApply("FAILED", "SUCCESS", false))
	assert.False(t, transition.ShouldApply("FAILED", "PROCESSING", false))

	// Idempotent re-delivery of the same terminal status is fine.
	assert.True(t, transition.ShouldApply("SUCCESS", "SUCCESS", false))
	assert.True(t, transition.ShouldApply("FAILED", "FAILED", false))
}

func TestShouldApply_ForwardProgression(t *testing.T) {
	assert.True(t, transition.ShouldApply("INITIATED", "PENDING", false))
	assert.True(t, transition.ShouldApply("INITIATED", "SUCCESS", false))
	assert.True(t, transition.ShouldApply("PENDING", "PROCESSING", false))
	assert.True(t, transition.ShouldApply("PROCESSING", "FAILED", false))

	assert.False(t, transition.ShouldApply("PROCESSING", "PENDING", false))
	assert.False(t, transition.ShouldApply("PENDING", "INITIATED", false))
}

func TestShouldApply_Override(t *testing.T) {
	for _, current := range allStatuses {
		for _, proposed := range allStatuses {
			assert.True(t, transition.ShouldApply(current, proposed, true),
				"override must allow current=%s proposed=%s", current, proposed)
		}
	}
}

func TestShouldApply_OrderingCommutativity(t *testing.T) {
	// Whichever order a SUCCESS and a PENDING delivery arrive in, the final
	// status is SUCCESS: PENDING-after-SUCCESS is rejected, and
	// SUCCESS-after-PENDING is accepted.
	assert.True(t, transition.ShouldApply("PENDING", "SUCCESS", false))
	assert.False(t, transition.ShouldApply("SUCCESS", "PENDING", false))
}

func TestUpdateFields(t *testing.T) {
	fields := transition.UpdateFields("INITIATED", "PENDING", false)
	assert.Equal(t, map[string]string{"status": "PENDING"}, fields)

	fields = transition.UpdateFields("SUCCESS", "PENDING", false)
	assert.Empty(t, fields)

	fields = transition.UpdateFields("SUCCESS", "FAILED", true)
	assert.Equal(t, map[string]string{"status": "FAILED"}, fields)

	fields = transition.UpdateFields("PENDING", "PENDING", false)
	assert.Equal(t, map[string]string{"status": "PENDING"}, fields)
}
