package status_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kore-service/internal/config"
	"kore-service/internal/status"
)

func TestNormalize_Aliases(t *testing.T) {
	n := status.NewNormalizer()

	tests := []struct {
		raw             string
		status          string
		needsValidation bool
	}{
		{"success", "SUCCESS", false},
		{"SUCCESS", "SUCCESS", false},
		{"Successful", "SUCCESS", false},
		{"completed", "SUCCESS", false},
		{"approved", "SUCCESS", false},
		{"settled", "SUCCESS", false},
		{"paid", "SUCCESS", false},

		{"failed", "FAILED", false},
		{"DECLINED", "FAILED", false},
		{"error", "FAILED", false},
		{"rejected", "FAILED", false},
		{"cancelled", "FAILED", false},
		{"timeout", "FAILED", false},
		{"expired", "FAILED", false},

		{"pending", "PENDING", false},
		{"processing", "PENDING", false},
		{"initiated", "PENDING", false},
		{"in_progress", "PENDING", false},
		{"queued", "PENDING", false},

		{"WaitingForOTP", "PENDING", true},
		{"waiting_for_otp", "PENDING", true},
		{"pending_validation", "PENDING", true},
		{"PendingValidation", "PENDING", true},
		{"otp_required", "PENDING", true},
		{"requires_otp", "PENDING", true},
		{"validation_required", "PENDING", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			s, needsValidation := n.Normalize(tt.raw)
			assert.Equal(t, tt.status, s)
			assert.Equal(t, tt.needsValidation, needsValidation)
		})
	}
}

func TestNormalize_UnknownAndEmpty(t *testing.T) {
	n := status.NewNormalizer()

	// Unknown input must never guess a terminal status.
	for _, raw := range []string{"", "   ", "gibberish", "SUCCESSISH", "0"} {
		s, needsValidation := n.Normalize(raw)
		assert.Equal(t, "PENDING", s, "raw=%q", raw)
		assert.False(t, needsValidation, "raw=%q", raw)
	}
}

func TestNormalize_SurroundingWhitespace(t *testing.T) {
	n := status.NewNormalizer()

	s, _ := n.Normalize("  success  ")
	assert.Equal(t, "SUCCESS", s)
}

func TestNormalize_ConfigOverrides(t *testing.T) {
	n := status.NewNormalizerWithOverrides([]config.StatusMapping{
		{Raw: "ProviderSpecificOk", Status: "SUCCESS"},
		{Raw: "challenge_issued", Status: "PENDING", NeedsValidation: true},
		// Overrides can also replace built-in entries.
		{Raw: "cancelled", Status: "PENDING"},
	})

	s, needsValidation := n.Normalize("providerspecificok")
	assert.Equal(t, "SUCCESS", s)
	assert.False(t, needsValidation)

	s, needsValidation = n.Normalize("CHALLENGE_ISSUED")
	assert.Equal(t, "PENDING", s)
	assert.True(t, needsValidation)

	s, _ = n.Normalize("cancelled")
	assert.Equal(t, "PENDING", s)

	// Built-in entries not overridden still resolve.
	s, _ = n.Normalize("declined")
	assert.Equal(t, "FAILED", s)
}
