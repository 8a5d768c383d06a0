// Package status maps provider-specific transaction status strings onto the
// internal vocabulary and flags statuses that require additional validation
// (OTP, challenge responses).
package status

import (
	"strings"

	"kore-service/internal/config"
	"kore-service/internal/transition"
)

// Mapping is the normalization result for a single provider status string.
type Mapping struct {
	Status          string
	NeedsValidation bool
}

// defaultTable covers the provider vocabularies seen in production. Keys are
// uppercase; lookup is case-insensitive.
var defaultTable = map[string]Mapping{
	// Success indicators
	"SUCCESS":    {transition.StatusSuccess, false},
	"SUCCESSFUL": {transition.StatusSuccess, false},
	"COMPLETED":  {transition.StatusSuccess, false},
	"APPROVED":   {transition.StatusSuccess, false},
	"CONFIRMED":  {transition.StatusSuccess, false},
	"SETTLED":    {transition.StatusSuccess, false},
	"PAID":       {transition.StatusSuccess, false},
	"PROCESSED":  {transition.StatusSuccess, false},

	// Failure indicators
	"FAILED":    {transition.StatusFailed, false},
	"ERROR":     {transition.StatusFailed, false},
	"DECLINED":  {transition.StatusFailed, false},
	"REJECTED":  {transition.StatusFailed, false},
	"CANCELLED": {transition.StatusFailed, false},
	"TIMEOUT":   {transition.StatusFailed, false},
	"EXPIRED":   {transition.StatusFailed, false},
	"ABORTED":   {transition.StatusFailed, false},
	"INVALID":   {transition.StatusFailed, false},

	// Pending indicators
	"PENDING":     {transition.StatusPending, false},
	"PROCESSING":  {transition.StatusPending, false},
	"INITIATED":   {transition.StatusPending, false},
	"IN_PROGRESS": {transition.StatusPending, false},
	"AWAITING":    {transition.StatusPending, false},
	"QUEUED":      {transition.StatusPending, false},

	// OTP / validation required
	"WAITINGFOROTP":       {transition.StatusPending, true},
	"WAITING_FOR_OTP":     {transition.StatusPending, true},
	"OTP_PENDING":         {transition.StatusPending, true},
	"PENDINGVALIDATION":   {transition.StatusPending, true},
	"PENDING_VALIDATION":  {transition.StatusPending, true},
	"VALIDATION_REQUIRED": {transition.StatusPending, true},
	"AWAITING_VALIDATION": {transition.StatusPending, true},
	"REQUIRES_OTP":        {transition.StatusPending, true},
	"OTP_REQUIRED":        {transition.StatusPending, true},
}

// Normalizer resolves raw provider statuses against a mapping table fixed at
// construction time. There is no package-level mutable state; callers that
// need provider-specific vocabularies inject overrides.
type Normalizer struct {
	table map[string]Mapping
}

// NewNormalizer returns a Normalizer using the built-in table.
func NewNormalizer() *Normalizer {
	return &Normalizer{table: defaultTable}
}

// NewNormalizerWithOverrides layers config-supplied entries over the built-in
// table, so new provider status strings are a config change, not a code
// change.
func NewNormalizerWithOverrides(overrides []config.StatusMapping) *Normalizer {
	if len(overrides) == 0 {
		return NewNormalizer()
	}

	table := make(map[string]Mapping, len(defaultTable)+len(overrides))
	for k, v := range defaultTable {
		table[k] = v
	}
	for _, o := range overrides {
		key := strings.ToUpper(strings.TrimSpace(o.Raw))
		if key == "" {
			continue
		}
		table[key] = Mapping{Status: o.Status, NeedsValidation: o.NeedsValidation}
	}

	return &Normalizer{table: table}
}

// Normalize maps a raw provider status to the internal status and a flag for
// whether validation (OTP etc.) is still required.
//
// Empty and unrecognized input normalizes to PENDING with no validation flag.
// Unknown strings must never guess SUCCESS or FAILED: a wrong terminal guess
// would freeze the collection, while PENDING stays open for the next webhook.
func (n *Normalizer) Normalize(raw string) (string, bool) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if key == "" {
		return transition.StatusPending, false
	}

	if m, ok := n.table[key]; ok {
		return m.Status, m.NeedsValidation
	}

	return transition.StatusPending, false
}
