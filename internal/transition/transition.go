// Package transition decides whether a webhook-driven status change may be
// applied to a collection. The rules are forward-only: a record never moves
// to a lower-ranked status, and terminal statuses are immutable unless the
// caller explicitly overrides.
//
// These functions are pure. They are the correctness backstop for webhook
// processing: even when the distributed lock runs in its no-op fallback mode
// and deliveries interleave, the forward-only rule guarantees the persisted
// status never regresses, whichever order updates arrive in.
package transition

// Collection statuses, ascending rank. SUCCESS and FAILED share the top rank
// and are both terminal.
const (
	StatusInitiated  = "INITIATED"
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusSuccess    = "SUCCESS"
	StatusFailed     = "FAILED"
)

var statusRank = map[string]int{
	StatusInitiated:  1,
	StatusPending:    2,
	StatusProcessing: 3,
	StatusSuccess:    4,
	StatusFailed:     4,
}

var terminalStatuses = map[string]bool{
	StatusSuccess: true,
	StatusFailed:  true,
}

// IsTerminal reports whether status accepts no further webhook-driven
// transitions.
func IsTerminal(status string) bool {
	return terminalStatuses[status]
}

// Rank returns the position of status in the hierarchy, or 0 for unknown
// statuses.
func Rank(status string) int {
	return statusRank[status]
}

// ShouldApply reports whether a record currently in current may move to
// proposed. Rules, in order:
//
//  1. allowOverride permits any transition (manual correction escape hatch).
//  2. Equal statuses are always allowed (idempotent re-delivery).
//  3. Terminal current statuses reject every differing proposal.
//  4. Otherwise forward or same-rank progression only.
func ShouldApply(current, proposed string, allowOverride bool) bool {
	if allowOverride {
		return true
	}

	if current == proposed {
		return true
	}

	if terminalStatuses[current] {
		return false
	}

	return statusRank[proposed] >= statusRank[current]
}

// UpdateFields returns the field changes to persist for the proposed
// transition, or an empty map when the transition is rejected. Callers apply
// the map unconditionally instead of branching on ShouldApply themselves.
func UpdateFields(current, proposed string, allowOverride bool) map[string]string {
	if !ShouldApply(current, proposed, allowOverride) {
		return map[string]string{}
	}

	return map[string]string{"status": proposed}
}
