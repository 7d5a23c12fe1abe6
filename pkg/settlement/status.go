package settlement

import "strings"

// Status is the canonical client-side progress of a settlement. The backend
// uses flow-specific vocabulary; raw statuses are mapped into this ordering
// before display so the timeline never regresses.
type Status int

const (
	StatusPending Status = iota
	StatusReceived
	StatusSold
	StatusCompleted

	// StatusFailed is terminal and reachable from any non-terminal state.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusReceived:
		return "RECEIVED"
	case StatusSold:
		return "SOLD"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Before reports whether s comes earlier than other in the canonical
// progression. Failed is not part of the progression and is never "before".
func (s Status) Before(other Status) bool {
	if s == StatusFailed || other == StatusFailed {
		return false
	}
	return s < other
}

// MapRawStatus normalizes a backend status string into the canonical set.
// The backend vocabulary differs between the buy and sell flows; both are
// handled here. ok is false for unrecognized strings, in which case the
// caller holds the last known canonical status rather than guessing.
func MapRawStatus(raw string) (Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING", "CREATED", "AWAITING_DEPOSIT", "WAITING_DEPOSIT", "WAITING_PAYMENT":
		return StatusPending, true
	case "RECEIVED", "DEPOSIT_RECEIVED", "DEPOSIT_CONFIRMED", "CONFIRMED", "PAID":
		return StatusReceived, true
	case "SOLD", "CRYPTO_SOLD", "SWAPPED", "CONVERTED", "EXCHANGED":
		return StatusSold, true
	case "COMPLETED", "COMPLETE", "SUCCESS", "DONE", "FINISHED":
		return StatusCompleted, true
	case "FAILED", "ERROR", "REJECTED", "EXPIRED", "REFUNDED", "CANCELLED", "CANCELED":
		return StatusFailed, true
	default:
		return StatusPending, false
	}
}

// Advance applies the monotonic display rule: a mapped status that is behind
// the currently displayed one is ignored (out-of-order poll responses), and a
// completed settlement can never flip to failed afterwards. It returns the
// status to display and whether it changed.
func Advance(current, mapped Status) (Status, bool) {
	if current.Terminal() {
		return current, false
	}
	if mapped == StatusFailed {
		return StatusFailed, true
	}
	if current.Before(mapped) {
		return mapped, true
	}
	return current, false
}
