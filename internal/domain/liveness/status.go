package liveness

import "fmt"

// Status is the debounced liveness of a device.
type Status string

const (
	// StatusUnknown is the status of a device that has not met either threshold yet.
	StatusUnknown Status = "UNKNOWN"
	// StatusUp means the device answered upThreshold consecutive probes.
	StatusUp Status = "UP"
	// StatusDown means the device missed downThreshold consecutive probes.
	StatusDown Status = "DOWN"
)

// ParseStatus converts a persisted string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusUnknown, StatusUp, StatusDown:
		return Status(s), nil
	case "":
		return StatusUnknown, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// CanTransition reports whether the state machine allows moving from one status to another.
// UNKNOWN is only ever a starting point.
func CanTransition(from, to Status) bool {
	switch {
	case from == StatusUnknown:
		return to == StatusUp || to == StatusDown
	case from == StatusUp:
		return to == StatusDown
	case from == StatusDown:
		return to == StatusUp
	default:
		return false
	}
}

// Emoji returns the marker used in chat summaries.
func (s Status) Emoji() string {
	switch s {
	case StatusUp:
		return "✅"
	case StatusDown:
		return "❌"
	default:
		return "❔"
	}
}
