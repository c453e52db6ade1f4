package queue

import (
	"fmt"

	"github.com/dwsmith1983/narrator/pkg/types"
)

// Transition table: from -> allowed tos. Statuses only move forward.
var validTransitions = map[types.QueueStatus][]types.QueueStatus{
	types.StatusPending:    {types.StatusProcessing},
	types.StatusProcessing: {types.StatusCompleted, types.StatusFailed},
	types.StatusCompleted:  {},
	types.StatusFailed:     {},
}

// CanTransition checks if moving an item between two statuses is valid.
func CanTransition(from, to types.QueueStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error if the transition is invalid.
func ValidateTransition(from, to types.QueueStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid queue transition from %s to %s", from, to)
	}
	return nil
}
