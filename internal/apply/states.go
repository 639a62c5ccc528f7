// Package apply tracks each scheduled send through its lifecycle.
//
// Valid state graph:
//
//	PLANNED ──► SENDING ──► SENT
//	               │
//	               └──────► FAILED
//
// SENT and FAILED are terminal states.
package apply

import "fmt"

// State is the lifecycle state of one scheduled send.
type State string

const (
	StatePlanned State = "PLANNED"
	StateSending State = "SENDING"
	StateSent    State = "SENT"
	StateFailed  State = "FAILED"

	// StateDropped is never held by a tracked record. It marks a PLANNED item
	// removed from the plan in journals and event streams.
	StateDropped State = "DROPPED"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[State][]State{
	StatePlanned: {StateSending},
	StateSending: {StateSent, StateFailed},
	// SENT and FAILED are terminal: no outgoing transitions
}

// ParseState converts a raw string to a State, returning an error for
// unknown values.
func ParseState(s string) (State, error) {
	st := State(s)
	switch st {
	case StatePlanned, StateSending, StateSent, StateFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown apply state %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted by the
// state machine.
func IsTransitionAllowed(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal state, no outgoing transitions
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for SENT and FAILED.
func IsTerminal(s State) bool { return s == StateSent || s == StateFailed }
