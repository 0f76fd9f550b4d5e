package webhook

import (
	"fmt"
	"slices"
)

// State is the lifecycle position of a delivery.
type State string

const (
	StatePending       State = "pending"
	StateAttempting    State = "attempting"
	StateSucceeded     State = "succeeded"
	StateAwaitingRetry State = "awaiting_retry"
	StateExhausted     State = "exhausted"
)

// transitions lists the allowed moves. Succeeded and Exhausted have none.
var transitions = map[State][]State{
	StatePending:       {StateAttempting},
	StateAwaitingRetry: {StateAttempting},
	StateAttempting:    {StateSucceeded, StateAwaitingRetry, StateExhausted},
}

func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether no further invocation may follow.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateExhausted
}

// CanTransitionTo reports whether s -> next is a legal move.
func (s State) CanTransitionTo(next State) bool {
	return slices.Contains(transitions[s.normalize()], next)
}

func (s State) normalize() State {
	if s == "" {
		return StatePending
	}
	return s
}

// transitionError mirrors the shape of a rejected state machine event.
func transitionError(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from.normalize(), to)
}
