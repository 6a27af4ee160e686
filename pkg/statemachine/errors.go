package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("statemachine: transition requires from, to, and event")
	ErrInvalidEvent      = errors.New("statemachine: event must not be empty")
)

// NoTransitionError reports an event fired in a state with no matching
// transition.
type NoTransitionError struct {
	State string
	Event string
}

func (e NoTransitionError) Error() string {
	return fmt.Sprintf("statemachine: no transition from %q on %q", e.State, e.Event)
}

// RejectedError reports an event whose transitions all failed guards.
type RejectedError struct {
	State string
	Event string
}

func (e RejectedError) Error() string {
	return fmt.Sprintf("statemachine: transition from %q on %q rejected by guard", e.State, e.Event)
}
