package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// State and Event are plain string names; the session defines its own
// constants for them.
type (
	State string
	Event string
)

// Guard decides whether a transition may run.
type Guard func(ctx context.Context, from State, event Event, data any) bool

// Action runs while a transition is being taken. An error aborts the
// transition and leaves the machine in its current state.
type Action func(ctx context.Context, from, to State, event Event, data any) error

// Transition is one row of the table.
type Transition struct {
	From    State
	To      State
	Event   Event
	Guards  []Guard
	Actions []Action
}

// Machine is a guarded transition table with a current state. Safe for
// concurrent use; Fire serializes transitions.
type Machine struct {
	mu      sync.RWMutex
	initial State
	current State
	// transitions[from][event] lists candidate rows in insert order.
	transitions map[State]map[Event][]Transition
}

// New creates a machine resting in the initial state.
func New(initial State) *Machine {
	return &Machine{
		initial:     initial,
		current:     initial,
		transitions: make(map[State]map[Event][]Transition),
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// AddTransition registers a row. Multiple rows for the same from/event
// pair are tried in registration order; the first whose guards all pass
// wins.
func (m *Machine) AddTransition(t Transition) error {
	if t.From == "" || t.To == "" || t.Event == "" {
		return ErrInvalidTransition
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transitions[t.From] == nil {
		m.transitions[t.From] = make(map[Event][]Transition)
	}
	m.transitions[t.From][t.Event] = append(m.transitions[t.From][t.Event], t)
	return nil
}

// Fire triggers an event, running the first guard-passing transition's
// actions and moving the current state. Actions run with the machine
// locked, so they must not re-enter Fire.
func (m *Machine) Fire(ctx context.Context, event Event, data any) error {
	if event == "" {
		return ErrInvalidEvent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := m.transitions[m.current][event]
	if len(candidates) == 0 {
		return NoTransitionError{State: string(m.current), Event: string(event)}
	}

	var chosen *Transition
	for i := range candidates {
		if guardsPass(ctx, m.current, candidates[i], event, data) {
			chosen = &candidates[i]
			break
		}
	}
	if chosen == nil {
		return RejectedError{State: string(m.current), Event: string(event)}
	}

	for _, action := range chosen.Actions {
		if action == nil {
			continue
		}
		if err := action(ctx, m.current, chosen.To, event, data); err != nil {
			return fmt.Errorf("statemachine: action on %q failed: %w", event, err)
		}
	}

	m.current = chosen.To
	return nil
}

// CanFire reports whether the event has a guard-passing transition from
// the current state.
func (m *Machine) CanFire(ctx context.Context, event Event, data any) bool {
	if event == "" {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.transitions[m.current][event] {
		if guardsPass(ctx, m.current, t, event, data) {
			return true
		}
	}
	return false
}

// Reset returns the machine to its initial state without running any
// actions.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.initial
}

// Set forces the current state. Used for fallbacks that are legal from
// every state, like a socket error dropping the session.
func (m *Machine) Set(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = s
}

func guardsPass(ctx context.Context, from State, t Transition, event Event, data any) bool {
	for _, guard := range t.Guards {
		if guard != nil && !guard(ctx, from, event, data) {
			return false
		}
	}
	return true
}
