package poller

import (
	"errors"
	"slices"
)

// State is the lifecycle state of a chain poller.
type State string

const (
	StateIdle      State = "idle"
	StateConnected State = "connected"
	StateScanning  State = "scanning"
	StateSleeping  State = "sleeping"
	StateStopped   State = "stopped"
)

// AllStates lists every state, used for the one-hot state gauge.
var AllStates = []State{StateIdle, StateConnected, StateScanning, StateSleeping, StateStopped}

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
var ValidTransitions = map[State][]State{
	StateIdle:      {StateConnected, StateStopped},
	StateConnected: {StateScanning, StateStopped},
	StateScanning:  {StateSleeping, StateStopped},
	StateSleeping:  {StateScanning, StateStopped},
	StateStopped:   {},
}

// CanTransition checks if a transition from one state to another is valid.
// Staying in the same state is always allowed.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	return slices.Contains(ValidTransitions[from], to)
}

// Description returns a human-readable description of a state.
func (s State) Description() string {
	switch s {
	case StateIdle:
		return "Waiting for the chain head"
	case StateConnected:
		return "Chain reachable, cursor loaded"
	case StateScanning:
		return "Processing new blocks"
	case StateSleeping:
		return "Waiting for the next cycle"
	case StateStopped:
		return "Stopped"
	}
	return "Unknown state"
}
