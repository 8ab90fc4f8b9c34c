package user

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a virtual user.
type State int32

const (
	// StateInit is the state of a freshly created user.
	StateInit State = iota
	// StateProvisioning indicates credentials exist and registration is in flight.
	StateProvisioning
	// StateAuthenticating indicates the user is logging in.
	StateAuthenticating
	// StateProfiling indicates the user is creating and fetching its profile.
	StateProfiling
	// StateActive indicates the user is running weighted tasks.
	StateActive
	// StateStopped is terminal; the run asked the user to stop.
	StateStopped
	// StateFailed is terminal; the user could not authenticate or set itself up.
	StateFailed
)

// States lists every state in lifecycle order.
var States = []State{
	StateInit,
	StateProvisioning,
	StateAuthenticating,
	StateProfiling,
	StateActive,
	StateStopped,
	StateFailed,
}

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateProvisioning:
		return "PROVISIONING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateProfiling:
		return "PROFILING"
	case StateActive:
		return "ACTIVE"
	case StateStopped:
		return "STOPPED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// ErrIllegalTransition is returned when a lifecycle move is not in the transition table.
var ErrIllegalTransition = errors.New("illegal state transition")

// Any non-terminal state may move to StateStopped; that edge is implicit.
var transitions = map[State][]State{
	StateInit:           {StateProvisioning},
	StateProvisioning:   {StateAuthenticating},
	StateAuthenticating: {StateProfiling, StateFailed},
	StateProfiling:      {StateActive, StateFailed},
	StateActive:         {},
}

// CanTransition reports whether the lifecycle allows moving from one state to another.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateStopped {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func transitionError(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
