package push

import "fmt"

// State is the connection supervisor's position in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateDraining
	StateClosed
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	case StateShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// transitions lists the legal successors of each state.
// Connecting -> Connecting is a retry after a failed dial.
var transitions = map[State][]State{
	StateIdle:       {StateConnecting, StateShutdown},
	StateConnecting: {StateConnecting, StateActive, StateShutdown},
	StateActive:     {StateDraining},
	StateDraining:   {StateClosed},
	StateClosed:     {StateConnecting, StateShutdown},
	StateShutdown:   nil,
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
