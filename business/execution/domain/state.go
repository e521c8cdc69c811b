// Package domain contains the execution model: trade plans, records, and the
// execution state machine.
package domain

// State is an execution attempt's lifecycle position.
type State string

const (
	// StateDiscovered is the initial state after validation.
	StateDiscovered State = "discovered"
	// StateLocked means the route lock was claimed.
	StateLocked State = "locked"
	// StateSubmitted means the trade left the process.
	StateSubmitted State = "submitted"
	// StateConfirmed is terminal: every leg executed.
	StateConfirmed State = "confirmed"
	// StatePartiallyFailed is terminal: some legs executed, then one failed
	// after funds had moved.
	StatePartiallyFailed State = "partially_failed"
	// StateRejected is terminal: the attempt died before any funds moved.
	StateRejected State = "rejected"
	// StateReleased means the route lock was returned. Always reached from a
	// terminal trade state.
	StateReleased State = "released"
)

var transitions = map[State][]State{
	StateDiscovered:      {StateLocked, StateRejected},
	StateLocked:          {StateSubmitted, StateRejected, StateReleased},
	StateSubmitted:       {StateConfirmed, StatePartiallyFailed, StateRejected},
	StateConfirmed:       {StateReleased},
	StatePartiallyFailed: {StateReleased},
	StateRejected:        {StateReleased},
	StateReleased:        nil,
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s State) CanTransitionTo(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the trade outcome is settled in this state.
func (s State) Terminal() bool {
	switch s {
	case StateConfirmed, StatePartiallyFailed, StateRejected, StateReleased:
		return true
	}
	return false
}
