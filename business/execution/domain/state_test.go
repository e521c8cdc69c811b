package domain

import "testing"

func TestState_Transitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"discovered_to_locked", StateDiscovered, StateLocked, true},
		{"discovered_to_rejected", StateDiscovered, StateRejected, true},
		{"discovered_skips_submitted", StateDiscovered, StateSubmitted, false},
		{"locked_to_submitted", StateLocked, StateSubmitted, true},
		{"locked_to_released", StateLocked, StateReleased, true},
		{"submitted_to_confirmed", StateSubmitted, StateConfirmed, true},
		{"submitted_to_partial", StateSubmitted, StatePartiallyFailed, true},
		{"submitted_back_to_locked", StateSubmitted, StateLocked, false},
		{"confirmed_to_released", StateConfirmed, StateReleased, true},
		{"confirmed_to_submitted", StateConfirmed, StateSubmitted, false},
		{"released_is_final", StateReleased, StateDiscovered, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestState_Terminal(t *testing.T) {
	terminal := []State{StateConfirmed, StatePartiallyFailed, StateRejected, StateReleased}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	live := []State{StateDiscovered, StateLocked, StateSubmitted}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
