package callsession

import "testing"

func TestStateTransitions(t *testing.T) {
	allowed := []struct{ from, to State }{
		{StateIdle, StateInitializing},
		{StateInitializing, StateRinging},
		{StateInitializing, StateError},
		{StateRinging, StateInCall},
		{StateRinging, StateEnding},
		{StateInCall, StateEnding},
		{StateInCall, StateError},
		{StateError, StateEnding},
		{StateError, StateEnded},
		{StateEnding, StateEnded},
	}
	for _, tr := range allowed {
		if !tr.from.CanTransitionTo(tr.to) {
			t.Errorf("%s -> %s should be allowed", tr.from, tr.to)
		}
	}

	forbidden := []struct{ from, to State }{
		{StateIdle, StateInCall},
		{StateRinging, StateIdle},
		{StateInCall, StateRinging},
		{StateEnded, StateEnding},
		{StateEnded, StateInitializing},
		{StateEnding, StateInCall},
	}
	for _, tr := range forbidden {
		if tr.from.CanTransitionTo(tr.to) {
			t.Errorf("%s -> %s should be forbidden", tr.from, tr.to)
		}
	}
}

func TestStateTerminal(t *testing.T) {
	if !StateEnded.IsTerminal() {
		t.Fatalf("ended should be terminal")
	}
	for _, s := range []State{StateIdle, StateInitializing, StateRinging, StateInCall, StateEnding, StateError} {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}
