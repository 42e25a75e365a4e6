package callsession

import "fmt"

// State is the local lifecycle position of one call session. It is distinct
// from the remote record status: the record is an input signal, State is what
// the session derives from it.
type State int

const (
	// StateIdle is before the session has been started or attached.
	StateIdle State = iota
	// StateInitializing is while participants are being resolved.
	StateInitializing
	// StateRinging is while waiting for accept/decline.
	StateRinging
	// StateInCall is after media connected.
	StateInCall
	// StateEnding is while teardown runs.
	StateEnding
	// StateEnded is the final state.
	StateEnded
	// StateError is a fault (e.g. transport join failure) on its way to teardown.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRinging:
		return "ringing"
	case StateInCall:
		return "in_call"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// validTransitions defines which local state transitions are allowed.
var validTransitions = map[State][]State{
	StateIdle:         {StateInitializing},
	StateInitializing: {StateRinging, StateEnding, StateError},
	StateRinging:      {StateInCall, StateEnding, StateError},
	StateInCall:       {StateEnding, StateError},
	StateError:        {StateEnding, StateEnded},
	StateEnding:       {StateEnded},
	StateEnded:        {}, // terminal, no transitions allowed
}

// CanTransitionTo checks if a transition from s to next is valid.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is the final local state.
func (s State) IsTerminal() bool {
	return s == StateEnded
}

// Role is the session's side of the call. The caller is the charged party.
type Role int

const (
	RoleCaller Role = iota
	RoleCallee
)

func (r Role) String() string {
	if r == RoleCallee {
		return "callee"
	}
	return "caller"
}

// EndReason is the short user-visible reason shown on every terminal path.
type EndReason string

const (
	ReasonEnded      EndReason = "Call Ended"
	ReasonRejected   EndReason = "Call Rejected"
	ReasonTimeout    EndReason = "Call Timed Out"
	ReasonOutOfCoins EndReason = "You have run out of coins"
	ReasonRemoteLeft EndReason = "Other user left"
	ReasonJoinFailed EndReason = "Could not connect"
	ReasonGone       EndReason = "Call no longer exists"
)
