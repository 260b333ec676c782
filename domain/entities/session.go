package entities

import "fmt"

// SessionStatus represents the lifecycle state of a voice session
type SessionStatus string

const (
	SessionStatusIdle       SessionStatus = "idle"
	SessionStatusConnecting SessionStatus = "connecting"
	SessionStatusActive     SessionStatus = "active"
	SessionStatusClosing    SessionStatus = "closing"
	SessionStatusError      SessionStatus = "error"
)

// sessionTransitions lists the allowed moves out of each state.
// Any state may move to error (service error callback).
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusIdle:       {SessionStatusConnecting},
	SessionStatusConnecting: {SessionStatusActive, SessionStatusClosing, SessionStatusError},
	SessionStatusActive:     {SessionStatusClosing, SessionStatusError},
	SessionStatusClosing:    {SessionStatusIdle, SessionStatusError},
	SessionStatusError:      {SessionStatusClosing},
}

// Valid reports whether s is a known status
func (s SessionStatus) Valid() bool {
	_, ok := sessionTransitions[s]
	return ok
}

// HoldsSession reports whether a live session handle exists in this state
func (s SessionStatus) HoldsSession() bool {
	return s == SessionStatusConnecting || s == SessionStatusActive || s == SessionStatusClosing
}

// CanTransition reports whether the state machine allows moving from s to next
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	if next == SessionStatusError && s != SessionStatusIdle {
		return true
	}
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error for a move the state machine does not allow
func (s SessionStatus) ValidateTransition(next SessionStatus) error {
	if !s.Valid() || !next.Valid() {
		return fmt.Errorf("invalid session status transition %q -> %q", s, next)
	}
	if !s.CanTransition(next) {
		return fmt.Errorf("session cannot move from %s to %s", s, next)
	}
	return nil
}
