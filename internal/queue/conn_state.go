package queue

import "time"

// Phase is where the gateway stands with its backend.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseConnected     Phase = "connected"
	PhaseUnavailable   Phase = "unavailable"
)

// ConnState is an immutable snapshot of the gateway's connection state.
// Transitions produce a new value; the gateway swaps it under its lock.
type ConnState struct {
	Phase     Phase     `json:"phase"`
	Since     time.Time `json:"since"`
	LastError string    `json:"lastError,omitempty"`
}

func newConnState(now time.Time) ConnState {
	return ConnState{Phase: PhaseUninitialized, Since: now}
}

func (s ConnState) connected(now time.Time) ConnState {
	return ConnState{Phase: PhaseConnected, Since: now}
}

func (s ConnState) unavailable(now time.Time, err error) ConnState {
	next := ConnState{Phase: PhaseUnavailable, Since: now}
	if s.Phase == PhaseUnavailable {
		next.Since = s.Since
	}
	if err != nil {
		next.LastError = err.Error()
	}
	return next
}

// Available reports whether calls go to the backend.
func (s ConnState) Available() bool {
	return s.Phase == PhaseConnected
}
