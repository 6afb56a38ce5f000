package session

import "github.com/frankplus/zenoh-pico/internal/wire"

// CloseReason re-exports wire.CloseReason so callers never need to
// import internal/wire just to name a close reason.
type CloseReason = wire.CloseReason

const (
	CloseGeneric     = wire.CloseGeneric
	CloseInvalid     = wire.CloseInvalid
	CloseUnsupported = wire.CloseUnsupported
	CloseExpired     = wire.CloseExpired
	CloseMaxSessions = wire.CloseMaxSessions
	CloseMaxLinks    = wire.CloseMaxLinks
)

// State is the transport session's lifecycle state.
type State int

const (
	StateUninit State = iota
	StateInitSent
	StateOpenSent
	StateEstablished
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "UNINIT"
	case StateInitSent:
		return "INIT_SENT"
	case StateOpenSent:
		return "OPEN_SENT"
	case StateEstablished:
		return "ESTABLISHED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// setState transitions the session to newState and notifies the
// onStateChange hook (if any) without holding the state lock, so the
// hook is free to call back into the session.
func (s *Session) setState(newState State) {
	s.stateMu.Lock()
	s.state = newState
	s.stateMu.Unlock()

	if s.onStateChange != nil {
		s.onStateChange(newState)
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}
