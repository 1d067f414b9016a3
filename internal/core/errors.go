package core

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection: signaling transport unavailable. Fatal.
	ErrConnection = errors.New("signaling connection failed")
	// ErrMedia: no capture device or permission denied. Fatal, raised before signaling.
	ErrMedia = errors.New("local media unavailable")
	// ErrNegotiation: local description creation/commit failed. Fatal for the call.
	ErrNegotiation = errors.New("negotiation failed")
	// ErrCandidate: candidate applied before the remote description. Recoverable.
	ErrCandidate = errors.New("candidate rejected")
	// ErrProtocolViolation: message unexpected for the current state. Recoverable.
	ErrProtocolViolation = errors.New("protocol violation")

	ErrChannelClosed = errors.New("channel closed")
)

// Error attaches the failing operation to one of the kinds above.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsFatal reports whether err ends the session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConnection) ||
		errors.Is(err, ErrMedia) ||
		errors.Is(err, ErrNegotiation)
}
