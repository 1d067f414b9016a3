package core

// Frame is a raw signaling payload.
type Frame []byte

// SignalConnection abstracts the relay side of a member's messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// SignalChannel is the participant side of the signaling transport.
// Sends are ordered. Once closed, Send drops envelopes silently, so callers
// that care check Closed first. Close is idempotent.
type SignalChannel interface {
	Send(Envelope) error
	Closed() bool
	Close() error
}
