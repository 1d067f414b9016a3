// Package negotiation drives one participant's offer/answer exchange.
//
// Every input (inbound envelopes, capability callbacks, local track changes,
// hang-up) becomes an event on a single FIFO. Run drains it on one goroutine
// and looks up the handler in the transitions table, so state is never
// touched concurrently.
package negotiation

import (
	"context"
	"sync"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Room    domain.RoomID
	Channel core.SignalChannel
	Peers   core.PeerFactory
	Media   core.LocalMedia
	// Sink may be nil; remote tracks are then only logged.
	Sink core.TrackSink
}

type Machine struct {
	opts   Options
	queue  *queue
	logger zerolog.Logger

	// owned by the loop
	call *call
	gen  uint64

	opCtx    context.Context
	opCancel context.CancelFunc

	mu      sync.RWMutex
	state   domain.CallState
	role    domain.Role
	hasCall bool
	faults  []error
	err     error

	done     chan struct{}
	doneOnce sync.Once
}

func New(opts Options) *Machine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Machine{
		opts:     opts,
		queue:    newQueue(),
		logger:   log.With().Str("module", "negotiation").Str("room", string(opts.Room)).Logger(),
		opCtx:    ctx,
		opCancel: cancel,
		done:     make(chan struct{}),
	}
}

// Run processes events until the machine is closed. It returns the fatal
// error that closed it (including one passed to Abort), or nil for hang-up,
// Close and ctx cancellation.
func (m *Machine) Run(ctx context.Context) error {
	defer m.doneOnce.Do(func() { close(m.done) })
	for {
		select {
		case <-ctx.Done():
			m.teardown("context done")
			return m.Err()
		case <-m.queue.notify:
		}
		for {
			ev, ok := m.queue.pop()
			if !ok {
				break
			}
			m.dispatch(ev)
			if m.State() == domain.StateClosed {
				return m.Err()
			}
		}
	}
}

// Deliver enqueues an inbound envelope.
func (m *Machine) Deliver(env core.Envelope) {
	switch env.Kind() {
	case core.KindJoin:
		m.queue.push(event{kind: evJoin})
	case core.KindOffer:
		m.queue.push(event{kind: evOffer, desc: *env.Offer})
	case core.KindAnswer:
		m.queue.push(event{kind: evAnswer, desc: *env.Answer})
	case core.KindCandidate:
		m.queue.push(event{kind: evCandidate, candidate: *env.ICECandidate})
	default:
		m.record(core.NewError(core.ErrProtocolViolation, "deliver", nil))
	}
}

// AddTrack hands a track that was just added to local media to the call.
func (m *Machine) AddTrack(t core.LocalTrack) {
	m.queue.push(event{kind: evAddTrack, local: t})
}

// Close starts teardown without waiting for it. reason is logged.
func (m *Machine) Close(reason string) {
	m.opCancel()
	m.queue.push(event{kind: evHangUp, reason: reason})
}

// Abort starts teardown because of err, which Run then returns.
func (m *Machine) Abort(err error) {
	m.opCancel()
	m.queue.push(event{kind: evHangUp, reason: err.Error(), err: err})
}

// HangUp tears the call down and waits until the machine is Closed.
// Calling it again after Closed returns immediately.
func (m *Machine) HangUp(ctx context.Context) error {
	if m.State() == domain.StateClosed {
		return nil
	}
	m.opCancel()
	done := make(chan struct{})
	m.queue.push(event{kind: evHangUp, reason: "hang-up", done: done})
	select {
	case <-done:
	case <-m.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (m *Machine) State() domain.CallState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Machine) Role() domain.Role {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.role
}

func (m *Machine) HasCall() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasCall
}

// Faults returns the recoverable errors recorded so far, oldest first.
func (m *Machine) Faults() []error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]error, len(m.faults))
	copy(out, m.faults)
	return out
}

// Err returns the fatal error that closed the machine, if any.
func (m *Machine) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Done is closed when Run returns.
func (m *Machine) Done() <-chan struct{} { return m.done }

func (m *Machine) dispatch(ev event) {
	if ev.done != nil {
		defer close(ev.done)
	}
	state := m.State()
	if state == domain.StateClosed {
		m.logger.Debug().Stringer("event", ev.kind).Msg("ignored after close")
		return
	}
	if ev.kind != evHangUp && m.aborted() {
		m.logger.Debug().Stringer("event", ev.kind).Msg("ignored during teardown")
		return
	}
	if ev.gen != 0 && (m.call == nil || m.call.gen != ev.gen) {
		m.logger.Debug().Stringer("event", ev.kind).Uint64("gen", ev.gen).Msg("stale capability event")
		return
	}

	act, ok := transitions[state][ev.kind]
	if !ok {
		m.record(core.NewError(core.ErrProtocolViolation, ev.kind.String()+" while "+state.String(), nil))
		return
	}
	next, err := act(m, ev)
	switch {
	case ev.kind == evHangUp:
	case m.aborted():
		m.logger.Debug().Stringer("event", ev.kind).Msg("completed after teardown started")
	case err != nil && core.IsFatal(err):
		m.fail(err)
	case err != nil:
		m.record(err)
	default:
		m.setState(next)
	}
}

func (m *Machine) aborted() bool { return m.opCtx.Err() != nil }

func (m *Machine) setState(s domain.CallState) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	if prev != s {
		m.logger.Info().Stringer("from", prev).Stringer("to", s).Stringer("role", m.Role()).Msg("state changed")
	}
}

func (m *Machine) setRole(r domain.Role) {
	m.mu.Lock()
	m.role = r
	m.mu.Unlock()
}

func (m *Machine) record(err error) {
	m.logger.Warn().Err(err).Msg("recoverable fault")
	m.mu.Lock()
	m.faults = append(m.faults, err)
	m.mu.Unlock()
}

func (m *Machine) fail(err error) {
	m.logger.Error().Err(err).Msg("negotiation failed")
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	m.teardown("fatal error")
}

// newCall creates the capability and subscribes to its events. Handlers are
// bound before any track is attached so the first negotiation-needed is seen.
func (m *Machine) newCall(role domain.Role) (*call, error) {
	pc, err := m.opts.Peers(m.opCtx)
	if err != nil {
		return nil, core.NewError(core.ErrNegotiation, "create peer connection", err)
	}
	m.gen++
	gen := m.gen
	pc.OnNegotiationNeeded(func() {
		m.queue.push(event{kind: evNegotiationNeeded, gen: gen})
	})
	pc.OnICECandidate(func(c webrtc.ICECandidateInit) {
		m.queue.push(event{kind: evLocalCandidate, gen: gen, candidate: c})
	})
	pc.OnTrack(func(t core.RemoteTrack) {
		m.queue.push(event{kind: evRemoteTrack, gen: gen, remote: t})
	})

	m.call = &call{gen: gen, role: role, pc: pc, attached: make(map[string]struct{})}
	m.setRole(role)
	m.mu.Lock()
	m.hasCall = true
	m.mu.Unlock()
	m.logger.Info().Stringer("role", role).Uint64("gen", gen).Msg("call created")
	return m.call, nil
}

func (m *Machine) teardown(reason string) {
	if m.State() == domain.StateClosed {
		return
	}
	m.opCancel()
	if c := m.call; c != nil {
		if err := c.pc.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("close peer connection")
		}
		m.call = nil
	}
	if err := m.opts.Channel.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("close signaling channel")
	}
	m.mu.Lock()
	m.hasCall = false
	m.mu.Unlock()
	m.setState(domain.StateClosed)
	m.logger.Info().Str("reason", reason).Msg("call closed")
}

func (m *Machine) send(env core.Envelope) {
	if m.opts.Channel.Closed() {
		m.logger.Debug().Stringer("kind", env.Kind()).Msg("channel closed, envelope dropped")
		return
	}
	if err := m.opts.Channel.Send(env); err != nil {
		m.logger.Warn().Err(err).Stringer("kind", env.Kind()).Msg("send envelope")
	}
}
