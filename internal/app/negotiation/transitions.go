package negotiation

import (
	"errors"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/pion/webrtc/v4"
)

var errNoRemoteDescription = errors.New("no remote description")

// action handles one event and returns the next state. Fatal errors close the
// machine; other errors are recorded and leave the state unchanged.
type action func(m *Machine, ev event) (domain.CallState, error)

// transitions lists every accepted (state, event) pair. A missing entry is a
// protocol violation. Closed has no entries and is filtered before lookup.
var transitions = map[domain.CallState]map[eventKind]action{
	domain.StateIdle: {
		evJoin:      (*Machine).startCaller,
		evOffer:     (*Machine).startCallee,
		evAnswer:    (*Machine).unexpectedAnswer,
		evCandidate: (*Machine).applyCandidate,
		evAddTrack:  (*Machine).addTrack,
		evHangUp:    (*Machine).hangUp,
	},
	domain.StateNegotiating: {
		evOffer:             (*Machine).glare,
		evAnswer:            (*Machine).acceptAnswer,
		evCandidate:         (*Machine).applyCandidate,
		evNegotiationNeeded: (*Machine).offer,
		evLocalCandidate:    (*Machine).sendCandidate,
		evRemoteTrack:       (*Machine).deliverTrack,
		evAddTrack:          (*Machine).addTrack,
		evHangUp:            (*Machine).hangUp,
	},
	domain.StateStable: {
		evOffer:             (*Machine).reoffer,
		evAnswer:            (*Machine).unexpectedAnswer,
		evCandidate:         (*Machine).applyCandidate,
		evNegotiationNeeded: (*Machine).offer,
		evLocalCandidate:    (*Machine).sendCandidate,
		evRemoteTrack:       (*Machine).deliverTrack,
		evAddTrack:          (*Machine).addTrack,
		evHangUp:            (*Machine).hangUp,
	},
}

func (m *Machine) startCaller(ev event) (domain.CallState, error) {
	c, err := m.newCall(domain.RoleCaller)
	if err != nil {
		return domain.StateIdle, err
	}
	if err := c.attachAll(m.opts.Media.Tracks()); err != nil {
		return domain.StateIdle, core.NewError(core.ErrNegotiation, "attach local tracks", err)
	}
	return domain.StateNegotiating, nil
}

func (m *Machine) startCallee(ev event) (domain.CallState, error) {
	c, err := m.newCall(domain.RoleCallee)
	if err != nil {
		return domain.StateIdle, err
	}
	m.setState(domain.StateNegotiating)
	if err := c.pc.SetRemoteDescription(ev.desc); err != nil {
		return domain.StateNegotiating, core.NewError(core.ErrNegotiation, "apply remote offer", err)
	}
	c.remoteSet = true
	if m.aborted() {
		return domain.StateNegotiating, nil
	}
	if err := c.attachAll(m.opts.Media.Tracks()); err != nil {
		return domain.StateNegotiating, core.NewError(core.ErrNegotiation, "attach local tracks", err)
	}
	return m.answer(c)
}

// reoffer answers a renegotiation offer on the existing call.
func (m *Machine) reoffer(ev event) (domain.CallState, error) {
	c := m.call
	if err := c.pc.SetRemoteDescription(ev.desc); err != nil {
		return domain.StateStable, core.NewError(core.ErrNegotiation, "apply remote offer", err)
	}
	c.remoteSet = true
	if m.aborted() {
		return domain.StateStable, nil
	}
	return m.answer(c)
}

func (m *Machine) answer(c *call) (domain.CallState, error) {
	desc, err := c.pc.CreateAnswer(m.opCtx)
	if m.aborted() {
		return domain.StateNegotiating, nil
	}
	if err != nil {
		return domain.StateNegotiating, core.NewError(core.ErrNegotiation, "create answer", err)
	}
	if err := c.pc.SetLocalDescription(desc); err != nil {
		return domain.StateNegotiating, core.NewError(core.ErrNegotiation, "apply local answer", err)
	}
	if m.aborted() {
		return domain.StateNegotiating, nil
	}
	m.send(core.AnswerEnvelope(desc))
	return domain.StateStable, nil
}

// offer runs on negotiation-needed. While an offer is outstanding the request
// is remembered and replayed once the answer lands.
func (m *Machine) offer(ev event) (domain.CallState, error) {
	c := m.call
	state := m.State()
	if c.offerPending {
		c.renegotiate = true
		m.logger.Debug().Msg("offer outstanding, renegotiation deferred")
		return state, nil
	}
	desc, err := c.pc.CreateOffer(m.opCtx)
	if m.aborted() {
		return state, nil
	}
	if err != nil {
		return state, core.NewError(core.ErrNegotiation, "create offer", err)
	}
	if err := c.pc.SetLocalDescription(desc); err != nil {
		return state, core.NewError(core.ErrNegotiation, "apply local offer", err)
	}
	if m.aborted() {
		return state, nil
	}
	c.offerPending = true
	m.send(core.OfferEnvelope(desc))
	return domain.StateNegotiating, nil
}

func (m *Machine) acceptAnswer(ev event) (domain.CallState, error) {
	c := m.call
	if !c.offerPending {
		return domain.StateNegotiating, core.NewError(core.ErrProtocolViolation, "answer without outstanding offer", nil)
	}
	if err := c.pc.SetRemoteDescription(ev.desc); err != nil {
		return domain.StateNegotiating, core.NewError(core.ErrNegotiation, "apply remote answer", err)
	}
	c.remoteSet = true
	c.offerPending = false
	if c.renegotiate {
		c.renegotiate = false
		m.queue.push(event{kind: evNegotiationNeeded, gen: c.gen})
	}
	return domain.StateStable, nil
}

// glare: a remote offer arrived while our own offer is outstanding. The
// caller keeps its offer and ignores the remote one. The callee rolls its
// offer back, answers, then offers again once stable.
func (m *Machine) glare(ev event) (domain.CallState, error) {
	c := m.call
	if c.role == domain.RoleCaller || !c.offerPending {
		m.logger.Warn().Stringer("role", c.role).Msg("offer ignored while negotiating")
		return domain.StateNegotiating, core.NewError(core.ErrProtocolViolation, "offer while negotiating as "+c.role.String(), nil)
	}

	m.logger.Info().Msg("remote offer wins, rolling back local offer")
	if err := c.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
		return domain.StateNegotiating, core.NewError(core.ErrNegotiation, "roll back local offer", err)
	}
	c.offerPending = false
	c.renegotiate = true
	if err := c.pc.SetRemoteDescription(ev.desc); err != nil {
		return domain.StateNegotiating, core.NewError(core.ErrNegotiation, "apply remote offer", err)
	}
	c.remoteSet = true
	if m.aborted() {
		return domain.StateNegotiating, nil
	}
	next, err := m.answer(c)
	if err != nil || next != domain.StateStable {
		return next, err
	}
	c.renegotiate = false
	m.queue.push(event{kind: evNegotiationNeeded, gen: c.gen})
	return domain.StateStable, nil
}

func (m *Machine) unexpectedAnswer(ev event) (domain.CallState, error) {
	state := m.State()
	return state, core.NewError(core.ErrProtocolViolation, "answer while "+state.String(), nil)
}

func (m *Machine) applyCandidate(ev event) (domain.CallState, error) {
	state := m.State()
	c := m.call
	if c == nil || !c.remoteSet {
		return state, core.NewError(core.ErrCandidate, "apply candidate", errNoRemoteDescription)
	}
	if err := c.pc.AddICECandidate(ev.candidate); err != nil {
		return state, core.NewError(core.ErrCandidate, "apply candidate", err)
	}
	return state, nil
}

func (m *Machine) sendCandidate(ev event) (domain.CallState, error) {
	m.send(core.CandidateEnvelope(ev.candidate))
	return m.State(), nil
}

func (m *Machine) deliverTrack(ev event) (domain.CallState, error) {
	m.logger.Info().
		Str("track", ev.remote.ID()).
		Stringer("kind", ev.remote.Kind()).
		Msg("remote track")
	if m.opts.Sink != nil {
		m.opts.Sink.OnRemoteTrack(m.opCtx, ev.remote)
	}
	return m.State(), nil
}

// addTrack attaches a track added after the call started. Without a call the
// track just waits in local media for the next one.
func (m *Machine) addTrack(ev event) (domain.CallState, error) {
	state := m.State()
	if m.call == nil {
		return state, nil
	}
	if err := m.call.attach(ev.local); err != nil {
		return state, core.NewError(core.ErrNegotiation, "attach track "+ev.local.ID(), err)
	}
	return state, nil
}

func (m *Machine) hangUp(ev event) (domain.CallState, error) {
	if ev.err != nil {
		m.mu.Lock()
		if m.err == nil {
			m.err = ev.err
		}
		m.mu.Unlock()
	}
	m.teardown(ev.reason)
	return domain.StateClosed, nil
}
