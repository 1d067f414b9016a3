package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/peercall/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// fakePeer mimics the signaling-state rules of a browser peer connection:
// negotiation-needed fires on AddTrack only from stable, and is deferred
// while a local offer is outstanding.
type fakePeer struct {
	name string

	mu          sync.Mutex
	signaling   webrtc.SignalingState
	tracks      []string
	local       *webrtc.SessionDescription
	remote      *webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	offers      int
	answers     int
	closes      int
	rollbacks   int
	negPending  bool
	negDeferred bool

	failCreateOffer error
	failSetRemote   error
	failCandidate   error

	onNeg   func()
	onICE   func(webrtc.ICECandidateInit)
	onTrack func(core.RemoteTrack)
}

var _ core.PeerConnection = (*fakePeer)(nil)

func newFakePeer(name string) *fakePeer {
	return &fakePeer{name: name, signaling: webrtc.SignalingStateStable}
}

func (p *fakePeer) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failCreateOffer != nil {
		return webrtc.SessionDescription{}, p.failCreateOffer
	}
	p.negPending = false
	p.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("%s-offer-%d", p.name, p.offers)}, nil
}

func (p *fakePeer) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("%s-answer-%d", p.name, p.answers)}, nil
}

func (p *fakePeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	if desc.Type == webrtc.SDPTypeRollback {
		defer p.mu.Unlock()
		if p.signaling != webrtc.SignalingStateHaveLocalOffer {
			return errors.New("nothing to roll back")
		}
		p.local = nil
		p.signaling = webrtc.SignalingStateStable
		p.rollbacks++
		return nil
	}
	p.local = &desc
	if desc.Type == webrtc.SDPTypeOffer {
		p.signaling = webrtc.SignalingStateHaveLocalOffer
		p.mu.Unlock()
		return nil
	}
	p.signaling = webrtc.SignalingStateStable
	p.mu.Unlock()
	p.stableAgain()
	return nil
}

func (p *fakePeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	if p.failSetRemote != nil {
		p.mu.Unlock()
		return p.failSetRemote
	}
	p.remote = &desc
	if desc.Type == webrtc.SDPTypeOffer {
		p.signaling = webrtc.SignalingStateHaveRemoteOffer
		p.mu.Unlock()
		return nil
	}
	p.signaling = webrtc.SignalingStateStable
	p.mu.Unlock()
	p.stableAgain()
	return nil
}

func (p *fakePeer) stableAgain() {
	p.mu.Lock()
	fire := p.negDeferred
	p.negDeferred = false
	if fire {
		p.negPending = true
	}
	fn := p.onNeg
	p.mu.Unlock()
	if fire && fn != nil {
		fn()
	}
}

func (p *fakePeer) AddTrack(t core.LocalTrack) error {
	p.mu.Lock()
	p.tracks = append(p.tracks, t.ID())
	fire := false
	switch p.signaling {
	case webrtc.SignalingStateStable:
		fire = !p.negPending
		p.negPending = true
	case webrtc.SignalingStateHaveLocalOffer:
		p.negDeferred = true
	}
	fn := p.onNeg
	p.mu.Unlock()
	if fire && fn != nil {
		fn()
	}
	return nil
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failCandidate != nil {
		return p.failCandidate
	}
	if p.remote == nil {
		return errors.New("remote description not set")
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func (p *fakePeer) OnNegotiationNeeded(fn func()) {
	p.mu.Lock()
	p.onNeg = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	p.onICE = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnTrack(fn func(core.RemoteTrack)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

func (p *fakePeer) gather(c string) {
	p.mu.Lock()
	fn := p.onICE
	p.mu.Unlock()
	fn(webrtc.ICECandidateInit{Candidate: c})
}

func (p *fakePeer) receive(t core.RemoteTrack) {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	fn(t)
}

type peerState struct {
	signaling  webrtc.SignalingState
	tracks     []string
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	offers     int
	answers    int
	closes     int
	rollbacks  int
}

func (p *fakePeer) snapshot() peerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return peerState{
		signaling:  p.signaling,
		tracks:     append([]string(nil), p.tracks...),
		local:      p.local,
		remote:     p.remote,
		candidates: append([]webrtc.ICECandidateInit(nil), p.candidates...),
		offers:     p.offers,
		answers:    p.answers,
		closes:     p.closes,
		rollbacks:  p.rollbacks,
	}
}

type fakeFactory struct {
	name  string
	mu    sync.Mutex
	peers []*fakePeer
	setup func(*fakePeer)
}

func (f *fakeFactory) build(ctx context.Context) (core.PeerConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := newFakePeer(f.name)
	if f.setup != nil {
		f.setup(p)
	}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakeFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

func (f *fakeFactory) peer(i int) *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers[i]
}

// fakeChannel records sent envelopes and optionally forwards them, standing
// in for a relay between two machines.
type fakeChannel struct {
	mu      sync.Mutex
	sent    []core.Envelope
	closed  bool
	closes  int
	forward func(core.Envelope)
}

func (c *fakeChannel) Send(env core.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.sent = append(c.sent, env)
	fwd := c.forward
	c.mu.Unlock()
	if fwd != nil {
		fwd(env)
	}
	return nil
}

// hold buffers forwarded envelopes until release is called, which restores
// forwarding and flushes them in order.
func (c *fakeChannel) hold() (release func()) {
	var mu sync.Mutex
	var held []core.Envelope
	c.mu.Lock()
	fwd := c.forward
	c.forward = func(env core.Envelope) {
		mu.Lock()
		held = append(held, env)
		mu.Unlock()
	}
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.forward = fwd
		c.mu.Unlock()
		mu.Lock()
		out := held
		held = nil
		mu.Unlock()
		for _, env := range out {
			fwd(env)
		}
	}
}

func (c *fakeChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closes++
	return nil
}

func (c *fakeChannel) sentKinds() []core.EnvelopeKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.EnvelopeKind, 0, len(c.sent))
	for _, env := range c.sent {
		out = append(out, env.Kind())
	}
	return out
}

func (c *fakeChannel) sentEnvelopes() []core.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Envelope(nil), c.sent...)
}

type fakeTrack struct {
	id      string
	kind    webrtc.RTPCodecType
	enabled atomic.Bool
	stopped atomic.Bool
}

func newFakeTrack(id string, kind webrtc.RTPCodecType) *fakeTrack {
	t := &fakeTrack{id: id, kind: kind}
	t.enabled.Store(true)
	return t
}

func (t *fakeTrack) ID() string                { return t.id }
func (t *fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t *fakeTrack) Enabled() bool             { return t.enabled.Load() }
func (t *fakeTrack) SetEnabled(on bool)        { t.enabled.Store(on) }
func (t *fakeTrack) Stop()                     { t.stopped.Store(true) }

type fakeMedia struct {
	mu     sync.Mutex
	tracks []core.LocalTrack
}

func (m *fakeMedia) Tracks() []core.LocalTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.LocalTrack(nil), m.tracks...)
}

func (m *fakeMedia) AudioTracks() []core.LocalTrack { return m.ofKind(webrtc.RTPCodecTypeAudio) }
func (m *fakeMedia) VideoTracks() []core.LocalTrack { return m.ofKind(webrtc.RTPCodecTypeVideo) }

func (m *fakeMedia) ofKind(kind webrtc.RTPCodecType) []core.LocalTrack {
	var out []core.LocalTrack
	for _, t := range m.Tracks() {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

func (m *fakeMedia) Add(t core.LocalTrack) {
	m.mu.Lock()
	m.tracks = append(m.tracks, t)
	m.mu.Unlock()
}

func (m *fakeMedia) Close() {
	for _, t := range m.Tracks() {
		t.Stop()
	}
}

type fakeRemote struct{ id string }

func (r fakeRemote) ID() string                    { return r.id }
func (r fakeRemote) StreamID() string              { return "remote-stream" }
func (r fakeRemote) Kind() webrtc.RTPCodecType     { return webrtc.RTPCodecTypeAudio }
func (r fakeRemote) MimeType() string              { return webrtc.MimeTypeOpus }
func (r fakeRemote) ReadRTP() (*rtp.Packet, error) { return nil, errors.New("eof") }

type fakeSink struct {
	mu     sync.Mutex
	tracks []string
}

func (s *fakeSink) OnRemoteTrack(_ context.Context, t core.RemoteTrack) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t.ID())
	s.mu.Unlock()
}

func (s *fakeSink) Close() {}

func (s *fakeSink) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tracks...)
}
