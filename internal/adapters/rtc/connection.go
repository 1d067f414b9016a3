package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/peercall/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnsupportedTrack  = errors.New("track is not backed by a pion local track")
	ErrNothingToRollBack = errors.New("no local offer to roll back")
)

// pionTrack is implemented by local tracks this adapter can send.
type pionTrack interface {
	TrackLocal() webrtc.TrackLocal
}

// Configuration builds the ICE configuration from server URLs.
func Configuration(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}
}

// NewAPI returns a pion API with default codecs and interceptors whose
// internal logging goes through zerolog.
func NewAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	se := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory()}
	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	), nil
}

// NewFactory returns a core.PeerFactory producing pion-backed connections.
func NewFactory(api *webrtc.API, cfg webrtc.Configuration) core.PeerFactory {
	var seq atomic.Int64
	return func(ctx context.Context) (core.PeerConnection, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return NewConnection(api, cfg, fmt.Sprintf("pc-%d", seq.Add(1)))
	}
}

// Connection adapts *webrtc.PeerConnection to core.PeerConnection.
type Connection struct {
	pc     *webrtc.PeerConnection
	logger zerolog.Logger
	closed atomic.Bool

	// held is a renegotiation offer handed out but not yet applied to pc.
	descMu sync.Mutex
	held   *webrtc.SessionDescription

	mu                  sync.RWMutex
	onNegotiationNeeded func()
	onICE               func(webrtc.ICECandidateInit)
	onTrack             func(core.RemoteTrack)
}

func NewConnection(api *webrtc.API, cfg webrtc.Configuration, label string) (*Connection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &Connection{
		pc:     pc,
		logger: log.With().Str("module", "webrtc").Str("pc", label).Logger(),
	}
	c.bind()
	return c, nil
}

func (c *Connection) bind() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
	})

	c.pc.OnNegotiationNeeded(func() {
		c.mu.RLock()
		fn := c.onNegotiationNeeded
		c.mu.RUnlock()
		if fn != nil && !c.closed.Load() {
			fn()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.RLock()
		fn := c.onICE
		c.mu.RUnlock()
		if fn != nil && !c.closed.Load() {
			fn(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.mu.RLock()
		fn := c.onTrack
		c.mu.RUnlock()
		if fn != nil {
			fn(&remoteTrack{track: track})
		}
	})
}

func (c *Connection) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return c.pc.CreateOffer(nil)
}

func (c *Connection) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return c.pc.CreateAnswer(nil)
}

// SetLocalDescription applies desc. pion cannot roll a local offer back, so
// once the connection is established a new offer is held and only applied
// when its answer arrives; rolling back drops it.
func (c *Connection) SetLocalDescription(desc webrtc.SessionDescription) error {
	c.descMu.Lock()
	defer c.descMu.Unlock()
	switch {
	case desc.Type == webrtc.SDPTypeRollback:
		if c.held == nil {
			return ErrNothingToRollBack
		}
		c.held = nil
		c.logger.Debug().Msg("local offer rolled back")
		return nil
	case desc.Type == webrtc.SDPTypeOffer && c.pc.CurrentLocalDescription() != nil:
		c.held = &desc
		return nil
	}
	return c.pc.SetLocalDescription(desc)
}

// SetRemoteDescription parses the blob before handing it to pion so that a
// malformed description fails with a readable error.
func (c *Connection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	kinds, err := mediaSections(desc)
	if err != nil {
		return err
	}
	c.logger.Debug().Str("type", desc.Type.String()).Strs("media", kinds).Msg("apply remote description")

	c.descMu.Lock()
	defer c.descMu.Unlock()
	if held := c.held; held != nil {
		c.held = nil
		switch desc.Type {
		case webrtc.SDPTypeAnswer:
			if err := c.pc.SetLocalDescription(*held); err != nil {
				return err
			}
		case webrtc.SDPTypeOffer:
			c.logger.Debug().Msg("remote offer replaces held local offer")
		}
	}
	return c.pc.SetRemoteDescription(desc)
}

func (c *Connection) AddTrack(t core.LocalTrack) error {
	pt, ok := t.(pionTrack)
	if !ok {
		return ErrUnsupportedTrack
	}
	sender, err := c.pc.AddTrack(pt.TrackLocal())
	if err != nil {
		return err
	}
	go drainRTCP(sender)
	return nil
}

// drainRTCP keeps interceptors running; the packets themselves are unused.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
		return err
	}
	c.logger.Info().Msg("closed")
	return nil
}

func (c *Connection) OnNegotiationNeeded(fn func()) {
	c.mu.Lock()
	c.onNegotiationNeeded = fn
	c.mu.Unlock()
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

// OnTrack sets application-level callback for remote tracks.
func (c *Connection) OnTrack(fn func(core.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

type remoteTrack struct {
	track *webrtc.TrackRemote
}

func (r *remoteTrack) ID() string                { return r.track.ID() }
func (r *remoteTrack) StreamID() string          { return r.track.StreamID() }
func (r *remoteTrack) Kind() webrtc.RTPCodecType { return r.track.Kind() }
func (r *remoteTrack) MimeType() string          { return r.track.Codec().MimeType }

func (r *remoteTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := r.track.ReadRTP()
	return pkt, err
}
