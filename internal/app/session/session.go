// Package session owns one participant's call from join to hang-up: local
// media, the signaling channel and the negotiation machine.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/peercall/internal/app/negotiation"
	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyJoined = errors.New("session already joined")
	ErrNotJoined     = errors.New("session not joined")
)

// Channel is the signaling channel as the session drives it.
type Channel interface {
	core.SignalChannel
	Listen(onMessage func(core.Envelope), onClose func(error))
}

type Dialer func(ctx context.Context, room domain.RoomID) (Channel, error)

type Options struct {
	Media core.MediaSource
	Dial  Dialer
	Peers core.PeerFactory
	// NewSink builds the remote track consumer for a room. Optional.
	NewSink func(room domain.RoomID) core.TrackSink
}

type Manager struct {
	opts Options

	mu      sync.Mutex
	joined  bool
	cancel  context.CancelFunc
	media   core.LocalMedia
	machine *negotiation.Machine
	done    chan struct{}
}

func New(opts Options) *Manager {
	return &Manager{opts: opts, done: make(chan struct{})}
}

// Join runs one call in room and returns once it is over: after HangUp,
// cancellation of ctx, loss of the signaling channel or a fatal error. Losing
// the channel to a transport failure returns a core.ErrConnection.
// Local media is acquired before any signaling and released last.
func (m *Manager) Join(ctx context.Context, room domain.RoomID) error {
	if err := room.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if m.joined {
		m.mu.Unlock()
		return ErrAlreadyJoined
	}
	m.joined = true
	m.cancel = cancel
	m.mu.Unlock()
	defer close(m.done)

	logger := log.With().Str("module", "session").Str("room", string(room)).Logger()

	media, err := m.opts.Media.Open(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("local media unavailable")
		return asKind(core.ErrMedia, "open local media", err)
	}

	ch, err := m.opts.Dial(ctx, room)
	if err != nil {
		logger.Error().Err(err).Msg("signaling unavailable")
		media.Close()
		return asKind(core.ErrConnection, "dial signaling", err)
	}

	var sink core.TrackSink
	if m.opts.NewSink != nil {
		sink = m.opts.NewSink(room)
	}
	machine := negotiation.New(negotiation.Options{
		Room:    room,
		Channel: ch,
		Peers:   m.opts.Peers,
		Media:   media,
		Sink:    sink,
	})

	m.mu.Lock()
	m.media = media
	m.machine = machine
	m.mu.Unlock()

	ch.Listen(machine.Deliver, func(err error) {
		if err != nil {
			logger.Warn().Err(err).Msg("signaling lost")
			machine.Abort(asKind(core.ErrConnection, "signaling", err))
			return
		}
		machine.Close("signaling closed")
	})
	if err := ch.Send(core.JoinEnvelope()); err != nil {
		logger.Error().Err(err).Msg("send join")
		machine.Close("join not sent")
	}
	logger.Info().Msg("joined")

	runErr := machine.Run(ctx)

	if sink != nil {
		sink.Close()
	}
	media.Close()
	logger.Info().Err(runErr).Msg("left")
	return runErr
}

// HangUp ends the call and waits until local media is released. It is a
// no-op before Join and after the call is over.
func (m *Manager) HangUp(ctx context.Context) error {
	m.mu.Lock()
	joined, machine, cancel := m.joined, m.machine, m.cancel
	m.mu.Unlock()
	if !joined {
		return nil
	}
	if machine != nil {
		if err := machine.HangUp(ctx); err != nil {
			return err
		}
	} else {
		cancel()
	}
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ToggleAudio flips every local audio track and reports the new state.
// Tracks stay attached, so no renegotiation happens.
func (m *Manager) ToggleAudio() bool {
	return m.toggle(func(media core.LocalMedia) []core.LocalTrack { return media.AudioTracks() })
}

func (m *Manager) ToggleVideo() bool {
	return m.toggle(func(media core.LocalMedia) []core.LocalTrack { return media.VideoTracks() })
}

func (m *Manager) toggle(pick func(core.LocalMedia) []core.LocalTrack) bool {
	m.mu.Lock()
	media := m.media
	m.mu.Unlock()
	if media == nil {
		return false
	}
	tracks := pick(media)
	if len(tracks) == 0 {
		return false
	}
	on := !tracks[0].Enabled()
	for _, t := range tracks {
		t.SetEnabled(on)
	}
	return on
}

// AddTrack adds a local track mid-call; the machine renegotiates.
func (m *Manager) AddTrack(t core.LocalTrack) error {
	m.mu.Lock()
	media, machine := m.media, m.machine
	m.mu.Unlock()
	if machine == nil {
		return ErrNotJoined
	}
	media.Add(t)
	machine.AddTrack(t)
	return nil
}

func (m *Manager) State() domain.CallState {
	m.mu.Lock()
	machine := m.machine
	m.mu.Unlock()
	if machine == nil {
		return domain.StateIdle
	}
	return machine.State()
}

func (m *Manager) Role() domain.Role {
	m.mu.Lock()
	machine := m.machine
	m.mu.Unlock()
	if machine == nil {
		return domain.RoleUnassigned
	}
	return machine.Role()
}

// Faults lists the recoverable errors of the current call.
func (m *Manager) Faults() []error {
	m.mu.Lock()
	machine := m.machine
	m.mu.Unlock()
	if machine == nil {
		return nil
	}
	return machine.Faults()
}

func asKind(kind error, op string, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return core.NewError(kind, op, err)
}
