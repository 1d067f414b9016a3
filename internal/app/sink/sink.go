// Package sink consumes remote tracks: every track gets a relay loop that
// counts its packets and, when a directory is configured, records it.
package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const closeTimeout = 2 * time.Second

type Options struct {
	Room domain.RoomID
	// RecordDir enables recording when non-empty.
	RecordDir string
}

type TrackStats struct {
	ID       string
	Kind     webrtc.RTPCodecType
	MimeType string
	Packets  uint64
	Bytes    uint64
	File     string
}

type entry struct {
	relay   *Relay
	counter *Counter
	file    string
}

// Sink is a core.TrackSink that relays remote RTP into outputs.
type Sink struct {
	opts Options

	mu      sync.RWMutex
	relays  map[string]*entry
	stopped bool
}

var _ core.TrackSink = (*Sink)(nil)

func New(opts Options) *Sink {
	return &Sink{opts: opts, relays: make(map[string]*entry)}
}

// OnRemoteTrack starts a relay loop for the track. A second track with the
// same id replaces the first.
func (s *Sink) OnRemoteTrack(ctx context.Context, track core.RemoteTrack) {
	logger := log.With().
		Str("module", "sink").
		Str("track", track.ID()).
		Str("mime", track.MimeType()).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := newRelay(track, cancel)
	e := &entry{relay: relay, counter: &Counter{}}
	relay.addOutput("counter", e.counter)

	if s.opts.RecordDir != "" {
		name := string(s.opts.Room) + "-" + track.StreamID() + "-" + track.ID()
		rec, path, err := NewRecorder(s.opts.RecordDir, name, track.MimeType())
		switch {
		case errors.Is(err, ErrNoRecorder):
			logger.Warn().Msg("codec not recordable, counting only")
		case err != nil:
			logger.Error().Err(err).Msg("open recorder")
		default:
			relay.addOutput("recorder", rec)
			e.file = path
			logger.Info().Str("file", path).Msg("recording")
		}
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		cancel()
		logger.Debug().Msg("sink closed, track ignored")
		return
	}
	if old, ok := s.relays[track.ID()]; ok {
		logger.Info().Msg("replacing existing relay for track")
		old.relay.cancel()
	}
	s.relays[track.ID()] = e
	s.mu.Unlock()

	logger.Info().Msg("starting relay loop")
	go relay.loop(relayCtx, &logger)
}

// Mute pauses delivery of a remote track to its outputs without stopping it.
func (s *Sink) Mute(trackID string, muted bool) bool {
	s.mu.RLock()
	e, ok := s.relays[trackID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	e.relay.setMuted(muted)
	return true
}

func (s *Sink) Stats() []TrackStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TrackStats, 0, len(s.relays))
	for id, e := range s.relays {
		out = append(out, TrackStats{
			ID:       id,
			Kind:     e.relay.Src.Kind(),
			MimeType: e.relay.Src.MimeType(),
			Packets:  e.counter.Packets(),
			Bytes:    e.counter.Bytes(),
			File:     e.file,
		})
	}
	return out
}

// Close stops every relay and waits briefly for outputs to flush. Reads
// blocked on a live track only return once its connection is closed.
func (s *Sink) Close() {
	s.mu.Lock()
	s.stopped = true
	relays := make([]*Relay, 0, len(s.relays))
	for _, e := range s.relays {
		relays = append(relays, e.relay)
	}
	s.mu.Unlock()

	for _, r := range relays {
		r.cancel()
	}
	deadline := time.After(closeTimeout)
	for _, r := range relays {
		select {
		case <-r.done:
		case <-deadline:
			log.Warn().Str("module", "sink").Str("track", r.Src.ID()).Msg("relay still reading at close")
			return
		}
	}
}
