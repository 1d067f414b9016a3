package rtc

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/peercall/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

// opusSilence is a single 20ms Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const audioFrame = 20 * time.Millisecond

// Track is a local sample track with an enable switch. A disabled track
// stays attached but drops every sample written to it.
type Track struct {
	*webrtc.TrackLocalStaticSample
	enabled atomic.Bool
	stopped atomic.Bool
}

func NewTrack(kind webrtc.RTPCodecType, id, streamID string) (*Track, error) {
	var capability webrtc.RTPCodecCapability
	switch kind {
	case webrtc.RTPCodecTypeAudio:
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	case webrtc.RTPCodecTypeVideo:
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	default:
		return nil, errors.New("unsupported track kind")
	}
	local, err := webrtc.NewTrackLocalStaticSample(capability, id, streamID)
	if err != nil {
		return nil, err
	}
	t := &Track{TrackLocalStaticSample: local}
	t.enabled.Store(true)
	return t, nil
}

func (t *Track) TrackLocal() webrtc.TrackLocal { return t.TrackLocalStaticSample }

func (t *Track) Enabled() bool      { return t.enabled.Load() }
func (t *Track) SetEnabled(on bool) { t.enabled.Store(on) }
func (t *Track) Stop()              { t.stopped.Store(true) }
func (t *Track) Stopped() bool      { return t.stopped.Load() }

func (t *Track) WriteSample(s media.Sample) error {
	if t.stopped.Load() {
		return io.ErrClosedPipe
	}
	if !t.enabled.Load() {
		return nil
	}
	return t.TrackLocalStaticSample.WriteSample(s)
}

// Media is a mutable set of local tracks.
type Media struct {
	mu     sync.RWMutex
	tracks []core.LocalTrack
	stop   context.CancelFunc
}

func NewMedia(tracks ...core.LocalTrack) *Media {
	return &Media{tracks: tracks}
}

func (m *Media) Tracks() []core.LocalTrack {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.LocalTrack(nil), m.tracks...)
}

func (m *Media) AudioTracks() []core.LocalTrack { return m.ofKind(webrtc.RTPCodecTypeAudio) }
func (m *Media) VideoTracks() []core.LocalTrack { return m.ofKind(webrtc.RTPCodecTypeVideo) }

func (m *Media) ofKind(kind webrtc.RTPCodecType) []core.LocalTrack {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.LocalTrack
	for _, t := range m.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

func (m *Media) Add(t core.LocalTrack) {
	m.mu.Lock()
	m.tracks = append(m.tracks, t)
	m.mu.Unlock()
}

func (m *Media) Close() {
	m.mu.Lock()
	stop := m.stop
	m.stop = nil
	tracks := m.tracks
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
	for _, t := range tracks {
		t.Stop()
	}
}

// Source opens synthetic capture: an audio track fed with Opus silence and an
// optional video track. Device selection is left to real capture backends.
type Source struct {
	Audio    bool
	Video    bool
	StreamID string
}

func (s Source) Open(ctx context.Context) (core.LocalMedia, error) {
	if !s.Audio && !s.Video {
		return nil, core.NewError(core.ErrMedia, "open capture", errors.New("no capture device requested"))
	}
	streamID := s.StreamID
	if streamID == "" {
		streamID = "peercall"
	}

	m := NewMedia()
	if s.Audio {
		t, err := NewTrack(webrtc.RTPCodecTypeAudio, "audio", streamID)
		if err != nil {
			return nil, core.NewError(core.ErrMedia, "open audio", err)
		}
		m.Add(t)
		pumpCtx, cancel := context.WithCancel(ctx)
		m.stop = cancel
		go pumpSilence(pumpCtx, t)
	}
	if s.Video {
		t, err := NewTrack(webrtc.RTPCodecTypeVideo, "video", streamID)
		if err != nil {
			m.Close()
			return nil, core.NewError(core.ErrMedia, "open video", err)
		}
		m.Add(t)
	}
	return m, nil
}

func pumpSilence(ctx context.Context, t *Track) {
	ticker := time.NewTicker(audioFrame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.WriteSample(media.Sample{Data: opusSilence, Duration: audioFrame}); err != nil {
				log.Debug().Err(err).Str("module", "media").Msg("silence pump stopped")
				return
			}
		}
	}
}
