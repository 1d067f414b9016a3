package sink

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanTrack struct {
	id   string
	kind webrtc.RTPCodecType
	mime string
	pkts chan *rtp.Packet
}

func newChanTrack(id string, kind webrtc.RTPCodecType, mime string) *chanTrack {
	return &chanTrack{id: id, kind: kind, mime: mime, pkts: make(chan *rtp.Packet)}
}

func (c *chanTrack) ID() string                { return c.id }
func (c *chanTrack) StreamID() string          { return "s1" }
func (c *chanTrack) Kind() webrtc.RTPCodecType { return c.kind }
func (c *chanTrack) MimeType() string          { return c.mime }

func (c *chanTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, ok := <-c.pkts
	if !ok {
		return nil, io.EOF
	}
	return pkt, nil
}

func packet(seq uint16, payload int) *rtp.Packet {
	return &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: seq, Timestamp: uint32(seq) * 960, SSRC: 1},
		Payload: make([]byte, payload),
	}
}

func statsFor(s *Sink, id string) (TrackStats, bool) {
	for _, st := range s.Stats() {
		if st.ID == id {
			return st, true
		}
	}
	return TrackStats{}, false
}

func TestSinkCountsPackets(t *testing.T) {
	s := New(Options{Room: "r1"})
	track := newChanTrack("audio-1", webrtc.RTPCodecTypeAudio, webrtc.MimeTypeOpus)
	s.OnRemoteTrack(context.Background(), track)

	for i := range 3 {
		track.pkts <- packet(uint16(i), 10)
	}
	close(track.pkts)

	require.Eventually(t, func() bool {
		st, ok := statsFor(s, "audio-1")
		return ok && st.Packets == 3
	}, time.Second, 5*time.Millisecond)
	st, _ := statsFor(s, "audio-1")
	assert.Equal(t, uint64(30), st.Bytes)
	assert.Equal(t, webrtc.RTPCodecTypeAudio, st.Kind)
	assert.Empty(t, st.File)
	s.Close()
}

func TestSinkRecordsOpus(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{Room: "r1", RecordDir: dir})
	track := newChanTrack("{audio/1}", webrtc.RTPCodecTypeAudio, webrtc.MimeTypeOpus)
	s.OnRemoteTrack(context.Background(), track)

	track.pkts <- packet(1, 3)
	track.pkts <- packet(2, 3)
	close(track.pkts)
	s.Close()

	st, ok := statsFor(s, "{audio/1}")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "r1-s1-_audio_1_.ogg"), st.File)
	data, err := os.ReadFile(st.File)
	require.NoError(t, err)
	assert.Equal(t, "OggS", string(data[:4]))
}

func TestSinkRecordsVP8AsIVF(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{Room: "r1", RecordDir: dir})
	track := newChanTrack("video-1", webrtc.RTPCodecTypeVideo, webrtc.MimeTypeVP8)
	s.OnRemoteTrack(context.Background(), track)
	close(track.pkts)
	s.Close()

	st, ok := statsFor(s, "video-1")
	require.True(t, ok)
	assert.Equal(t, ".ivf", filepath.Ext(st.File))
	assert.FileExists(t, st.File)
}

func TestSinkSkipsUnrecordableCodec(t *testing.T) {
	s := New(Options{Room: "r1", RecordDir: t.TempDir()})
	track := newChanTrack("video-2", webrtc.RTPCodecTypeVideo, webrtc.MimeTypeH264)
	s.OnRemoteTrack(context.Background(), track)
	track.pkts <- packet(1, 5)
	close(track.pkts)
	s.Close()

	st, ok := statsFor(s, "video-2")
	require.True(t, ok)
	assert.Empty(t, st.File)
	assert.Equal(t, uint64(1), st.Packets)
}

func TestSinkIgnoresTracksAfterClose(t *testing.T) {
	s := New(Options{Room: "r1"})
	s.Close()
	s.OnRemoteTrack(context.Background(), newChanTrack("late", webrtc.RTPCodecTypeAudio, webrtc.MimeTypeOpus))
	assert.Empty(t, s.Stats())
	assert.False(t, s.Mute("late", true))
}

type failingOutput struct {
	closed atomic.Bool
}

func (f *failingOutput) WriteRTP(*rtp.Packet) error { return errors.New("disk full") }
func (f *failingOutput) Close() error               { f.closed.Store(true); return nil }

func TestRelayMuteAndDrop(t *testing.T) {
	logger := zerolog.Nop()
	r := newRelay(newChanTrack("a", webrtc.RTPCodecTypeAudio, webrtc.MimeTypeOpus), func() {})
	counter := &Counter{}
	bad := &failingOutput{}
	r.addOutput("counter", counter)
	r.addOutput("bad", bad)

	r.setMuted(true)
	r.forward(packet(1, 4), &logger)
	assert.Zero(t, counter.Packets())
	assert.False(t, bad.closed.Load())

	r.setMuted(false)
	r.forward(packet(2, 4), &logger)
	assert.Equal(t, uint64(1), counter.Packets())
	assert.True(t, bad.closed.Load())

	r.mu.RLock()
	_, still := r.outs["bad"]
	r.mu.RUnlock()
	assert.False(t, still)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "r1-a_b_c", sanitize("r1-a/b.c"))
}
