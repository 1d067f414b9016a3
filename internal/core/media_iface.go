package core

import (
	"context"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// PeerConnection is the capability that carries media once negotiated.
// Event callbacks may fire on any goroutine.
type PeerConnection interface {
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	// SetLocalDescription also accepts type rollback, which discards an
	// outstanding local offer.
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	// AddTrack attaches a local track; the capability reports the resulting
	// need for an offer through OnNegotiationNeeded.
	AddTrack(LocalTrack) error
	// AddICECandidate applies a remote connectivity candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	Close() error

	OnNegotiationNeeded(func())
	// OnICECandidate sets a callback for newly gathered local candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback invoked when a remote track arrives.
	OnTrack(func(RemoteTrack))
}

// PeerFactory builds a fresh PeerConnection for a call.
type PeerFactory func(ctx context.Context) (PeerConnection, error)

// LocalTrack is one captured track. Disabling it mutes the track without
// removing it from the connection.
type LocalTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Enabled() bool
	SetEnabled(bool)
	Stop()
}

// LocalMedia is the set of locally captured tracks.
type LocalMedia interface {
	Tracks() []LocalTrack
	AudioTracks() []LocalTrack
	VideoTracks() []LocalTrack
	Add(LocalTrack)
	// Close stops every track.
	Close()
}

// MediaSource opens local capture.
type MediaSource interface {
	Open(ctx context.Context) (LocalMedia, error)
}

// RemoteTrack is media received from the peer.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	MimeType() string
	ReadRTP() (*rtp.Packet, error)
}

// TrackSink receives remote tracks. OnRemoteTrack must not block.
type TrackSink interface {
	OnRemoteTrack(ctx context.Context, track RemoteTrack)
	Close()
}
