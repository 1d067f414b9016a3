package negotiation

import (
	"github.com/dkeye/peercall/internal/core"
	"github.com/pion/webrtc/v4"
)

type eventKind int

const (
	evJoin eventKind = iota
	evOffer
	evAnswer
	evCandidate
	evNegotiationNeeded
	evLocalCandidate
	evRemoteTrack
	evAddTrack
	evHangUp
)

func (k eventKind) String() string {
	switch k {
	case evJoin:
		return "join"
	case evOffer:
		return "offer"
	case evAnswer:
		return "answer"
	case evCandidate:
		return "candidate"
	case evNegotiationNeeded:
		return "negotiation-needed"
	case evLocalCandidate:
		return "local-candidate"
	case evRemoteTrack:
		return "remote-track"
	case evAddTrack:
		return "add-track"
	case evHangUp:
		return "hang-up"
	default:
		return "unknown"
	}
}

type event struct {
	kind eventKind
	// gen ties capability events to the call that raised them; 0 means the
	// event does not come from a capability.
	gen       uint64
	desc      webrtc.SessionDescription
	candidate webrtc.ICECandidateInit
	local     core.LocalTrack
	remote    core.RemoteTrack
	reason    string
	// err is set on hang-ups caused by a failure; Run returns it.
	err  error
	done chan struct{}
}
