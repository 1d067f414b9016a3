package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

type EnvelopeKind int

const (
	KindInvalid EnvelopeKind = iota
	KindJoin
	KindOffer
	KindAnswer
	KindCandidate
)

func (k EnvelopeKind) String() string {
	switch k {
	case KindJoin:
		return "join"
	case KindOffer:
		return "offer"
	case KindAnswer:
		return "answer"
	case KindCandidate:
		return "iceCandidate"
	default:
		return "invalid"
	}
}

// Envelope is one signaling message. Exactly one field is populated.
type Envelope struct {
	Join         bool                       `json:"join,omitempty"`
	Offer        *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer       *webrtc.SessionDescription `json:"answer,omitempty"`
	ICECandidate *webrtc.ICECandidateInit   `json:"iceCandidate,omitempty"`
}

func JoinEnvelope() Envelope { return Envelope{Join: true} }

func OfferEnvelope(desc webrtc.SessionDescription) Envelope { return Envelope{Offer: &desc} }

func AnswerEnvelope(desc webrtc.SessionDescription) Envelope { return Envelope{Answer: &desc} }

func CandidateEnvelope(c webrtc.ICECandidateInit) Envelope { return Envelope{ICECandidate: &c} }

// Kind reports the populated tag, or KindInvalid when zero or several are set.
func (e Envelope) Kind() EnvelopeKind {
	kind, n := KindInvalid, 0
	if e.Join {
		kind, n = KindJoin, n+1
	}
	if e.Offer != nil {
		kind, n = KindOffer, n+1
	}
	if e.Answer != nil {
		kind, n = KindAnswer, n+1
	}
	if e.ICECandidate != nil {
		kind, n = KindCandidate, n+1
	}
	if n != 1 {
		return KindInvalid
	}
	return kind
}

func (e Envelope) Validate() error {
	switch e.Kind() {
	case KindOffer:
		return validateDescription(e.Offer, webrtc.SDPTypeOffer)
	case KindAnswer:
		return validateDescription(e.Answer, webrtc.SDPTypeAnswer)
	case KindJoin, KindCandidate:
		return nil
	default:
		return NewError(ErrProtocolViolation, "validate envelope", errors.New("exactly one of join, offer, answer, iceCandidate required"))
	}
}

func validateDescription(desc *webrtc.SessionDescription, want webrtc.SDPType) error {
	if desc.Type != want {
		return NewError(ErrProtocolViolation, "validate envelope", fmt.Errorf("description type %q, want %q", desc.Type, want))
	}
	if desc.SDP == "" {
		return NewError(ErrProtocolViolation, "validate envelope", errors.New("empty sdp"))
	}
	return nil
}

// DecodeEnvelope parses one UTF-8 JSON frame. Unknown keys are rejected.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, NewError(ErrProtocolViolation, "decode envelope", err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (e Envelope) Encode() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}
