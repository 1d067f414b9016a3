package core

import (
	"errors"

	"github.com/dkeye/peercall/internal/domain"
)

var ErrRoomFull = errors.New("room full")

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID domain.MemberID `json:"id"`
}

// RoomService is the core-facing API of a relay room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []MemberDTO

	// AddMember fails with ErrRoomFull once the room capacity is reached.
	AddMember(sid SessionID, ms MemberSession) error
	RemoveMember(sid SessionID)
	Broadcast(from SessionID, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"client_count"`
}

type RoomFactory interface {
	Create() RoomService
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	StopRoom(id domain.RoomID)
}
