package domain

import "errors"

// MaxRoomIDLen bounds room identifiers accepted by the relay and the client.
const MaxRoomIDLen = 64

var (
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
)

// RoomID is opaque and immutable for the life of a session.
type RoomID string

func (id RoomID) Validate() error {
	if len(id) == 0 {
		return ErrRoomIDEmpty
	}
	if len(id) > MaxRoomIDLen {
		return ErrRoomIDTooLong
	}
	return nil
}

type Room struct {
	ID       RoomID
	Capacity int
}
