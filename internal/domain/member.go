// Package domain contains entity without logic, just meta-data
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MemberID string

// Member represents one participant connection in a relay room.
// No transport or lifecycle logic here.
type Member struct {
	ID       MemberID  `json:"id"`
	JoinedAt time.Time `json:"joined_at"`
}

// NewMember keeps construction obvious; an empty id gets a fresh uuid.
func NewMember(id MemberID) *Member {
	if id == "" {
		id = MemberID(uuid.NewString())
	}
	return &Member{ID: id, JoinedAt: time.Now()}
}
