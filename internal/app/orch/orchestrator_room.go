package orch

import (
	"context"

	"github.com/dkeye/peercall/internal/app"
	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join admits sess into roomID, creating the room on first use. It fails
// with core.ErrRoomFull when the room is at capacity.
func (o *Orchestrator) Join(
	sid core.SessionID,
	roomID domain.RoomID,
	sess core.MemberSession,
	cancel context.CancelFunc,
) error {
	room := o.Rooms.GetOrCreate(roomID)
	if err := room.AddMember(sid, sess); err != nil {
		o.stopIfEmpty(roomID, room)
		return err
	}
	o.Registry.Bind(app.Binding{SID: sid, Room: roomID, Session: sess, Cancel: cancel})
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Int("members", room.MemberCount()).Msg("joined room")
	return nil
}

// Leave removes sid from its room. Empty rooms are stopped.
func (o *Orchestrator) Leave(sid core.SessionID) {
	b, ok := o.Registry.Unbind(sid)
	if !ok {
		return
	}
	if o.Policy != nil {
		o.Policy.Forget(b.Session)
	}
	roomID := b.Room
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return
	}
	room.RemoveMember(sid)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("left room")
	o.stopIfEmpty(roomID, room)
}

// KickBySID closes sid's connection and removes it from its room.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	if b, ok := o.Registry.Lookup(sid); ok {
		b.Session.Signal().Close()
	}
	o.Registry.Cancel(sid)
	o.Leave(sid)
}

// EvictRoom kicks every member and drops the room.
func (o *Orchestrator) EvictRoom(roomID domain.RoomID) {
	for _, b := range o.Registry.InRoom(roomID) {
		o.KickBySID(b.SID)
	}
	o.Rooms.StopRoom(roomID)
}

func (o *Orchestrator) stopIfEmpty(roomID domain.RoomID, room core.RoomService) {
	if room.MemberCount() == 0 {
		o.Rooms.StopRoom(roomID)
	}
}
