// Package orch ties relay connections to rooms: admission, fan-out of
// signaling frames and cleanup when members leave.
package orch

import (
	"github.com/dkeye/peercall/internal/app"
	"github.com/dkeye/peercall/internal/core"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomFactory
	Policy   app.Policy
}

// OnFrame relays a frame from sid to the rest of its room.
func (o *Orchestrator) OnFrame(sid core.SessionID, data core.Frame) {
	b, ok := o.Registry.Lookup(sid)
	if !ok {
		return
	}
	room, ok := o.Rooms.Get(b.Room)
	if !ok {
		return
	}

	res := room.Broadcast(sid, data)
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			if slowSID, ok := o.Registry.SIDOf(slow); ok {
				log.Warn().Str("module", "orch").Str("sid", string(slowSID)).Msg("kicking slow member")
				o.KickBySID(slowSID)
			}
		case app.DropFrame, app.NoAction:
		}
	}
}
