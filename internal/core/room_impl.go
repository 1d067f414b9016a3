package core

import (
	"sync"

	"github.com/dkeye/peercall/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room  *domain.Room
	mu    sync.RWMutex
	bySID map[SessionID]MemberSession
	order []SessionID
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:  room,
		bySID: make(map[SessionID]MemberSession),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) AddMember(sid SessionID, ms MemberSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; ok {
		r.bySID[sid] = ms
		return nil
	}
	if r.room.Capacity > 0 && len(r.bySID) >= r.room.Capacity {
		log.Warn().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Msg("room full")
		return ErrRoomFull
	}
	r.bySID[sid] = ms
	r.order = append(r.order, sid)
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Msg("member added")
	return nil
}

func (r *roomImpl) RemoveMember(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; !ok {
		return
	}
	delete(r.bySID, sid)
	for i, s := range r.order {
		if s == sid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Msg("member removed")
}

// Broadcast relays a frame to every member except the sender, in join order.
func (r *roomImpl) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for _, sid := range r.order {
		if sid == from {
			continue
		}
		m := r.bySID[sid]
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.order))
	for _, sid := range r.order {
		out = append(out, MemberDTO{ID: r.bySID[sid].Meta().ID})
	}
	return out
}
