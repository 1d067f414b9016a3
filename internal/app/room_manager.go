package app

import (
	"sync"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type RoomManagerImpl struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]core.RoomService
	capacity int
}

// NewRoomManager builds rooms that admit at most capacity members.
func NewRoomManager(capacity int) core.RoomFactory {
	return &RoomManagerImpl{
		rooms:    make(map[domain.RoomID]core.RoomService),
		capacity: capacity,
	}
}

// Create opens a room under a fresh uuid.
func (f *RoomManagerImpl) Create() core.RoomService {
	id := domain.RoomID(uuid.NewString())
	room := f.GetOrCreate(id)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	return room
}

func (f *RoomManagerImpl) GetOrCreate(id domain.RoomID) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[id]; ok {
		return room
	}
	room = core.NewRoomService(&domain.Room{ID: id, Capacity: f.capacity})
	f.rooms[id] = room
	return room
}

func (f *RoomManagerImpl) Get(id domain.RoomID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount()})
	}
	return out
}

func (f *RoomManagerImpl) StopRoom(id domain.RoomID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, id)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room stopped")
}
