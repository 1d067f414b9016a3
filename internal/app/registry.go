package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Binding ties one relay connection to the room it joined.
type Binding struct {
	SID     core.SessionID
	Room    domain.RoomID
	Session core.MemberSession
	// Cancel stops the connection's pumps.
	Cancel context.CancelFunc
	Since  time.Time
}

// Registry is the relay's connection table, indexed both by connection id
// and by member session.
type Registry struct {
	mu     sync.RWMutex
	bySID  map[core.SessionID]Binding
	bySess map[core.MemberSession]core.SessionID
}

func NewRegistry() *Registry {
	return &Registry{
		bySID:  make(map[core.SessionID]Binding),
		bySess: make(map[core.MemberSession]core.SessionID),
	}
}

// Bind records b, replacing any earlier binding of the same connection.
func (r *Registry) Bind(b Binding) {
	if b.Since.IsZero() {
		b.Since = time.Now()
	}
	r.mu.Lock()
	if old, ok := r.bySID[b.SID]; ok {
		delete(r.bySess, old.Session)
	}
	r.bySID[b.SID] = b
	r.bySess[b.Session] = b.SID
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("sid", string(b.SID)).Str("room", string(b.Room)).Msg("bound session")
}

func (r *Registry) Lookup(sid core.SessionID) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bySID[sid]
	return b, ok
}

// Unbind forgets sid and returns what it was bound to.
func (r *Registry) Unbind(sid core.SessionID) (Binding, bool) {
	r.mu.Lock()
	b, ok := r.bySID[sid]
	if ok {
		delete(r.bySID, sid)
		delete(r.bySess, b.Session)
	}
	r.mu.Unlock()
	if ok {
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Dur("connected", time.Since(b.Since)).Msg("unbind session")
	}
	return b, ok
}

// SIDOf finds the connection that owns sess.
func (r *Registry) SIDOf(sess core.MemberSession) (core.SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.bySess[sess]
	return sid, ok
}

func (r *Registry) InRoom(room domain.RoomID) []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Binding
	for _, b := range r.bySID {
		if b.Room == room {
			out = append(out, b)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

// Cancel stops the pumps of sid's connection without unbinding it.
func (r *Registry) Cancel(sid core.SessionID) bool {
	b, ok := r.Lookup(sid)
	if !ok {
		return false
	}
	if b.Cancel != nil {
		b.Cancel()
	}
	log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
