package app

import (
	"sync"

	"github.com/dkeye/peercall/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a member whose outbound buffer is full.
type Policy interface {
	OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction
	Forget(member core.MemberSession)
}

// StrikePolicy drops frames for a slow member until it has been slow Max
// times, then kicks it.
type StrikePolicy struct {
	Max int

	mu      sync.Mutex
	strikes map[core.MemberSession]int
}

func NewStrikePolicy(limit int) *StrikePolicy {
	return &StrikePolicy{Max: limit, strikes: make(map[core.MemberSession]int)}
}

func (p *StrikePolicy) OnBackPressure(_ core.RoomService, member core.MemberSession) BackpressureAction {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.strikes[member]++
	if p.strikes[member] >= p.Max {
		delete(p.strikes, member)
		return KickMember
	}
	return DropFrame
}

func (p *StrikePolicy) Forget(member core.MemberSession) {
	p.mu.Lock()
	delete(p.strikes, member)
	p.mu.Unlock()
}
