package app

import (
	"testing"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSignal struct{}

func (nopSignal) TrySend(core.Frame) error { return nil }
func (nopSignal) Close()                   {}

func member(id string) core.MemberSession {
	return core.NewMemberSession(domain.NewMember(domain.MemberID(id)), nopSignal{})
}

func TestRegistryBindLookupUnbind(t *testing.T) {
	r := NewRegistry()
	a := member("a")
	canceled := false
	r.Bind(Binding{SID: "s1", Room: "r1", Session: a, Cancel: func() { canceled = true }})

	b, ok := r.Lookup("s1")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("r1"), b.Room)
	assert.False(t, b.Since.IsZero())

	sid, ok := r.SIDOf(a)
	require.True(t, ok)
	assert.Equal(t, core.SessionID("s1"), sid)

	assert.True(t, r.Cancel("s1"))
	assert.True(t, canceled)
	assert.False(t, r.Cancel("nope"))

	got, ok := r.Unbind("s1")
	require.True(t, ok)
	assert.Equal(t, a, got.Session)
	_, ok = r.SIDOf(a)
	assert.False(t, ok)
	_, ok = r.Unbind("s1")
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestRegistryRebindDropsOldSession(t *testing.T) {
	r := NewRegistry()
	first, second := member("a"), member("a2")
	r.Bind(Binding{SID: "s1", Room: "r1", Session: first})
	r.Bind(Binding{SID: "s1", Room: "r2", Session: second})

	_, ok := r.SIDOf(first)
	assert.False(t, ok)
	assert.Empty(t, r.InRoom("r1"))
	require.Len(t, r.InRoom("r2"), 1)
	assert.Equal(t, 1, r.Len())
}
