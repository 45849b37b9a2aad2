package net

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryMembership(t *testing.T) {
	reg := NewRegistry(nil)
	s := reg.Register(&fakePeer{}, owner, 1)
	require.Equal(t, 1, reg.Len())
	assert.NotEmpty(t, s.ID)
	assert.True(t, reg.InRoom(s, 1))
	assert.False(t, reg.InRoom(s, 2))

	reg.JoinRoom(s, 2)
	reg.LeaveRoom(s, 1)
	assert.False(t, reg.InRoom(s, 1))
	assert.True(t, reg.InRoom(s, 2))
}

func TestUnregisterIsIdempotent(t *testing.T) {
	reg := NewRegistry(nil)
	s := reg.Register(&fakePeer{}, owner, 1)
	assert.True(t, reg.Unregister(s))
	assert.False(t, reg.Unregister(s))
	assert.Zero(t, reg.Len())
	assert.False(t, reg.InRoom(s, 1))

	var seen int
	reg.ForEachInRoom(1, func(*Session) { seen++ })
	assert.Zero(t, seen)
}

func TestForEachInRoomRunsOutsideLock(t *testing.T) {
	reg := NewRegistry(nil)
	a := reg.Register(&fakePeer{}, owner, 1)
	b := reg.Register(&fakePeer{}, owner, 1)
	reg.Register(&fakePeer{}, owner, 2)

	var seen []string
	reg.ForEachInRoom(1, func(s *Session) {
		seen = append(seen, s.ID)
		// Touching the registry from the callback must not deadlock.
		reg.Unregister(s)
	})
	assert.ElementsMatch(t, []string{a.ID, b.ID}, seen)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryConcurrentUse(t *testing.T) {
	reg := NewRegistry(nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := reg.Register(&fakePeer{}, owner, 1)
			reg.ForEachInRoom(1, func(m *Session) { _ = m.Send([]byte("x")) })
			reg.JoinRoom(s, 2)
			reg.Unregister(s)
		}()
	}
	wg.Wait()
	assert.Zero(t, reg.Len())
}
