package slab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlabInsertGetRemove(t *testing.T) {
	s := New[string]()

	a := s.Insert("a")
	b := s.Insert("b")
	require.Equal(t, 0, a)
	require.Equal(t, 1, b)

	v, ok := s.Get(a)
	require.True(t, ok)
	require.Equal(t, "a", v)

	removed, ok := s.Remove(a)
	require.True(t, ok)
	require.Equal(t, "a", removed)

	_, ok = s.Get(a)
	require.False(t, ok)

	// The freed cell is reused before growing.
	c := s.Insert("c")
	require.Equal(t, a, c)
	require.Equal(t, 2, s.Cap())
}

func TestSlabReserveThenSet(t *testing.T) {
	s := New[int]()
	idx := s.Reserve()
	require.False(t, s.Contains(idx))
	s.Set(idx, 42)
	v, ok := s.Get(idx)
	require.True(t, ok)
	require.Equal(t, 42, v)
}

func TestSlabReserveRemoveReentrant(t *testing.T) {
	s := New[int]()
	idx := s.Insert(7)

	v, ok := s.ReserveRemove(idx)
	require.True(t, ok)
	require.Equal(t, 7, v)
	require.False(t, s.Contains(idx))

	// Reserve() must not hand this index out again while it's checked out:
	// it is Reserved, not Empty, so a fresh Reserve grows instead of reusing it.
	other := s.Reserve()
	require.NotEqual(t, idx, other)

	s.Set(idx, 8)
	v, ok = s.Get(idx)
	require.True(t, ok)
	require.Equal(t, 8, v)
}

func TestSlabFreeReleasesReservedCell(t *testing.T) {
	s := New[int]()
	idx := s.Insert(1)

	_, ok := s.ReserveRemove(idx)
	require.True(t, ok)

	s.Free(idx)
	reused := s.Reserve()
	require.Equal(t, idx, reused)
}
