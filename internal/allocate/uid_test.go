package allocate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateID_FirstFreeForward(t *testing.T) {
	c := NewCursor(20000)
	inUse := map[int64]bool{}

	got := AllocateID(c, 20000, inUse)
	require.Equal(t, int64(20000), got)
	require.Equal(t, int64(20001), c.Next())
}

func TestAllocateID_SkipsCollision(t *testing.T) {
	c := NewCursor(20000)
	inUse := map[int64]bool{20000: true}

	got := AllocateID(c, 20000, inUse)
	require.Equal(t, int64(20001), got)
}

func TestAllocateID_NeverReconsidersCursor(t *testing.T) {
	c := NewCursor(20000)
	inUse := map[int64]bool{}

	first := AllocateID(c, 20000, inUse)
	second := AllocateID(c, 20000, inUse)
	require.Equal(t, int64(20000), first)
	require.Equal(t, int64(20001), second)
}

func TestAllocateID_RespectsStartOverCursor(t *testing.T) {
	c := NewCursor(100)
	inUse := map[int64]bool{}

	got := AllocateID(c, 20000, inUse)
	require.Equal(t, int64(20000), got)
}
