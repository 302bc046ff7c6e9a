package allocate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeterministicGID_ConvergesAcrossRuns(t *testing.T) {
	ids := []string{"G1", "G2", "G3"}
	r := GIDRange{Start: 30000, End: 30003}

	first, err := DeterministicGID(ids, r, map[int64]bool{})
	require.NoError(t, err)

	second, err := DeterministicGID(ids, r, map[int64]bool{})
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestDeterministicGID_AddingGroupShiftsAtMostOne(t *testing.T) {
	r := GIDRange{Start: 30000, End: 30003}

	before, err := DeterministicGID([]string{"G1", "G2", "G3"}, r, map[int64]bool{})
	require.NoError(t, err)

	after, err := DeterministicGID([]string{"G1", "G2", "G3", "G4"}, r, map[int64]bool{})
	require.NoError(t, err)

	shifted := 0
	for id, gid := range before {
		if after[id] != gid {
			shifted++
		}
	}
	require.LessOrEqual(t, shifted, 1)
}

func TestDeterministicGID_ExhaustionIsFatal(t *testing.T) {
	r := GIDRange{Start: 30000, End: 30001}
	used := map[int64]bool{30000: true, 30001: true}

	_, err := DeterministicGID([]string{"G1"}, r, used)
	require.ErrorIs(t, err, ErrRangeExhausted)
}

func TestDeterministicGID_AvoidsPreclaimedUserGIDs(t *testing.T) {
	r := GIDRange{Start: 30000, End: 30009}
	used := map[int64]bool{}

	base := GIDRange{Start: 30000, End: 30009}.base("G1")
	used[base] = true // simulate a user already holding the would-be base GID

	got, err := DeterministicGID([]string{"G1"}, r, used)
	require.NoError(t, err)
	require.NotEqual(t, base, got["G1"])
}
