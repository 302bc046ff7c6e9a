package allocate

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
)

// GIDRange is the inclusive [Start, End] range directory-group
// GIDs are drawn from (spec.md §4.2, defaults 30000-39999 applied by the
// caller).
type GIDRange struct {
	Start int64
	End   int64
}

func (r GIDRange) size() int64 { return r.End - r.Start + 1 }

// base computes the deterministic starting slot for groupID within r
// (spec.md §4.2: start + first_8_bytes_of_SHA256(group_id) mod range_size).
func (r GIDRange) base(groupID string) int64 {
	sum := sha256.Sum256([]byte(groupID))
	h := binary.BigEndian.Uint64(sum[:8])
	return r.Start + int64(h%uint64(r.size()))
}

// DeterministicGID assigns each group in groupIDs a GID within r, processed
// in ascending lexicographic order so two independent runs over the same
// inputs converge (spec.md §4.2 "Groups are processed in ascending
// lexicographic order"). used holds GIDs already claimed (typically
// active users' primary GIDs) and is mutated in place as each group
// claims a slot, so it can be reused as the "used" accumulator across
// calls within a single run.
func DeterministicGID(groupIDs []string, r GIDRange, used map[int64]bool) (map[string]int64, error) {
	ordered := append([]string(nil), groupIDs...)
	sort.Strings(ordered)

	result := make(map[string]int64, len(ordered))
	size := r.size()

	for _, id := range ordered {
		start := r.base(id)
		gid := start
		claimed := false
		for i := int64(0); i < size; i++ {
			if !used[gid] {
				claimed = true
				break
			}
			gid++
			if gid > r.End {
				gid = r.Start
			}
		}
		if !claimed {
			return nil, ErrRangeExhausted
		}
		used[gid] = true
		result[id] = gid
	}
	return result, nil
}
