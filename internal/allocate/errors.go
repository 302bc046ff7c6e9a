// Package allocate implements the Allocator (spec.md §4.2): stateless
// assignment of sanitised usernames, user UIDs, and group GIDs that avoids
// collisions with a supplied live set. Every function here is pure given
// its inputs — no I/O, no package-level state.
package allocate

import "errors"

// ErrRangeExhausted is returned by DeterministicGID when every slot in the
// configured GID range is already claimed.
var ErrRangeExhausted = errors.New("allocate: gid range exhausted")
