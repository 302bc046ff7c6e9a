package allocate

// Cursor tracks the forward-allocation pointer for a single ID space (uid
// or gid), so repeated calls within a provisioning run never reconsider a
// value already handed out, and the final value can be persisted for the
// next run to resume from (spec.md §4.2 "insert it; advance cursor to
// chosen+1").
type Cursor struct {
	next int64
}

// NewCursor starts a cursor at start.
func NewCursor(start int64) *Cursor {
	return &Cursor{next: start}
}

// Next returns the current forward pointer without consuming it.
func (c *Cursor) Next() int64 { return c.next }

// AllocateID returns the smallest integer >= max(c.Next(), start) absent
// from inUse, marks it used, and advances the cursor past it (spec.md
// §4.2 "UID allocation"). The same function serves independent-policy GID
// allocation; callers implementing gid_equals_uid skip calling this a
// second time and instead reuse the allocated UID.
func AllocateID(c *Cursor, start int64, inUse map[int64]bool) int64 {
	candidate := c.next
	if start > candidate {
		candidate = start
	}
	for inUse[candidate] {
		candidate++
	}
	inUse[candidate] = true
	c.next = candidate + 1
	return candidate
}
