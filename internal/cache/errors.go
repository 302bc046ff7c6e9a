package cache

import "errors"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("cache: record not found")

// ErrConflict is returned by UpsertUser when a write would violate one of
// the active-user uniqueness indexes from spec.md §3 (distinct active
// uid/username). Group writes in ReplaceGroups return the driver's error
// unwrapped instead.
var ErrConflict = errors.New("cache: record conflicts with an existing one")
