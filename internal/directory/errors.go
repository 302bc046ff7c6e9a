package directory

import "errors"

// ErrTransient wraps an upstream error whose retry budget has been
// exhausted (spec.md §4.1 "thereafter the error propagates").
var ErrTransient = errors.New("directory: transient upstream error, retries exhausted")

// ErrVanished marks a per-entity patch failure caused by the target user
// no longer existing upstream — non-retryable but expected during
// provisioning (spec.md §7 "Per-entity upstream").
var ErrVanished = errors.New("directory: entity no longer exists upstream")
