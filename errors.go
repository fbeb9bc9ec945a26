package pippin

import "errors"

// ErrUnknownTip is returned by WorkingFrom when the given sum isn't a
// state currently loaded in the partition's history.
var ErrUnknownTip = errors.New("pippin: unknown tip state")

// ErrNoTips is returned when an operation needs a tip but the partition
// holds no states at all (should only happen for a corrupt directory
// that yielded no usable snapshot).
var ErrNoTips = errors.New("pippin: partition has no states loaded")

// ErrMultipleTips is returned by operations that require a single
// current state (Commit, Snapshot) when the partition has diverged and
// is waiting on a Merge (spec §4.5: "read-only multi-tip state").
var ErrMultipleTips = errors.New("pippin: partition has multiple tips, merge required")

// ErrLogNotOwned is returned if an internal bug attempts to append to a
// log this session did not create (spec §5: "policy violation").
var ErrLogNotOwned = errors.New("pippin: log file not owned by this session")

// ErrNoUsableSnapshot is returned by Open when no snapshot for base_name
// is found, or when every discovered snapshot fails to verify.
var ErrNoUsableSnapshot = errors.New("pippin: no snapshot for this base name verifies")
