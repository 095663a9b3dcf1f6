package types

import "errors"

// Sentinel errors shared across packages that consume canonical types.
// Using sentinels instead of ad-hoc fmt.Errorf allows callers to match with
// errors.Is for reliable error handling.
var (
	// ErrNotReconstructible is returned when a file has neither a usable
	// snapshot nor any edit history to replay.
	ErrNotReconstructible = errors.New("file is not reconstructible: no snapshot or edits found")

	// ErrSourceNotFound is returned when a source_id does not exist.
	ErrSourceNotFound = errors.New("source not found")

	// ErrEventNotFound is returned when an event_id does not exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrInvalidTimeString is returned when a time filter cannot be parsed
	// by any of the forms internal/timeparse accepts.
	ErrInvalidTimeString = errors.New("invalid time string")
)
