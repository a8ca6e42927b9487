package syncqueue

import "errors"

var (
	// ErrInvalidTransition means the requested status change did not match
	// the entry's current state. Entries only move forward.
	ErrInvalidTransition = errors.New("sync queue entry is not in the expected status")

	// ErrNotRequeueable means the entry is not failed-and-retryable; 4xx
	// failures stay parked for operator inspection.
	ErrNotRequeueable = errors.New("sync queue entry is not eligible for requeue")
)
