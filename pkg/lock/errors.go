package lock

import "errors"

var (
	// ErrAlreadyInProgress means the caller already holds this lock from
	// another in-flight request. Retry shortly.
	ErrAlreadyInProgress = errors.New("this checkout is already being processed, retry shortly")

	// ErrHeldByAnother means a different request holds the lock.
	ErrHeldByAnother = errors.New("this checkout is being processed by another request")

	// ErrAcquireFailed wraps datastore errors during acquisition.
	ErrAcquireFailed = errors.New("failed to acquire onboarding lock")
)
