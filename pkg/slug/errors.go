package slug

import "errors"

var (
	// ErrNameTooShort is returned when a display name has no usable
	// characters left after sanitization. Rejected-input: the caller
	// should ask the user for a different name.
	ErrNameTooShort = errors.New("organization name is too short to derive an identifier")

	// ErrInvalidSlug is returned when a composed candidate fails the
	// canonical format check.
	ErrInvalidSlug = errors.New("derived identifier does not match the required format")

	// ErrOutOfAttempts is returned after the bounded collision retry loop
	// is exhausted. User-actionable: a shorter name gives the random
	// suffix more room.
	ErrOutOfAttempts = errors.New("could not derive a unique identifier, please try a shorter name")

	// ErrAllocationFailed wraps datastore errors from the taken-set check.
	ErrAllocationFailed = errors.New("failed to check identifier availability")
)
