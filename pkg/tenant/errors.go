package tenant

import "errors"

var (
	// ErrNotFound is returned when no tenant matches the lookup.
	ErrNotFound = errors.New("tenant not found")

	// ErrSlugTaken means the slug uniqueness constraint fired; the caller
	// should retry the insert with a new candidate.
	ErrSlugTaken = errors.New("tenant slug is already taken")

	// ErrSubscriptionExists means a tenant already references this
	// external subscription; a concurrent or earlier request won the
	// creation race. Treated as success by the orchestrator.
	ErrSubscriptionExists = errors.New("a tenant for this subscription already exists")

	// ErrCreateFailed wraps unexpected datastore errors during creation.
	ErrCreateFailed = errors.New("failed to create tenant")
)
