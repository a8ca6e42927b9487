package slug

import (
	"context"
	"errors"
)

// MaxAttempts bounds the collision retry loop. Exhausting it is reported
// to the user as a request for a shorter organization name rather than
// surfacing a raw uniqueness error.
const MaxAttempts = 3

// TakenFunc reports whether a slug already exists in the datastore.
type TakenFunc func(ctx context.Context, slug string) (bool, error)

// Allocator derives unique slugs against a taken-set. The check is a fast
// path only: callers inserting rows must still react to the datastore
// uniqueness constraint, since two allocators can pass the check
// concurrently.
type Allocator struct {
	taken TakenFunc
}

// NewAllocator creates an Allocator backed by the given taken-set check.
func NewAllocator(taken TakenFunc) *Allocator {
	if taken == nil {
		panic("slug: TakenFunc is required")
	}
	return &Allocator{taken: taken}
}

// Allocate returns a slug for name that did not exist at check time. The
// first attempt uses the plain derivation; subsequent attempts append a
// random suffix. After MaxAttempts collisions it returns ErrOutOfAttempts.
func (a *Allocator) Allocate(ctx context.Context, name string) (string, error) {
	candidate, err := Derive(name)
	if err != nil {
		return "", err
	}

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if attempt > 1 {
			candidate, err = WithRandomSuffix(candidate)
			if err != nil {
				return "", err
			}
		}

		exists, err := a.taken(ctx, candidate)
		if err != nil {
			return "", errors.Join(ErrAllocationFailed, err)
		}
		if !exists {
			return candidate, nil
		}
	}

	return "", ErrOutOfAttempts
}

// Next returns the retry candidate to use after a datastore uniqueness
// violation on a previously allocated slug.
func Next(previous string) (string, error) {
	return WithRandomSuffix(previous)
}
