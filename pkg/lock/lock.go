package lock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/costkit/pkg/pg"
	"github.com/dmitrymomot/costkit/pkg/retry"
)

// DefaultTTL bounds how long an abandoned lock can block other requests.
// A crashed request's lock becomes ignorable after this long.
const DefaultTTL = 60 * time.Second

// Row is a lock record as stored in the datastore.
type Row struct {
	Key       string
	OwnerID   uuid.UUID
	ExpiresAt time.Time
}

// Store persists lock rows. Insert must fail with a unique-constraint
// violation when the key is already held; that violation, not the
// read-back, is what makes Acquire race-free.
type Store interface {
	Insert(ctx context.Context, row Row) error
	Get(ctx context.Context, key string) (*Row, error)
	Delete(ctx context.Context, key string) error
	// DeleteExpired removes the row only if it has expired, reporting
	// whether a row was reaped. The condition must be evaluated by the
	// datastore: an unconditional delete could remove a fresh lock some
	// concurrent reaper inserted after our read.
	DeleteExpired(ctx context.Context, key string) (bool, error)
}

// Manager is a short-lived, row-based mutual exclusion primitive. It is
// advisory: it exists to fail fast on concurrent duplicates (two browser
// tabs, a webhook racing a page load), not to replace the idempotency
// checks callers must still perform.
type Manager struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// NewManager creates a lock manager over the given store.
func NewManager(store Store, log *slog.Logger) *Manager {
	if store == nil {
		panic("lock: Store is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: store, log: log, now: time.Now}
}

// Acquire takes the lock for ownerID with the given TTL. On contention it
// reads the holder back: an expired holder is lazily reaped and the
// insert retried once; the caller's own live lock reports
// ErrAlreadyInProgress; anyone else's reports ErrHeldByAnother.
func (m *Manager) Acquire(ctx context.Context, key string, ownerID uuid.UUID, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	for attempt := range 2 {
		err := m.store.Insert(ctx, Row{Key: key, OwnerID: ownerID, ExpiresAt: m.now().Add(ttl)})
		if err == nil {
			return nil
		}
		if !pg.IsDuplicateKeyError(err) {
			return errors.Join(ErrAcquireFailed, err)
		}

		holder, getErr := m.store.Get(ctx, key)
		if getErr != nil {
			if pg.IsNotFoundError(getErr) {
				// Holder released between insert and read; one more try.
				continue
			}
			return errors.Join(ErrAcquireFailed, getErr)
		}

		if holder.ExpiresAt.Before(m.now()) {
			// Lazy expiry: an expired lock is treated as absent, but the
			// reap must stay conditional so a fresh lock inserted by a
			// concurrent reaper is never swept away.
			reaped, delErr := m.store.DeleteExpired(ctx, key)
			if delErr != nil {
				return errors.Join(ErrAcquireFailed, delErr)
			}
			if !reaped {
				// Someone else reaped and re-acquired first.
				return ErrHeldByAnother
			}
			if attempt == 0 {
				continue
			}
			return ErrHeldByAnother
		}

		if holder.OwnerID == ownerID {
			return ErrAlreadyInProgress
		}
		return ErrHeldByAnother
	}

	return ErrHeldByAnother
}

// Release deletes the lock row. Cleanup failures are logged and swallowed:
// the TTL bounds staleness, so a failed delete must never surface as a
// user-visible error.
func (m *Manager) Release(ctx context.Context, key string) {
	err := retry.Do(ctx, retry.Linear(3, 100*time.Millisecond), func(ctx context.Context) error {
		return m.store.Delete(ctx, key)
	})
	if err != nil {
		m.log.ErrorContext(ctx, "failed to release onboarding lock, relying on TTL expiry",
			"lock_key", key, "error", err)
	}
}
