package syncqueue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists queue entries.
type Store interface {
	// Enqueue persists a pending entry.
	Enqueue(ctx context.Context, e *Entry) error

	// ClaimPending atomically moves up to limit pending entries to
	// processing and returns them. Claims skip rows locked by a
	// concurrent sweep, making the sweep re-entrant.
	ClaimPending(ctx context.Context, limit int) ([]Entry, error)

	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string, retryable bool) error

	// Requeue moves a failed retryable entry back to pending. The only
	// backward transition, and always explicit.
	Requeue(ctx context.Context, id uuid.UUID) error

	Stats(ctx context.Context) (*Stats, error)
}

// Stats is the operator view of queue depth, used for backlog alerting.
type Stats struct {
	Pending          int64         `json:"pending"`
	Processing       int64         `json:"processing"`
	Completed        int64         `json:"completed"`
	Failed           int64         `json:"failed"`
	OldestPendingAge time.Duration `json:"oldest_pending_age"`
}

// PGStore is the pgx implementation of Store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed queue store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Enqueue(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	e.Status = StatusPending
	e.Retryable = true

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_queue (id, tenant_id, org_slug, sync_type, payload, status, retryable, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8)`,
		e.ID, e.TenantID, e.OrgSlug, e.SyncType, e.Payload, e.Status, e.CreatedAt, e.UpdatedAt,
	)
	return err
}

func (s *PGStore) ClaimPending(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE sync_queue
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM sync_queue
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, tenant_id, org_slug, sync_type, payload, status, retryable, last_error, created_at, updated_at, processed_at`,
		limit,
	)
	if err != nil {
		return nil, err
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		var lastError *string
		err := row.Scan(&e.ID, &e.TenantID, &e.OrgSlug, &e.SyncType, &e.Payload,
			&e.Status, &e.Retryable, &lastError, &e.CreatedAt, &e.UpdatedAt, &e.ProcessedAt)
		if lastError != nil {
			e.LastError = *lastError
		}
		return e, err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *PGStore) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sync_queue
		SET status = 'completed', last_error = NULL, processed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (s *PGStore) MarkFailed(ctx context.Context, id uuid.UUID, lastError string, retryable bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sync_queue
		SET status = 'failed', last_error = $2, retryable = $3, processed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`,
		id, lastError, retryable,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (s *PGStore) Requeue(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sync_queue
		SET status = 'pending', updated_at = NOW()
		WHERE id = $1 AND status = 'failed' AND retryable`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.Join(ErrNotRequeueable, ErrInvalidTransition)
	}
	return nil
}

func (s *PGStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	var oldestPending *time.Time

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			MIN(created_at) FILTER (WHERE status = 'pending')
		FROM sync_queue`,
	).Scan(&stats.Pending, &stats.Processing, &stats.Completed, &stats.Failed, &oldestPending)
	if err != nil {
		return nil, err
	}

	if oldestPending != nil {
		stats.OldestPendingAge = time.Since(*oldestPending)
	}
	return stats, nil
}
