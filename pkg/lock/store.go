package lock

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists lock rows in the onboarding_locks table. The primary
// key on lock_key provides the uniqueness constraint Acquire relies on.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed lock store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Insert(ctx context.Context, row Row) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO onboarding_locks (lock_key, owner_id, expires_at) VALUES ($1, $2, $3)`,
		row.Key, row.OwnerID, row.ExpiresAt,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, key string) (*Row, error) {
	row := Row{Key: key}
	err := s.pool.QueryRow(ctx,
		`SELECT owner_id, expires_at FROM onboarding_locks WHERE lock_key = $1`,
		key,
	).Scan(&row.OwnerID, &row.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *PGStore) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM onboarding_locks WHERE lock_key = $1`, key)
	return err
}

func (s *PGStore) DeleteExpired(ctx context.Context, key string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM onboarding_locks WHERE lock_key = $1 AND expires_at < NOW()`, key)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
