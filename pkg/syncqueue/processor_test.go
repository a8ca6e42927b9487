package syncqueue_test

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/costkit/pkg/backend"
	"github.com/dmitrymomot/costkit/pkg/billing"
	"github.com/dmitrymomot/costkit/pkg/syncqueue"
)

// memQueue is an in-memory Store mirroring the forward-only transition
// rules of the Postgres implementation.
type memQueue struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*syncqueue.Entry
}

func newMemQueue() *memQueue {
	return &memQueue{entries: make(map[uuid.UUID]*syncqueue.Entry)}
}

func (q *memQueue) Enqueue(ctx context.Context, e *syncqueue.Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e.Status = syncqueue.StatusPending
	e.Retryable = true
	e.CreatedAt = time.Now().UTC()
	cp := *e
	q.entries[e.ID] = &cp
	return nil
}

func (q *memQueue) ClaimPending(ctx context.Context, limit int) ([]syncqueue.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []syncqueue.Entry
	for _, e := range q.entries {
		if len(out) >= limit {
			break
		}
		if e.Status == syncqueue.StatusPending {
			e.Status = syncqueue.StatusProcessing
			out = append(out, *e)
		}
	}
	return out, nil
}

func (q *memQueue) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok || e.Status != syncqueue.StatusProcessing {
		return syncqueue.ErrInvalidTransition
	}
	e.Status = syncqueue.StatusCompleted
	return nil
}

func (q *memQueue) MarkFailed(ctx context.Context, id uuid.UUID, lastError string, retryable bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok || e.Status != syncqueue.StatusProcessing {
		return syncqueue.ErrInvalidTransition
	}
	e.Status = syncqueue.StatusFailed
	e.LastError = lastError
	e.Retryable = retryable
	return nil
}

func (q *memQueue) Requeue(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok || e.Status != syncqueue.StatusFailed || !e.Retryable {
		return syncqueue.ErrNotRequeueable
	}
	e.Status = syncqueue.StatusPending
	return nil
}

func (q *memQueue) Stats(ctx context.Context) (*syncqueue.Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := &syncqueue.Stats{}
	var oldest *time.Time
	for _, e := range q.entries {
		switch e.Status {
		case syncqueue.StatusPending:
			stats.Pending++
			if oldest == nil || e.CreatedAt.Before(*oldest) {
				t := e.CreatedAt
				oldest = &t
			}
		case syncqueue.StatusProcessing:
			stats.Processing++
		case syncqueue.StatusCompleted:
			stats.Completed++
		case syncqueue.StatusFailed:
			stats.Failed++
		}
	}
	if oldest != nil {
		stats.OldestPendingAge = time.Since(*oldest)
	}
	return stats, nil
}

func (q *memQueue) get(id uuid.UUID) syncqueue.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return *q.entries[id]
}

// fakeBackend implements backend.Provisioner with an injectable sync result.
type fakeBackend struct {
	syncErr error
	calls   int
}

func (b *fakeBackend) Onboard(ctx context.Context, req backend.OnboardRequest) (*backend.OnboardResult, error) {
	return &backend.OnboardResult{Success: true}, nil
}

func (b *fakeBackend) SyncBillingState(ctx context.Context, orgSlug string, state backend.BillingState) error {
	b.calls++
	return b.syncErr
}

func enqueueOne(t *testing.T, q *memQueue) *syncqueue.Entry {
	t.Helper()
	entry, err := syncqueue.NewEntry(uuid.New(), "acme_lx8h2k", syncqueue.SyncCheckout, backend.BillingState{
		Status: billing.BackendTrialing,
		PlanID: "pro",
	})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), entry))

	// Enqueue normalizes the struct to match the persisted row.
	require.Equal(t, syncqueue.StatusPending, entry.Status)
	require.True(t, entry.Retryable)
	return entry
}

func TestProcessPending(t *testing.T) {
	t.Parallel()

	nopLog := slog.New(slog.DiscardHandler)

	t.Run("success completes entry", func(t *testing.T) {
		t.Parallel()

		q := newMemQueue()
		entry := enqueueOne(t, q)
		b := &fakeBackend{}

		summary, err := syncqueue.NewProcessor(q, b, nopLog).ProcessPending(context.Background(), 10)
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Processed)
		assert.Equal(t, 1, summary.Succeeded)
		assert.Equal(t, 0, summary.Failed)
		assert.Equal(t, syncqueue.StatusCompleted, q.get(entry.ID).Status)
		assert.Equal(t, 1, b.calls)
	})

	t.Run("4xx marks failed non-requeueable", func(t *testing.T) {
		t.Parallel()

		q := newMemQueue()
		entry := enqueueOne(t, q)
		b := &fakeBackend{syncErr: &backend.Error{StatusCode: http.StatusBadRequest, Message: "unknown plan"}}

		summary, err := syncqueue.NewProcessor(q, b, nopLog).ProcessPending(context.Background(), 10)
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Failed)
		got := q.get(entry.ID)
		assert.Equal(t, syncqueue.StatusFailed, got.Status)
		assert.False(t, got.Retryable)
		assert.Contains(t, got.LastError, "unknown plan")

		// Explicit requeue must be rejected.
		assert.ErrorIs(t, q.Requeue(context.Background(), entry.ID), syncqueue.ErrNotRequeueable)
	})

	t.Run("5xx marks failed requeueable", func(t *testing.T) {
		t.Parallel()

		q := newMemQueue()
		entry := enqueueOne(t, q)
		b := &fakeBackend{syncErr: &backend.Error{StatusCode: http.StatusServiceUnavailable}}

		_, err := syncqueue.NewProcessor(q, b, nopLog).ProcessPending(context.Background(), 10)
		require.NoError(t, err)

		got := q.get(entry.ID)
		assert.Equal(t, syncqueue.StatusFailed, got.Status)
		assert.True(t, got.Retryable)

		// Requeue then a healthy sweep drains it.
		require.NoError(t, q.Requeue(context.Background(), entry.ID))
		b.syncErr = nil

		summary, err := syncqueue.NewProcessor(q, b, nopLog).ProcessPending(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Succeeded)
		assert.Equal(t, syncqueue.StatusCompleted, q.get(entry.ID).Status)
	})

	t.Run("network error marks failed requeueable", func(t *testing.T) {
		t.Parallel()

		q := newMemQueue()
		entry := enqueueOne(t, q)
		b := &fakeBackend{syncErr: backend.ErrUnreachable}

		_, err := syncqueue.NewProcessor(q, b, nopLog).ProcessPending(context.Background(), 10)
		require.NoError(t, err)

		got := q.get(entry.ID)
		assert.Equal(t, syncqueue.StatusFailed, got.Status)
		assert.True(t, got.Retryable)
	})

	t.Run("respects the batch limit", func(t *testing.T) {
		t.Parallel()

		q := newMemQueue()
		for range 5 {
			enqueueOne(t, q)
		}

		summary, err := syncqueue.NewProcessor(q, &fakeBackend{}, nopLog).ProcessPending(context.Background(), 2)
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Processed)

		stats, err := q.Stats(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, 3, stats.Pending)
		assert.EqualValues(t, 2, stats.Completed)
	})

	t.Run("empty queue is a no-op", func(t *testing.T) {
		t.Parallel()

		summary, err := syncqueue.NewProcessor(newMemQueue(), &fakeBackend{}, nopLog).ProcessPending(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.Processed)
	})
}

func TestStats(t *testing.T) {
	t.Parallel()

	q := newMemQueue()
	enqueueOne(t, q)
	enqueueOne(t, q)

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Pending)
	assert.GreaterOrEqual(t, stats.OldestPendingAge, time.Duration(0))
}
