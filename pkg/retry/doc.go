// Package retry provides a small retry-with-backoff helper shared by every
// component that talks to an unreliable collaborator: the subscription
// metadata writeback, lock cleanup, and the sync-queue sweep all use the
// same loop instead of hand-rolled sleep cycles.
//
// Usage:
//
//	cfg := retry.Exponential(3, 500*time.Millisecond, 4*time.Second).
//		WithRetryable(backend.IsRetryable)
//	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
//		return client.SyncBillingState(ctx, slug, state)
//	})
package retry
