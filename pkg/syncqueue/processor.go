package syncqueue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/costkit/pkg/backend"
)

// Summary aggregates one sweep's outcome.
type Summary struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Processor drains pending entries into the backend, classifying each
// failure as retryable (5xx, timeout, network) or permanent (4xx).
type Processor struct {
	store   Store
	backend backend.Provisioner
	log     *slog.Logger
}

// NewProcessor creates a queue processor.
func NewProcessor(store Store, provisioner backend.Provisioner, log *slog.Logger) *Processor {
	if store == nil {
		panic("syncqueue: Store is required")
	}
	if provisioner == nil {
		panic("syncqueue: backend.Provisioner is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Processor{store: store, backend: provisioner, log: log}
}

// ProcessPending claims up to limit pending entries and attempts the
// backend sync for each. Delivery is at-least-once: a crash after the
// backend call but before the status update replays the entry, which the
// backend tolerates by being idempotent per slug + sync type.
func (p *Processor) ProcessPending(ctx context.Context, limit int) (*Summary, error) {
	entries, err := p.store.ClaimPending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("syncqueue: claim pending entries: %w", err)
	}

	summary := &Summary{}
	for _, entry := range entries {
		summary.Processed++

		if err := p.processOne(ctx, &entry); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s (%s): %v", entry.OrgSlug, entry.SyncType, err))
			continue
		}
		summary.Succeeded++
	}

	if summary.Processed > 0 {
		p.log.InfoContext(ctx, "sync queue sweep finished",
			"processed", summary.Processed,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
		)
	}
	return summary, nil
}

func (p *Processor) processOne(ctx context.Context, entry *Entry) error {
	state, err := entry.State()
	if err != nil {
		// Undecodable payload can never succeed; park it as permanent.
		if markErr := p.store.MarkFailed(ctx, entry.ID, "invalid payload: "+err.Error(), false); markErr != nil {
			p.log.ErrorContext(ctx, "failed to mark sync entry failed", "entry_id", entry.ID, "error", markErr)
		}
		return err
	}

	if err := p.backend.SyncBillingState(ctx, entry.OrgSlug, state); err != nil {
		retryable := backend.IsRetryable(err)
		if markErr := p.store.MarkFailed(ctx, entry.ID, err.Error(), retryable); markErr != nil {
			p.log.ErrorContext(ctx, "failed to mark sync entry failed", "entry_id", entry.ID, "error", markErr)
		}
		p.log.WarnContext(ctx, "backend sync failed",
			"entry_id", entry.ID,
			"org_slug", entry.OrgSlug,
			"sync_type", entry.SyncType,
			"retryable", retryable,
			"error", err,
		)
		return err
	}

	if err := p.store.MarkCompleted(ctx, entry.ID); err != nil {
		p.log.ErrorContext(ctx, "failed to mark sync entry completed", "entry_id", entry.ID, "error", err)
		return err
	}
	return nil
}
