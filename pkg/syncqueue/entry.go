package syncqueue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/costkit/pkg/backend"
)

// SyncType tags which flow produced an entry. Backend-side handling is
// idempotent keyed by org slug + sync type, so replaying an entry is safe.
type SyncType string

const (
	SyncCheckout       SyncType = "checkout"
	SyncPlanChange     SyncType = "plan_change"
	SyncWebhook        SyncType = "webhook"
	SyncCancellation   SyncType = "cancellation"
	SyncReconciliation SyncType = "reconciliation"
)

// Status of a queue entry. Transitions move only forward: pending →
// processing → completed or failed. A failed retryable entry returns to
// pending only through an explicit Requeue.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Entry is a durable billing-state change intent that could not reach the
// backend synchronously. Failed entries are never dropped; they stay
// inspectable with their last error.
type Entry struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	OrgSlug     string          `json:"org_slug"`
	SyncType    SyncType        `json:"sync_type"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Retryable   bool            `json:"retryable"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// NewEntry builds a pending entry carrying the billing-state delta to
// apply.
func NewEntry(tenantID uuid.UUID, orgSlug string, syncType SyncType, state backend.BillingState) (*Entry, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &Entry{
		ID:       uuid.New(),
		TenantID: tenantID,
		OrgSlug:  orgSlug,
		SyncType: syncType,
		Payload:  payload,
		Status:   StatusPending,
	}, nil
}

// State decodes the billing-state delta from the payload.
func (e *Entry) State() (backend.BillingState, error) {
	var state backend.BillingState
	err := json.Unmarshal(e.Payload, &state)
	return state, err
}
