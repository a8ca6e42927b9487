package tenant

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/costkit/pkg/billing"
)

// Tenant is a provisioned customer organization. Created exactly once per
// successful checkout, mutated by plan changes and webhook-driven billing
// events, never hard-deleted.
type Tenant struct {
	ID     uuid.UUID `json:"id"`
	Slug   string    `json:"slug"` // immutable, globally unique external identifier
	Name   string    `json:"name"`
	PlanID string    `json:"plan_id"`

	BillingStatus billing.Status `json:"billing_status"`
	TrialEndsAt   *time.Time     `json:"trial_ends_at,omitempty"` // UTC, normalized to end of day

	// Limits are sourced from the provider's product metadata at checkout,
	// never hardcoded.
	SeatLimit       int `json:"seat_limit"`
	ProviderLimit   int `json:"provider_limit"`
	ThroughputLimit int `json:"throughput_limit"`

	// Locale defaults applied to the tenant's cost dashboards.
	Currency string `json:"currency"`
	Timezone string `json:"timezone"`
	Country  string `json:"country"`
	Language string `json:"language"`

	// External billing references.
	BillingCustomerID     string `json:"billing_customer_id"`
	BillingSubscriptionID string `json:"billing_subscription_id"`
	BillingPriceID        string `json:"billing_price_id"`

	// Backend provisioning state. A false flag with a reason means the
	// tenant exists but the backend call failed (degraded success).
	BackendOnboarded     bool   `json:"backend_onboarded"`
	BackendOnboardingErr string `json:"backend_onboarding_error,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"` // soft lifecycle only
}

// MemberRoleOwner is assigned to the user who completed the checkout.
const MemberRoleOwner = "owner"

// Member links a user to a tenant.
type Member struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeTrialEnd pushes a trial expiry to the end of its UTC day, so a
// trial never lapses mid-workday regardless of the provider's exact
// timestamp.
func NormalizeTrialEnd(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}

// TrialEndFromDays computes a trial expiry n days from now, end-of-day UTC.
func TrialEndFromDays(now time.Time, days int) time.Time {
	return NormalizeTrialEnd(now.UTC().AddDate(0, 0, days))
}
