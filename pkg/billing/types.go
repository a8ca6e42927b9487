package billing

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Metadata keys this system writes into provider records at checkout
// creation time and reads back during completion. The onboarding marker
// proves a session was created for the onboarding flow and not some other
// checkout (one-off purchases, seat top-ups).
const (
	MetaOnboardingMarker = "costkit_onboarding"
	MetaUserID           = "user_id"
	MetaOrgName          = "org_name"
	MetaOrgType          = "org_type"
	MetaCurrency         = "currency"
	MetaTimezone         = "timezone"
	MetaCountry          = "country"
	MetaLanguage         = "language"
	MetaOrgSlug          = "org_slug"
	MetaTenantID         = "tenant_id"
)

// sessionIDFormat accepts both Stripe-style (cs_...) and Paddle-style
// (txn_...) identifiers without committing to either prefix.
var sessionIDFormat = regexp.MustCompile(`^[a-zA-Z0-9_-]{8,255}$`)

// ValidSessionID reports whether id has a plausible checkout-session
// shape. Checked before any provider I/O so garbage input never costs an
// API call.
func ValidSessionID(id string) bool {
	return sessionIDFormat.MatchString(id)
}

// CheckoutSession is the validated view of a provider checkout record.
// Always re-fetched from the provider; never populated from
// client-supplied state.
type CheckoutSession struct {
	ID             string
	Status         string // provider vocabulary; "complete" is the only accepted value
	Metadata       map[string]string
	SubscriptionID string
	CustomerID     string
	CustomerEmail  string
}

// IsComplete reports whether the session finished payment.
func (s *CheckoutSession) IsComplete() bool {
	return s.Status == "complete"
}

// HasOnboardingMarker reports whether the session was created by the
// onboarding flow.
func (s *CheckoutSession) HasOnboardingMarker() bool {
	return s.Metadata[MetaOnboardingMarker] == "true"
}

// BelongsTo reports whether the session was created for the given user.
func (s *CheckoutSession) BelongsTo(userID uuid.UUID) bool {
	return s.Metadata[MetaUserID] == userID.String()
}

// OrgName returns the pending tenant's display name carried in metadata.
func (s *CheckoutSession) OrgName() string {
	return s.Metadata[MetaOrgName]
}

// Subscription is the validated view of a provider subscription linked to
// a completed checkout.
type Subscription struct {
	ID              string
	Status          string // provider vocabulary, mapped via MapProviderStatus
	PriceID         string
	ProductID       string
	CustomerID      string
	TrialEnd        *time.Time        // nil when the plan has no trial
	ProductMetadata map[string]string // plan limits live here, parsed by ParsePlanMetadata
}
