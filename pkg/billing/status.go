package billing

import "strings"

// Status is the internal billing status stored on a tenant row.
type Status string

const (
	StatusTrialing  Status = "trialing"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// BackendStatus is the provisioning backend's vocabulary. SUSPENDED is the
// most restrictive state the backend accepts for an existing tenant, so it
// doubles as the conservative default: an unmapped provider status must
// never silently grant access.
type BackendStatus string

const (
	BackendTrialing  BackendStatus = "TRIALING"
	BackendActive    BackendStatus = "ACTIVE"
	BackendSuspended BackendStatus = "SUSPENDED"
	BackendExpired   BackendStatus = "EXPIRED"
	BackendCancelled BackendStatus = "CANCELLED"
)

// MapProviderStatus translates the payment provider's subscription status
// vocabulary into the internal status enum. The case list enumerates
// Stripe's documented set plus Paddle's spelling variants; the default is
// a backstop, not a mapping.
func MapProviderStatus(providerStatus string) Status {
	switch strings.ToLower(providerStatus) {
	case "trialing":
		return StatusTrialing
	case "active":
		return StatusActive
	case "past_due", "unpaid", "incomplete", "paused":
		return StatusSuspended
	case "incomplete_expired":
		return StatusExpired
	case "canceled", "cancelled":
		return StatusCancelled
	default:
		return StatusSuspended
	}
}

// MapStatusToBackend translates the internal status enum into the
// backend's vocabulary. Total over Status; anything unrecognized maps to
// the most restrictive backend status.
func MapStatusToBackend(status Status) BackendStatus {
	switch status {
	case StatusTrialing:
		return BackendTrialing
	case StatusActive:
		return BackendActive
	case StatusSuspended:
		return BackendSuspended
	case StatusExpired:
		return BackendExpired
	case StatusCancelled:
		return BackendCancelled
	default:
		return BackendSuspended
	}
}
