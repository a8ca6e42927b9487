package billing

import "errors"

var (
	ErrInvalidSessionID      = errors.New("checkout session id has an invalid format")
	ErrSessionNotFound       = errors.New("checkout session not found")
	ErrSessionNotComplete    = errors.New("checkout session is not complete")
	ErrNotOnboardingSession  = errors.New("checkout session was not created for onboarding")
	ErrSessionOwnerMismatch  = errors.New("checkout session belongs to a different user")
	ErrNoSubscription        = errors.New("checkout session has no linked subscription")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrMissingPlanMetadata   = errors.New("required plan metadata is missing from the billing product")
	ErrInvalidPlanMetadata   = errors.New("plan metadata on the billing product is malformed")
	ErrProviderUnavailable   = errors.New("billing provider request failed")
	ErrUnsupportedProvider   = errors.New("unsupported billing provider")
	ErrMissingAPIKey         = errors.New("billing provider API key is required")
)
