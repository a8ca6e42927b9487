package onboarding

import "errors"

var (
	// ErrTenantNotFound is returned by the operator retry when the slug
	// resolves to nothing.
	ErrTenantNotFound = errors.New("no tenant found for this organization")

	// ErrAlreadyProvisioned is returned by the operator retry when the
	// backend flag is already set; there is nothing to redo.
	ErrAlreadyProvisioned = errors.New("backend provisioning already completed for this tenant")

	// ErrCompletionFailed wraps unexpected internal failures during
	// checkout completion.
	ErrCompletionFailed = errors.New("failed to complete checkout")

	// ErrEventNotApplicable is returned when a billing event references a
	// subscription no tenant carries. Expected for non-onboarding
	// subscriptions; the webhook caller acknowledges and drops it.
	ErrEventNotApplicable = errors.New("billing event does not match any tenant")
)
