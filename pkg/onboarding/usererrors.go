package onboarding

import (
	"errors"
	"strings"

	"github.com/dmitrymomot/costkit/pkg/billing"
	"github.com/dmitrymomot/costkit/pkg/lock"
	"github.com/dmitrymomot/costkit/pkg/slug"
)

// userSafe lists sentinel errors whose text is already written for end
// users and passes through unchanged.
var userSafe = []error{
	billing.ErrInvalidSessionID,
	billing.ErrSessionNotComplete,
	billing.ErrNotOnboardingSession,
	billing.ErrSessionOwnerMismatch,
	billing.ErrNoSubscription,
	slug.ErrNameTooShort,
	slug.ErrOutOfAttempts,
	lock.ErrAlreadyInProgress,
	lock.ErrHeldByAnother,
	ErrTenantNotFound,
	ErrAlreadyProvisioned,
	ErrEventNotApplicable,
}

// keywordMessages maps fragments of technical error text to user-safe
// phrasing. Checked in order; first match wins.
var keywordMessages = []struct {
	keyword string
	message string
}{
	{"timeout", "the operation took too long, please try again"},
	{"deadline exceeded", "the operation took too long, please try again"},
	{"unreachable", "a backend service is temporarily unavailable, please try again shortly"},
	{"connection refused", "a backend service is temporarily unavailable, please try again shortly"},
	{"no such host", "a backend service is temporarily unavailable, please try again shortly"},
	{"status 5", "a backend service is temporarily unavailable, please try again shortly"},
	{"status 4", "your account could not be set up automatically, please contact support"},
	{"plan metadata", "your subscription plan is misconfigured, please contact support"},
	{"duplicate key", "this organization was already set up"},
	{"not found", "the requested billing record could not be found"},
}

const genericMessage = "something went wrong while setting up your account, please contact support"

// UserMessage translates an internal error into a message safe to show an
// end user. Raw datastore and provider error strings never pass through.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, sentinel := range userSafe {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return keywordMessage(err.Error())
}

func keywordMessage(raw string) string {
	lowered := strings.ToLower(raw)
	for _, entry := range keywordMessages {
		if strings.Contains(lowered, entry.keyword) {
			return entry.message
		}
	}
	return genericMessage
}
