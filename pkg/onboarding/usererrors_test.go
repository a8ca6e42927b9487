package onboarding_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/costkit/pkg/backend"
	"github.com/dmitrymomot/costkit/pkg/billing"
	"github.com/dmitrymomot/costkit/pkg/onboarding"
	"github.com/dmitrymomot/costkit/pkg/slug"
)

func TestUserMessage(t *testing.T) {
	t.Parallel()

	t.Run("user-safe sentinels pass through", func(t *testing.T) {
		t.Parallel()

		for _, err := range []error{
			billing.ErrSessionNotComplete,
			billing.ErrSessionOwnerMismatch,
			slug.ErrNameTooShort,
			slug.ErrOutOfAttempts,
		} {
			assert.Equal(t, err.Error(), onboarding.UserMessage(err))
		}
	})

	t.Run("wrapped sentinels still pass through", func(t *testing.T) {
		t.Parallel()

		wrapped := errors.Join(billing.ErrSessionNotComplete, errors.New("status was \"open\""))
		assert.Equal(t, billing.ErrSessionNotComplete.Error(), onboarding.UserMessage(wrapped))
	})

	t.Run("technical strings are translated by keyword", func(t *testing.T) {
		t.Parallel()

		cases := []struct {
			err      error
			contains string
		}{
			{backend.ErrUnreachable, "temporarily unavailable"},
			{&backend.Error{StatusCode: http.StatusInternalServerError}, "temporarily unavailable"},
			{&backend.Error{StatusCode: http.StatusUnprocessableEntity, Message: "bad plan"}, "contact support"},
			{errors.New("context deadline exceeded"), "took too long"},
			{errors.New(`ERROR: duplicate key value violates unique constraint "tenants_slug_key" (SQLSTATE 23505)`), "already set up"},
		}
		for _, tc := range cases {
			msg := onboarding.UserMessage(tc.err)
			assert.Contains(t, msg, tc.contains, "input: %v", tc.err)
			assert.NotContains(t, msg, "SQLSTATE")
		}
	})

	t.Run("unknown errors get the generic message", func(t *testing.T) {
		t.Parallel()

		msg := onboarding.UserMessage(errors.New(`pq: relation "tenants" does not exist`))
		assert.Contains(t, msg, "contact support")
		assert.NotContains(t, msg, "relation")
	})

	t.Run("nil error yields empty string", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, onboarding.UserMessage(nil))
	})
}
