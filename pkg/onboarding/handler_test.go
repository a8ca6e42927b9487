package onboarding_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/costkit/pkg/billing"
	"github.com/dmitrymomot/costkit/pkg/onboarding"
)

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	return rec
}

func TestBillingEventEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("applies a status change", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		result, err := complete(t, f)
		require.NoError(t, err)

		router := onboarding.Router(f.svc)
		rec := postJSON(t, router, "/events",
			`{"subscription_id":"`+subID+`","provider_status":"past_due"}`)
		require.Equal(t, http.StatusNoContent, rec.Code)

		updated, err := f.tenants.GetBySlug(context.Background(), result.OrgSlug)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusSuspended, updated.BillingStatus)
	})

	t.Run("acknowledges events for unknown subscriptions", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := postJSON(t, onboarding.Router(f.svc), "/events",
			`{"subscription_id":"sub_unknown","provider_status":"active"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects missing subscription id", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := postJSON(t, onboarding.Router(f.svc), "/events", `{"provider_status":"active"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCompleteEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("completes a checkout", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := postJSON(t, onboarding.Router(f.svc), "/complete",
			`{"session_id":"`+sessionID+`","user_id":"`+testUserID().String()+`","email":"admin@acme.test"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"org_slug"`)
	})

	t.Run("maps rejected input to 400 with a user-safe message", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := postJSON(t, onboarding.Router(f.svc), "/complete",
			`{"session_id":"x!","user_id":"`+testUserID().String()+`"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid format")
	})
}
