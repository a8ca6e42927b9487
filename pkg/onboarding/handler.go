package onboarding

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/costkit/pkg/billing"
	"github.com/dmitrymomot/costkit/pkg/lock"
	"github.com/dmitrymomot/costkit/pkg/slug"
	"github.com/dmitrymomot/costkit/pkg/syncqueue"
)

// Router exposes checkout completion, the operator's manual backend
// retry, and the billing-event sink fed by the provider webhook gateway.
// Authentication and webhook signature verification happen upstream; the
// gateway injects the verified user identity or the normalized event into
// the request body.
func Router(svc *Service) chi.Router {
	r := chi.NewRouter()
	h := &handler{svc: svc}

	r.Post("/complete", h.complete)
	r.Post("/events", h.billingEvent)
	r.Post("/{slug}/retry-backend", h.retryBackend)

	return r
}

type handler struct {
	svc *Service
}

type completeRequest struct {
	SessionID string    `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
}

func (h *handler) complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, billing.ErrInvalidSessionID)
		return
	}
	if req.UserID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user id is required"})
		return
	}

	result, err := h.svc.CompleteCheckout(r.Context(), CompleteCheckoutParams{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Email:     req.Email,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type billingEventRequest struct {
	SubscriptionID string             `json:"subscription_id"`
	Type           syncqueue.SyncType `json:"type"`
	ProviderStatus string             `json:"provider_status"`
	TrialEnd       *time.Time         `json:"trial_end,omitempty"`
}

func (h *handler) billingEvent(w http.ResponseWriter, r *http.Request) {
	var req billingEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SubscriptionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "subscription id is required"})
		return
	}
	if req.Type == "" {
		req.Type = syncqueue.SyncWebhook
	}

	err := h.svc.ApplyBillingEvent(r.Context(), BillingEvent{
		SubscriptionID: req.SubscriptionID,
		Type:           req.Type,
		ProviderStatus: req.ProviderStatus,
		TrialEnd:       req.TrialEnd,
	})
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, ErrEventNotApplicable):
		// Acknowledge so the gateway does not redeliver; the subscription
		// belongs to some other checkout flow.
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, statusFor(err), err)
	}
}

type retryRequest struct {
	AdminEmail string `json:"admin_email"`
}

func (h *handler) retryBackend(w http.ResponseWriter, r *http.Request) {
	var req retryRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.svc.RetryBackendOnboarding(r.Context(), chi.URLParam(r, "slug"), req.AdminEmail)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// statusFor maps the error taxonomy onto HTTP: rejected input is 4xx,
// lock contention is 409, provider trouble is 502, the rest is 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, billing.ErrInvalidSessionID),
		errors.Is(err, billing.ErrSessionNotComplete),
		errors.Is(err, billing.ErrNotOnboardingSession),
		errors.Is(err, billing.ErrNoSubscription),
		errors.Is(err, slug.ErrNameTooShort),
		errors.Is(err, slug.ErrOutOfAttempts):
		return http.StatusBadRequest
	case errors.Is(err, billing.ErrSessionOwnerMismatch):
		return http.StatusForbidden
	case errors.Is(err, ErrTenantNotFound), errors.Is(err, billing.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, lock.ErrAlreadyInProgress),
		errors.Is(err, lock.ErrHeldByAnother),
		errors.Is(err, ErrAlreadyProvisioned):
		return http.StatusConflict
	case errors.Is(err, billing.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": UserMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
