package onboarding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/costkit/pkg/backend"
	"github.com/dmitrymomot/costkit/pkg/billing"
	"github.com/dmitrymomot/costkit/pkg/lock"
	"github.com/dmitrymomot/costkit/pkg/retry"
	"github.com/dmitrymomot/costkit/pkg/slug"
	"github.com/dmitrymomot/costkit/pkg/syncqueue"
	"github.com/dmitrymomot/costkit/pkg/tenant"
)

// Config holds onboarding orchestration settings.
type Config struct {
	ProviderTimeout  time.Duration `env:"ONBOARDING_PROVIDER_TIMEOUT" envDefault:"15s"` // ProviderTimeout bounds each payment-provider call.
	LockTTL          time.Duration `env:"ONBOARDING_LOCK_TTL" envDefault:"60s"`         // LockTTL bounds how long a crashed completion blocks retries.
	DefaultTrialDays int           `env:"ONBOARDING_DEFAULT_TRIAL_DAYS" envDefault:"14"`
}

// CompleteCheckoutParams identifies the checkout and the requesting user.
// The session id is the only client-supplied billing input; everything
// else is re-fetched from the provider.
type CompleteCheckoutParams struct {
	SessionID string
	UserID    uuid.UUID
	Email     string
}

// Result is the completion outcome. BackendOnboardingFailed with a
// reason is a degraded success: the tenant exists and the backend will be
// reconciled by the sync queue or a manual retry.
type Result struct {
	TenantID                uuid.UUID `json:"tenant_id"`
	OrgSlug                 string    `json:"org_slug"`
	RevealToken             string    `json:"reveal_token,omitempty"`
	AlreadyOnboarded        bool      `json:"already_onboarded,omitempty"`
	BackendOnboardingFailed bool      `json:"backend_onboarding_failed,omitempty"`
	BackendFailureReason    string    `json:"backend_failure_reason,omitempty"`
}

// BillingEvent is a webhook-driven billing-state change for an existing
// tenant, identified by the provider subscription id.
type BillingEvent struct {
	SubscriptionID string
	Type           syncqueue.SyncType
	ProviderStatus string
	TrialEnd       *time.Time
}

// Service orchestrates tenant provisioning. One instance serves all
// requests; all shared state lives in the datastore.
type Service struct {
	cfg      Config
	provider billing.Provider
	tenants  tenant.Store
	locks    *lock.Manager
	backend  backend.Provisioner
	queue    syncqueue.Store
	log      *slog.Logger
	now      func() time.Time
}

// NewService wires the orchestrator.
func NewService(cfg Config, provider billing.Provider, tenants tenant.Store, locks *lock.Manager, provisioner backend.Provisioner, queue syncqueue.Store, log *slog.Logger) *Service {
	if provider == nil || tenants == nil || locks == nil || provisioner == nil || queue == nil {
		panic("onboarding: all collaborators are required")
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 15 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = lock.DefaultTTL
	}
	if cfg.DefaultTrialDays <= 0 {
		cfg.DefaultTrialDays = 14
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		provider: provider,
		tenants:  tenants,
		locks:    locks,
		backend:  provisioner,
		queue:    queue,
		log:      log,
		now:      time.Now,
	}
}

// CompleteCheckout turns a completed provider checkout into a provisioned
// tenant. Idempotent per checkout: replays (duplicate webhooks, page
// reloads, double tabs) resolve to the already-created tenant with no new
// writes. A backend provisioning failure does not roll the tenant back;
// it degrades the result and leaves reconciliation to the sync queue.
func (s *Service) CompleteCheckout(ctx context.Context, params CompleteCheckoutParams) (*Result, error) {
	if !billing.ValidSessionID(params.SessionID) {
		return nil, billing.ErrInvalidSessionID
	}

	// The lock is a fast-fail against concurrent duplicates; correctness
	// rests on the idempotency checks and uniqueness constraints below.
	lockKey := "onboarding:" + params.SessionID
	if err := s.locks.Acquire(ctx, lockKey, params.UserID, s.cfg.LockTTL); err != nil {
		return nil, err
	}
	defer s.locks.Release(context.WithoutCancel(ctx), lockKey)

	session, err := s.verifySession(ctx, params)
	if err != nil {
		return nil, err
	}

	// Idempotency probe one: this exact subscription already produced a
	// tenant.
	if existing, err := s.tenants.GetBySubscriptionID(ctx, session.SubscriptionID); err == nil {
		return alreadyOnboarded(existing), nil
	} else if !errors.Is(err, tenant.ErrNotFound) {
		return nil, errors.Join(ErrCompletionFailed, err)
	}

	// Idempotency probe two: the user already owns an active tenant.
	if existing, err := s.tenants.ActiveTenantFor(ctx, params.UserID); err == nil {
		return alreadyOnboarded(existing), nil
	} else if !errors.Is(err, tenant.ErrNotFound) {
		return nil, errors.Join(ErrCompletionFailed, err)
	}

	sub, plan, err := s.fetchSubscription(ctx, session.SubscriptionID)
	if err != nil {
		return nil, err
	}

	t, err := s.createTenant(ctx, session, sub, plan)
	if err != nil {
		if errors.Is(err, tenant.ErrSubscriptionExists) {
			// Conflict is success: a concurrent request finished first.
			return s.resolveConflict(ctx, session, err)
		}
		return nil, err
	}

	if err := s.tenants.AddMember(ctx, t.ID, params.UserID, tenant.MemberRoleOwner); err != nil {
		return nil, errors.Join(ErrCompletionFailed, err)
	}

	result := &Result{TenantID: t.ID, OrgSlug: t.Slug}
	s.provisionBackend(ctx, t, params.Email, plan, result)
	s.writeBackMetadata(ctx, session.SubscriptionID, t)

	s.log.InfoContext(ctx, "checkout completed",
		"org_slug", t.Slug,
		"tenant_id", t.ID,
		"plan_id", t.PlanID,
		"backend_onboarded", !result.BackendOnboardingFailed,
	)
	return result, nil
}

// verifySession re-fetches the checkout from the provider and rejects
// anything that is not a completed onboarding checkout owned by the
// requester.
func (s *Service) verifySession(ctx context.Context, params CompleteCheckoutParams) (*billing.CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	session, err := s.provider.RetrieveCheckoutSession(ctx, params.SessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsComplete() {
		return nil, billing.ErrSessionNotComplete
	}
	if !session.HasOnboardingMarker() {
		return nil, billing.ErrNotOnboardingSession
	}
	if !session.BelongsTo(params.UserID) {
		return nil, billing.ErrSessionOwnerMismatch
	}
	if session.SubscriptionID == "" {
		return nil, billing.ErrNoSubscription
	}
	return session, nil
}

func (s *Service) fetchSubscription(ctx context.Context, subscriptionID string) (*billing.Subscription, *billing.PlanMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	sub, err := s.provider.RetrieveSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, nil, err
	}

	plan, err := billing.ParsePlanMetadata(sub.ProductMetadata)
	if err != nil {
		return nil, nil, err
	}
	return sub, plan, nil
}

// createTenant inserts the tenant row, reacting to slug uniqueness
// violations with a randomized-suffix retry. Limits come exclusively from
// the provider's product metadata.
func (s *Service) createTenant(ctx context.Context, session *billing.CheckoutSession, sub *billing.Subscription, plan *billing.PlanMetadata) (*tenant.Tenant, error) {
	name := session.OrgName()
	allocator := slug.NewAllocator(s.tenants.SlugExists)
	candidate, err := allocator.Allocate(ctx, name)
	if err != nil {
		return nil, err
	}

	status := billing.MapProviderStatus(sub.Status)
	locale := billing.ParseLocale(session.Metadata)

	t := &tenant.Tenant{
		Slug:                  candidate,
		Name:                  name,
		PlanID:                plan.PlanID,
		BillingStatus:         status,
		TrialEndsAt:           s.trialEnd(sub, plan, status),
		SeatLimit:             plan.Seats,
		ProviderLimit:         plan.Providers,
		ThroughputLimit:       plan.Throughput,
		Currency:              locale.Currency,
		Timezone:              locale.Timezone,
		Country:               locale.Country,
		Language:              locale.Language,
		BillingCustomerID:     session.CustomerID,
		BillingSubscriptionID: sub.ID,
		BillingPriceID:        sub.PriceID,
	}

	for attempt := 1; ; attempt++ {
		err := s.tenants.Create(ctx, t)
		if err == nil {
			return t, nil
		}
		if errors.Is(err, tenant.ErrSlugTaken) && attempt < slug.MaxAttempts {
			// Allocator check passed but a concurrent insert won; move to
			// the next candidate.
			next, nextErr := slug.Next(t.Slug)
			if nextErr != nil {
				return nil, nextErr
			}
			t.Slug = next
			continue
		}
		if errors.Is(err, tenant.ErrSlugTaken) {
			return nil, slug.ErrOutOfAttempts
		}
		return nil, err
	}
}

// resolveConflict maps a subscription-uniqueness violation during insert
// to the winning tenant.
func (s *Service) resolveConflict(ctx context.Context, session *billing.CheckoutSession, createErr error) (*Result, error) {
	winner, err := s.tenants.GetBySubscriptionID(ctx, session.SubscriptionID)
	if err != nil {
		return nil, errors.Join(ErrCompletionFailed, createErr, err)
	}
	return alreadyOnboarded(winner), nil
}

// trialEnd resolves the trial expiry: the provider's trial terms win,
// then the plan's configured trial days, then the service default for
// trialing subscriptions. Always end-of-day UTC.
func (s *Service) trialEnd(sub *billing.Subscription, plan *billing.PlanMetadata, status billing.Status) *time.Time {
	if sub.TrialEnd != nil {
		end := tenant.NormalizeTrialEnd(*sub.TrialEnd)
		return &end
	}
	if plan.TrialDays > 0 {
		end := tenant.TrialEndFromDays(s.now(), plan.TrialDays)
		return &end
	}
	if status == billing.StatusTrialing {
		end := tenant.TrialEndFromDays(s.now(), s.cfg.DefaultTrialDays)
		return &end
	}
	return nil
}

// provisionBackend runs the best-effort backend onboarding. Failure never
// undoes the tenant: retryable errors go to the sync queue, and the
// result degrades with a human-readable reason.
func (s *Service) provisionBackend(ctx context.Context, t *tenant.Tenant, adminEmail string, plan *billing.PlanMetadata, result *Result) {
	onboardResult, err := s.backend.Onboard(ctx, backend.OnboardRequest{
		OrgSlug:     t.Slug,
		DisplayName: t.Name,
		AdminEmail:  adminEmail,
		PlanID:      plan.PlanID,
		Locale: billing.Locale{
			Currency: t.Currency,
			Timezone: t.Timezone,
			Country:  t.Country,
			Language: t.Language,
		},
	})
	if err == nil {
		result.RevealToken = onboardResult.RevealToken
		if markErr := s.tenants.SetBackendOnboarded(ctx, t.ID, true, ""); markErr != nil {
			s.log.ErrorContext(ctx, "failed to record backend onboarding success", "tenant_id", t.ID, "error", markErr)
		}
		return
	}

	result.BackendOnboardingFailed = true
	result.BackendFailureReason = UserMessage(err)

	if markErr := s.tenants.SetBackendOnboarded(ctx, t.ID, false, err.Error()); markErr != nil {
		s.log.ErrorContext(ctx, "failed to record backend onboarding failure", "tenant_id", t.ID, "error", markErr)
	}

	if backend.IsRetryable(err) {
		s.enqueueSync(ctx, t, syncqueue.SyncCheckout)
	}

	s.log.WarnContext(ctx, "backend onboarding failed, tenant kept",
		"org_slug", t.Slug,
		"tenant_id", t.ID,
		"retryable", backend.IsRetryable(err),
		"error", err,
	)
}

// writeBackMetadata links the tenant into the provider-side subscription
// record. Retried with backoff and non-fatal on exhaustion: the link is a
// convenience for support tooling, not a correctness requirement.
func (s *Service) writeBackMetadata(ctx context.Context, subscriptionID string, t *tenant.Tenant) {
	err := retry.Do(ctx, retry.Exponential(3, 500*time.Millisecond, 2*time.Second), func(ctx context.Context) error {
		return s.provider.UpdateSubscriptionMetadata(ctx, subscriptionID, map[string]string{
			billing.MetaOrgSlug:  t.Slug,
			billing.MetaTenantID: t.ID.String(),
		})
	})
	if err != nil {
		s.log.WarnContext(ctx, "failed to write tenant reference into subscription metadata",
			"subscription_id", subscriptionID, "org_slug", t.Slug, "error", err)
	}
}

// enqueueSync persists the tenant's current billing state as a pending
// queue entry.
func (s *Service) enqueueSync(ctx context.Context, t *tenant.Tenant, syncType syncqueue.SyncType) {
	entry, err := syncqueue.NewEntry(t.ID, t.Slug, syncType, billingState(t))
	if err == nil {
		err = s.queue.Enqueue(ctx, entry)
	}
	if err != nil {
		s.log.ErrorContext(ctx, "failed to enqueue billing sync entry",
			"org_slug", t.Slug, "sync_type", syncType, "error", err)
	}
}

// RetryBackendOnboarding re-runs the backend provisioning call for an
// existing tenant. Operator-triggered; safe because the backend call is
// idempotent per org slug.
func (s *Service) RetryBackendOnboarding(ctx context.Context, orgSlug, adminEmail string) (*Result, error) {
	t, err := s.tenants.GetBySlug(ctx, orgSlug)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	if t.BackendOnboarded {
		return nil, ErrAlreadyProvisioned
	}

	onboardResult, err := s.backend.Onboard(ctx, backend.OnboardRequest{
		OrgSlug:     t.Slug,
		DisplayName: t.Name,
		AdminEmail:  adminEmail,
		PlanID:      t.PlanID,
		Locale: billing.Locale{
			Currency: t.Currency,
			Timezone: t.Timezone,
			Country:  t.Country,
			Language: t.Language,
		},
	})
	if err != nil {
		if markErr := s.tenants.SetBackendOnboarded(ctx, t.ID, false, err.Error()); markErr != nil {
			s.log.ErrorContext(ctx, "failed to record backend onboarding failure", "tenant_id", t.ID, "error", markErr)
		}
		return nil, err
	}

	if err := s.tenants.SetBackendOnboarded(ctx, t.ID, true, ""); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "backend onboarding retried successfully", "org_slug", t.Slug)
	return &Result{TenantID: t.ID, OrgSlug: t.Slug, RevealToken: onboardResult.RevealToken}, nil
}

// ApplyBillingEvent applies a webhook-driven billing change to the tenant
// referencing the event's subscription and pushes the new state to the
// backend. A retryable backend failure enqueues the delta instead of
// failing the event.
func (s *Service) ApplyBillingEvent(ctx context.Context, event BillingEvent) error {
	t, err := s.tenants.GetBySubscriptionID(ctx, event.SubscriptionID)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return ErrEventNotApplicable
		}
		return err
	}

	status := billing.MapProviderStatus(event.ProviderStatus)
	planID := t.PlanID
	trialEnd := t.TrialEndsAt
	if event.TrialEnd != nil {
		end := tenant.NormalizeTrialEnd(*event.TrialEnd)
		trialEnd = &end
	}

	if event.Type == syncqueue.SyncPlanChange {
		// Plan contents are authoritative on the provider side; re-fetch
		// rather than trusting the webhook payload.
		sub, plan, err := s.fetchSubscription(ctx, event.SubscriptionID)
		if err != nil {
			return err
		}
		planID = plan.PlanID
		if err := s.tenants.UpdatePlanLimits(ctx, t.ID, plan.Seats, plan.Providers, plan.Throughput); err != nil {
			return err
		}
		t.SeatLimit, t.ProviderLimit, t.ThroughputLimit = plan.Seats, plan.Providers, plan.Throughput
		if sub.TrialEnd != nil {
			end := tenant.NormalizeTrialEnd(*sub.TrialEnd)
			trialEnd = &end
		}
	}

	if err := s.tenants.UpdateBillingState(ctx, t.ID, status, planID, trialEnd); err != nil {
		return err
	}
	t.BillingStatus = status
	t.PlanID = planID
	t.TrialEndsAt = trialEnd

	if err := s.backend.SyncBillingState(ctx, t.Slug, billingState(t)); err != nil {
		if backend.IsRetryable(err) {
			s.enqueueSync(ctx, t, event.Type)
			s.log.WarnContext(ctx, "backend billing sync deferred to queue",
				"org_slug", t.Slug, "sync_type", event.Type, "error", err)
			return nil
		}
		return err
	}

	s.log.InfoContext(ctx, "billing event applied",
		"org_slug", t.Slug, "sync_type", event.Type, "status", status)
	return nil
}

// billingState projects the tenant's current billing fields into the
// backend's vocabulary.
func billingState(t *tenant.Tenant) backend.BillingState {
	return backend.BillingState{
		Status:      billing.MapStatusToBackend(t.BillingStatus),
		PlanID:      t.PlanID,
		TrialEndsAt: t.TrialEndsAt,
		Seats:       t.SeatLimit,
		Providers:   t.ProviderLimit,
		Throughput:  t.ThroughputLimit,
	}
}

func alreadyOnboarded(t *tenant.Tenant) *Result {
	return &Result{
		TenantID:                t.ID,
		OrgSlug:                 t.Slug,
		AlreadyOnboarded:        true,
		BackendOnboardingFailed: !t.BackendOnboarded,
		BackendFailureReason:    userSafeReason(t),
	}
}

func userSafeReason(t *tenant.Tenant) string {
	if t.BackendOnboarded || t.BackendOnboardingErr == "" {
		return ""
	}
	return keywordMessage(t.BackendOnboardingErr)
}
