package onboarding_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/costkit/pkg/backend"
	"github.com/dmitrymomot/costkit/pkg/billing"
	"github.com/dmitrymomot/costkit/pkg/lock"
	"github.com/dmitrymomot/costkit/pkg/onboarding"
	"github.com/dmitrymomot/costkit/pkg/slug"
	"github.com/dmitrymomot/costkit/pkg/syncqueue"
	"github.com/dmitrymomot/costkit/pkg/tenant"
)

// fakeProvider serves canned sessions and subscriptions and records
// metadata writebacks.
type fakeProvider struct {
	mu           sync.Mutex
	sessions     map[string]*billing.CheckoutSession
	subs         map[string]*billing.Subscription
	sessionErr   error
	subErr       error
	updateErr    error
	updateCalls  int
	lastMetadata map[string]string
	sessionCalls int
}

func (p *fakeProvider) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*billing.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionCalls++
	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	s, ok := p.sessions[sessionID]
	if !ok {
		return nil, billing.ErrSessionNotFound
	}
	return s, nil
}

func (p *fakeProvider) RetrieveSubscription(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subErr != nil {
		return nil, p.subErr
	}
	s, ok := p.subs[subscriptionID]
	if !ok {
		return nil, billing.ErrSubscriptionNotFound
	}
	return s, nil
}

func (p *fakeProvider) UpdateSubscriptionMetadata(ctx context.Context, subscriptionID string, fields map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateCalls++
	if p.updateErr != nil {
		return p.updateErr
	}
	p.lastMetadata = fields
	return nil
}

// memTenants is an in-memory tenant.Store honoring the uniqueness
// contract through the same sentinels the Postgres store returns. The
// write counter backs zero-writes assertions on idempotent replays.
type memTenants struct {
	mu         sync.Mutex
	tenants    []*tenant.Tenant
	members    map[uuid.UUID][]uuid.UUID
	writes     int
	failSlug   int // fail the next n inserts with ErrSlugTaken
	createHook func(t *tenant.Tenant) error
}

func newMemTenants() *memTenants {
	return &memTenants{members: make(map[uuid.UUID][]uuid.UUID)}
}

func (s *memTenants) Create(ctx context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createHook != nil {
		if err := s.createHook(t); err != nil {
			return err
		}
	}
	if s.failSlug > 0 {
		s.failSlug--
		return tenant.ErrSlugTaken
	}
	for _, existing := range s.tenants {
		if existing.Slug == t.Slug {
			return tenant.ErrSlugTaken
		}
		if existing.BillingSubscriptionID == t.BillingSubscriptionID {
			return tenant.ErrSubscriptionExists
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now().UTC()
	cp := *t
	s.tenants = append(s.tenants, &cp)
	s.writes++
	return nil
}

func (s *memTenants) GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return s.find(func(t *tenant.Tenant) bool { return t.ID == id })
}

func (s *memTenants) GetBySlug(ctx context.Context, sl string) (*tenant.Tenant, error) {
	return s.find(func(t *tenant.Tenant) bool { return t.Slug == sl })
}

func (s *memTenants) GetBySubscriptionID(ctx context.Context, subID string) (*tenant.Tenant, error) {
	return s.find(func(t *tenant.Tenant) bool { return t.BillingSubscriptionID == subID })
}

func (s *memTenants) find(match func(*tenant.Tenant) bool) (*tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if match(t) && t.DeletedAt == nil {
			cp := *t
			return &cp, nil
		}
	}
	return nil, tenant.ErrNotFound
}

func (s *memTenants) SlugExists(ctx context.Context, sl string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.Slug == sl {
			return true, nil
		}
	}
	return false, nil
}

func (s *memTenants) AddMember(ctx context.Context, tenantID, userID uuid.UUID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[userID] = append(s.members[userID], tenantID)
	s.writes++
	return nil
}

func (s *memTenants) ActiveTenantFor(ctx context.Context, userID uuid.UUID) (*tenant.Tenant, error) {
	s.mu.Lock()
	ids := s.members[userID]
	s.mu.Unlock()
	if len(ids) == 0 {
		return nil, tenant.ErrNotFound
	}
	return s.GetByID(ctx, ids[0])
}

func (s *memTenants) SetBackendOnboarded(ctx context.Context, tenantID uuid.UUID, onboarded bool, reason string) error {
	return s.update(tenantID, func(t *tenant.Tenant) {
		t.BackendOnboarded = onboarded
		t.BackendOnboardingErr = reason
	})
}

func (s *memTenants) UpdateBillingState(ctx context.Context, tenantID uuid.UUID, status billing.Status, planID string, trialEndsAt *time.Time) error {
	return s.update(tenantID, func(t *tenant.Tenant) {
		t.BillingStatus = status
		t.PlanID = planID
		t.TrialEndsAt = trialEndsAt
	})
}

func (s *memTenants) UpdatePlanLimits(ctx context.Context, tenantID uuid.UUID, seats, providers, throughput int) error {
	return s.update(tenantID, func(t *tenant.Tenant) {
		t.SeatLimit = seats
		t.ProviderLimit = providers
		t.ThroughputLimit = throughput
	})
}

func (s *memTenants) SoftDelete(ctx context.Context, tenantID uuid.UUID) error {
	now := time.Now().UTC()
	return s.update(tenantID, func(t *tenant.Tenant) { t.DeletedAt = &now })
}

func (s *memTenants) update(tenantID uuid.UUID, fn func(*tenant.Tenant)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.ID == tenantID {
			fn(t)
			s.writes++
			return nil
		}
	}
	return tenant.ErrNotFound
}

// memLockStore mimics the Postgres lock table's duplicate-key behavior.
type memLockStore struct {
	mu   sync.Mutex
	rows map[string]lock.Row
}

func newMemLockStore() *memLockStore {
	return &memLockStore{rows: make(map[string]lock.Row)}
}

func (s *memLockStore) Insert(ctx context.Context, row lock.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[row.Key]; exists {
		return &pgconn.PgError{Code: "23505"}
	}
	s.rows[row.Key] = row
	return nil
}

func (s *memLockStore) Get(ctx context.Context, key string) (*lock.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &row, nil
}

func (s *memLockStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, key)
	return nil
}

func (s *memLockStore) DeleteExpired(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[key]
	if !ok || !row.ExpiresAt.Before(time.Now()) {
		return false, nil
	}
	delete(s.rows, key)
	return true, nil
}

// fakeProvisioner implements backend.Provisioner with injectable errors.
type fakeProvisioner struct {
	mu           sync.Mutex
	onboardErr   error
	syncErr      error
	onboardCalls int
	syncCalls    int
	lastOnboard  backend.OnboardRequest
	lastState    backend.BillingState
}

func (p *fakeProvisioner) Onboard(ctx context.Context, req backend.OnboardRequest) (*backend.OnboardResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onboardCalls++
	p.lastOnboard = req
	if p.onboardErr != nil {
		return nil, p.onboardErr
	}
	return &backend.OnboardResult{Success: true, RevealToken: "reveal-" + req.OrgSlug}, nil
}

func (p *fakeProvisioner) SyncBillingState(ctx context.Context, orgSlug string, state backend.BillingState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncCalls++
	p.lastState = state
	return p.syncErr
}

// fakeQueue records enqueued entries.
type fakeQueue struct {
	syncqueue.Store
	mu      sync.Mutex
	entries []*syncqueue.Entry
}

func (q *fakeQueue) Enqueue(ctx context.Context, e *syncqueue.Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
	return nil
}

type fixture struct {
	svc      *onboarding.Service
	provider *fakeProvider
	tenants  *memTenants
	locks    *memLockStore
	backend  *fakeProvisioner
	queue    *fakeQueue
}

const (
	sessionID = "cs_test_a1b2c3d4e5"
	subID     = "sub_123"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	userID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	f := &fixture{
		provider: &fakeProvider{
			sessions: map[string]*billing.CheckoutSession{
				sessionID: {
					ID:     sessionID,
					Status: "complete",
					Metadata: map[string]string{
						billing.MetaOnboardingMarker: "true",
						billing.MetaUserID:           userID.String(),
						billing.MetaOrgName:          "Acme Analytics",
						billing.MetaCurrency:         "EUR",
						billing.MetaTimezone:         "Europe/Berlin",
						billing.MetaCountry:          "DE",
						billing.MetaLanguage:         "de",
					},
					SubscriptionID: subID,
					CustomerID:     "cus_42",
					CustomerEmail:  "admin@acme.test",
				},
			},
			subs: map[string]*billing.Subscription{
				subID: {
					ID:      subID,
					Status:  "trialing",
					PriceID: "price_1",
					ProductMetadata: map[string]string{
						"plan_id":        "pro",
						"max_seats":      "10",
						"max_providers":  "5",
						"max_throughput": "1000",
						"trial_days":     "30",
					},
				},
			},
		},
		tenants: newMemTenants(),
		locks:   newMemLockStore(),
		backend: &fakeProvisioner{},
		queue:   &fakeQueue{},
	}

	log := slog.New(slog.DiscardHandler)
	f.svc = onboarding.NewService(
		onboarding.Config{ProviderTimeout: time.Second, LockTTL: time.Minute, DefaultTrialDays: 14},
		f.provider, f.tenants, lock.NewManager(f.locks, log), f.backend, f.queue, log,
	)
	return f
}

func testUserID() uuid.UUID {
	return uuid.MustParse("11111111-1111-1111-1111-111111111111")
}

func complete(t *testing.T, f *fixture) (*onboarding.Result, error) {
	t.Helper()
	return f.svc.CompleteCheckout(context.Background(), onboarding.CompleteCheckoutParams{
		SessionID: sessionID,
		UserID:    testUserID(),
		Email:     "admin@acme.test",
	})
}

func TestCompleteCheckout(t *testing.T) {
	t.Parallel()

	t.Run("full success", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		result, err := complete(t, f)
		require.NoError(t, err)

		assert.False(t, result.AlreadyOnboarded)
		assert.False(t, result.BackendOnboardingFailed)
		assert.True(t, slug.Valid(result.OrgSlug))
		assert.Equal(t, "reveal-"+result.OrgSlug, result.RevealToken)

		created, err := f.tenants.GetBySlug(context.Background(), result.OrgSlug)
		require.NoError(t, err)
		assert.Equal(t, "Acme Analytics", created.Name)
		assert.Equal(t, "pro", created.PlanID)
		assert.Equal(t, billing.StatusTrialing, created.BillingStatus)
		assert.Equal(t, 10, created.SeatLimit)
		assert.Equal(t, 5, created.ProviderLimit)
		assert.Equal(t, 1000, created.ThroughputLimit)
		assert.Equal(t, "EUR", created.Currency)
		assert.Equal(t, "Europe/Berlin", created.Timezone)
		assert.Equal(t, subID, created.BillingSubscriptionID)
		assert.True(t, created.BackendOnboarded)

		// Trial from plan metadata, normalized to end of day UTC.
		require.NotNil(t, created.TrialEndsAt)
		assert.Equal(t, tenant.TrialEndFromDays(time.Now(), 30), *created.TrialEndsAt)

		// Owner membership recorded.
		owned, err := f.tenants.ActiveTenantFor(context.Background(), testUserID())
		require.NoError(t, err)
		assert.Equal(t, created.ID, owned.ID)

		// Tenant reference written back into the subscription record.
		assert.Equal(t, result.OrgSlug, f.provider.lastMetadata[billing.MetaOrgSlug])
		assert.Equal(t, created.ID.String(), f.provider.lastMetadata[billing.MetaTenantID])

		// Lock released.
		_, err = f.locks.Get(context.Background(), "onboarding:"+sessionID)
		assert.ErrorIs(t, err, pgx.ErrNoRows)
	})

	t.Run("rejects malformed session id without provider IO", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.svc.CompleteCheckout(context.Background(), onboarding.CompleteCheckoutParams{
			SessionID: "x!",
			UserID:    testUserID(),
		})
		assert.ErrorIs(t, err, billing.ErrInvalidSessionID)
		assert.Equal(t, 0, f.provider.sessionCalls)
	})

	t.Run("rejects incomplete session", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.provider.sessions[sessionID].Status = "open"

		_, err := complete(t, f)
		assert.ErrorIs(t, err, billing.ErrSessionNotComplete)
		assert.Empty(t, f.tenants.tenants)
	})

	t.Run("rejects session without onboarding marker", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		delete(f.provider.sessions[sessionID].Metadata, billing.MetaOnboardingMarker)

		_, err := complete(t, f)
		assert.ErrorIs(t, err, billing.ErrNotOnboardingSession)
	})

	t.Run("rejects session owned by another user", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.provider.sessions[sessionID].Metadata[billing.MetaUserID] = uuid.NewString()

		_, err := complete(t, f)
		assert.ErrorIs(t, err, billing.ErrSessionOwnerMismatch)
	})

	t.Run("duplicate replay returns existing tenant with zero writes", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		first, err := complete(t, f)
		require.NoError(t, err)

		before := f.tenants.writes
		second, err := complete(t, f)
		require.NoError(t, err)

		assert.True(t, second.AlreadyOnboarded)
		assert.Equal(t, first.OrgSlug, second.OrgSlug)
		assert.Equal(t, first.TenantID, second.TenantID)
		assert.Equal(t, before, f.tenants.writes)
	})

	t.Run("existing membership short-circuits", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		existing := &tenant.Tenant{
			Slug:                  "existing_org",
			Name:                  "Existing",
			BillingSubscriptionID: "sub_other",
			BackendOnboarded:      true,
		}
		require.NoError(t, f.tenants.Create(context.Background(), existing))
		require.NoError(t, f.tenants.AddMember(context.Background(), existing.ID, testUserID(), tenant.MemberRoleOwner))

		result, err := complete(t, f)
		require.NoError(t, err)
		assert.True(t, result.AlreadyOnboarded)
		assert.Equal(t, "existing_org", result.OrgSlug)
	})

	t.Run("backend down degrades success and enqueues checkout sync", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.backend.onboardErr = backend.ErrUnreachable

		result, err := complete(t, f)
		require.NoError(t, err)

		assert.True(t, result.BackendOnboardingFailed)
		assert.NotEmpty(t, result.BackendFailureReason)
		assert.NotContains(t, result.BackendFailureReason, "unreachable")

		created, err := f.tenants.GetBySlug(context.Background(), result.OrgSlug)
		require.NoError(t, err)
		assert.False(t, created.BackendOnboarded)
		assert.NotEmpty(t, created.BackendOnboardingErr)

		require.Len(t, f.queue.entries, 1)
		entry := f.queue.entries[0]
		assert.Equal(t, syncqueue.SyncCheckout, entry.SyncType)
		assert.Equal(t, syncqueue.StatusPending, entry.Status)
		assert.Equal(t, result.OrgSlug, entry.OrgSlug)
	})

	t.Run("backend 4xx degrades without enqueue", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.backend.onboardErr = &backend.Error{StatusCode: http.StatusUnprocessableEntity, Message: "unknown plan"}

		result, err := complete(t, f)
		require.NoError(t, err)
		assert.True(t, result.BackendOnboardingFailed)
		assert.Empty(t, f.queue.entries)
	})

	t.Run("slug collision retries with distinct candidate", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.tenants.failSlug = 1

		result, err := complete(t, f)
		require.NoError(t, err)
		assert.True(t, slug.Valid(result.OrgSlug))
		require.Len(t, f.tenants.tenants, 1)
	})

	t.Run("subscription conflict on insert resolves to winner", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		winner := &tenant.Tenant{ID: uuid.New(), Slug: "winner_org", BillingSubscriptionID: subID, BackendOnboarded: true}

		// Materialize the winner between the idempotency probe and the
		// insert, simulating a concurrent completion finishing first.
		injected := false
		f.tenants.createHook = func(_ *tenant.Tenant) error {
			if !injected {
				injected = true
				f.tenants.tenants = append(f.tenants.tenants, winner)
				return tenant.ErrSubscriptionExists
			}
			return nil
		}

		result, err := complete(t, f)
		require.NoError(t, err)
		assert.True(t, result.AlreadyOnboarded)
		assert.Equal(t, "winner_org", result.OrgSlug)
	})

	t.Run("missing plan metadata rejects before any write", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.provider.subs[subID].ProductMetadata = map[string]string{"plan_id": "pro"}

		_, err := complete(t, f)
		assert.ErrorIs(t, err, billing.ErrMissingPlanMetadata)
		assert.Empty(t, f.tenants.tenants)
	})

	t.Run("lock contention fails fast", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		require.NoError(t, f.locks.Insert(context.Background(), lock.Row{
			Key:       "onboarding:" + sessionID,
			OwnerID:   uuid.New(),
			ExpiresAt: time.Now().Add(time.Minute),
		}))

		_, err := complete(t, f)
		assert.ErrorIs(t, err, lock.ErrHeldByAnother)
		assert.Equal(t, 0, f.provider.sessionCalls)
	})

	t.Run("default trial days apply when provider defines none", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		delete(f.provider.subs[subID].ProductMetadata, "trial_days")

		result, err := complete(t, f)
		require.NoError(t, err)

		created, err := f.tenants.GetBySlug(context.Background(), result.OrgSlug)
		require.NoError(t, err)
		require.NotNil(t, created.TrialEndsAt)
		assert.Equal(t, tenant.TrialEndFromDays(time.Now(), 14), *created.TrialEndsAt)
	})

	t.Run("metadata writeback failure is non-fatal", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.provider.updateErr = errors.New("rate limited")

		result, err := complete(t, f)
		require.NoError(t, err)
		assert.False(t, result.BackendOnboardingFailed)
		assert.Equal(t, 3, f.provider.updateCalls)
	})
}

func TestRetryBackendOnboarding(t *testing.T) {
	t.Parallel()

	t.Run("provisions a degraded tenant", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.backend.onboardErr = backend.ErrUnreachable
		result, err := complete(t, f)
		require.NoError(t, err)
		require.True(t, result.BackendOnboardingFailed)

		f.backend.onboardErr = nil
		retried, err := f.svc.RetryBackendOnboarding(context.Background(), result.OrgSlug, "admin@acme.test")
		require.NoError(t, err)
		assert.Equal(t, result.OrgSlug, retried.OrgSlug)
		assert.NotEmpty(t, retried.RevealToken)

		created, err := f.tenants.GetBySlug(context.Background(), result.OrgSlug)
		require.NoError(t, err)
		assert.True(t, created.BackendOnboarded)
		assert.Empty(t, created.BackendOnboardingErr)
	})

	t.Run("rejects an already provisioned tenant", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		result, err := complete(t, f)
		require.NoError(t, err)

		_, err = f.svc.RetryBackendOnboarding(context.Background(), result.OrgSlug, "")
		assert.ErrorIs(t, err, onboarding.ErrAlreadyProvisioned)
	})

	t.Run("unknown slug", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.svc.RetryBackendOnboarding(context.Background(), "nope_123", "")
		assert.ErrorIs(t, err, onboarding.ErrTenantNotFound)
	})
}

func TestApplyBillingEvent(t *testing.T) {
	t.Parallel()

	t.Run("status change syncs backend", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		result, err := complete(t, f)
		require.NoError(t, err)

		err = f.svc.ApplyBillingEvent(context.Background(), onboarding.BillingEvent{
			SubscriptionID: subID,
			Type:           syncqueue.SyncWebhook,
			ProviderStatus: "past_due",
		})
		require.NoError(t, err)

		updated, err := f.tenants.GetBySlug(context.Background(), result.OrgSlug)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusSuspended, updated.BillingStatus)
		assert.Equal(t, billing.BackendSuspended, f.backend.lastState.Status)
	})

	t.Run("plan change refreshes limits from the provider", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		result, err := complete(t, f)
		require.NoError(t, err)

		f.provider.subs[subID].ProductMetadata = map[string]string{
			"plan_id":        "enterprise",
			"max_seats":      "100",
			"max_providers":  "20",
			"max_throughput": "50000",
		}

		err = f.svc.ApplyBillingEvent(context.Background(), onboarding.BillingEvent{
			SubscriptionID: subID,
			Type:           syncqueue.SyncPlanChange,
			ProviderStatus: "active",
		})
		require.NoError(t, err)

		updated, err := f.tenants.GetBySlug(context.Background(), result.OrgSlug)
		require.NoError(t, err)
		assert.Equal(t, "enterprise", updated.PlanID)
		assert.Equal(t, billing.StatusActive, updated.BillingStatus)
		assert.Equal(t, 100, updated.SeatLimit)
		assert.Equal(t, 20, updated.ProviderLimit)
		assert.Equal(t, 50000, updated.ThroughputLimit)
		assert.Equal(t, 100, f.backend.lastState.Seats)
	})

	t.Run("retryable backend failure defers to the queue", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		result, err := complete(t, f)
		require.NoError(t, err)

		f.backend.syncErr = &backend.Error{StatusCode: http.StatusBadGateway}
		err = f.svc.ApplyBillingEvent(context.Background(), onboarding.BillingEvent{
			SubscriptionID: subID,
			Type:           syncqueue.SyncCancellation,
			ProviderStatus: "canceled",
		})
		require.NoError(t, err)

		// Tenant state updated locally even though the backend lagged.
		updated, err := f.tenants.GetBySlug(context.Background(), result.OrgSlug)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusCancelled, updated.BillingStatus)

		require.Len(t, f.queue.entries, 1)
		assert.Equal(t, syncqueue.SyncCancellation, f.queue.entries[0].SyncType)
	})

	t.Run("permanent backend failure surfaces", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := complete(t, f)
		require.NoError(t, err)

		f.backend.syncErr = &backend.Error{StatusCode: http.StatusBadRequest}
		err = f.svc.ApplyBillingEvent(context.Background(), onboarding.BillingEvent{
			SubscriptionID: subID,
			Type:           syncqueue.SyncWebhook,
			ProviderStatus: "active",
		})
		require.Error(t, err)
		assert.Empty(t, f.queue.entries)
	})

	t.Run("unknown subscription is not applicable", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		err := f.svc.ApplyBillingEvent(context.Background(), onboarding.BillingEvent{
			SubscriptionID: "sub_unknown",
			Type:           syncqueue.SyncWebhook,
			ProviderStatus: "active",
		})
		assert.ErrorIs(t, err, onboarding.ErrEventNotApplicable)
	})
}
