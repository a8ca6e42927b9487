package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/costkit/pkg/billing"
	"github.com/dmitrymomot/costkit/pkg/pg"
)

// Store persists tenants and memberships. Writes run with the elevated
// datastore credential: onboarding happens before any per-tenant
// authorization exists.
type Store interface {
	// Create inserts a tenant row. Returns ErrSlugTaken when the slug
	// uniqueness constraint fires (retry with a new candidate) and
	// ErrSubscriptionExists when the subscription-id constraint fires
	// (a concurrent request already onboarded this checkout).
	Create(ctx context.Context, t *Tenant) error

	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	// GetBySubscriptionID is the primary idempotency probe: a tenant
	// already referencing this external subscription means the checkout
	// was completed before.
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*Tenant, error)

	SlugExists(ctx context.Context, slug string) (bool, error)

	AddMember(ctx context.Context, tenantID, userID uuid.UUID, role string) error
	// ActiveTenantFor returns the tenant of the user's active membership,
	// or ErrNotFound when the user owns none.
	ActiveTenantFor(ctx context.Context, userID uuid.UUID) (*Tenant, error)

	SetBackendOnboarded(ctx context.Context, tenantID uuid.UUID, onboarded bool, reason string) error
	UpdateBillingState(ctx context.Context, tenantID uuid.UUID, status billing.Status, planID string, trialEndsAt *time.Time) error
	// UpdatePlanLimits overwrites the entitlement limits after a plan
	// change, sourced from the provider's product metadata.
	UpdatePlanLimits(ctx context.Context, tenantID uuid.UUID, seats, providers, throughput int) error
	SoftDelete(ctx context.Context, tenantID uuid.UUID) error
}

// Constraint names from the migrations, used to disambiguate which
// uniqueness rule fired on Create.
const (
	constraintSlug         = "tenants_slug_key"
	constraintSubscription = "tenants_billing_subscription_id_key"
)

// PGStore is the pgx implementation of Store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed tenant store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const tenantColumns = `id, slug, name, plan_id, billing_status, trial_ends_at,
	seat_limit, provider_limit, throughput_limit,
	currency, timezone, country, language,
	billing_customer_id, billing_subscription_id, billing_price_id,
	backend_onboarded, backend_onboarding_error,
	created_at, updated_at, deleted_at`

func (s *PGStore) Create(ctx context.Context, t *Tenant) error {
	now := time.Now().UTC()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenants (
			id, slug, name, plan_id, billing_status, trial_ends_at,
			seat_limit, provider_limit, throughput_limit,
			currency, timezone, country, language,
			billing_customer_id, billing_subscription_id, billing_price_id,
			backend_onboarded, backend_onboarding_error, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		t.ID, t.Slug, t.Name, t.PlanID, t.BillingStatus, t.TrialEndsAt,
		t.SeatLimit, t.ProviderLimit, t.ThroughputLimit,
		t.Currency, t.Timezone, t.Country, t.Language,
		t.BillingCustomerID, t.BillingSubscriptionID, t.BillingPriceID,
		t.BackendOnboarded, t.BackendOnboardingErr, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			switch pg.ConstraintName(err) {
			case constraintSlug:
				return errors.Join(ErrSlugTaken, err)
			case constraintSubscription:
				return errors.Join(ErrSubscriptionExists, err)
			}
		}
		return errors.Join(ErrCreateFailed, err)
	}
	return nil
}

func (s *PGStore) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return s.getBy(ctx, `id = $1`, id)
}

func (s *PGStore) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.getBy(ctx, `slug = $1`, slug)
}

func (s *PGStore) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*Tenant, error) {
	return s.getBy(ctx, `billing_subscription_id = $1`, subscriptionID)
}

func (s *PGStore) getBy(ctx context.Context, where string, arg any) (*Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE `+where+` AND deleted_at IS NULL`, arg)
	if err != nil {
		return nil, err
	}

	t, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByPos[Tenant])
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *PGStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tenants WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}

func (s *PGStore) AddMember(ctx context.Context, tenantID, userID uuid.UUID, role string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenant_members (tenant_id, user_id, role, active, created_at)
		VALUES ($1, $2, $3, TRUE, NOW())
		ON CONFLICT (tenant_id, user_id) DO NOTHING`,
		tenantID, userID, role,
	)
	return err
}

func (s *PGStore) ActiveTenantFor(ctx context.Context, userID uuid.UUID) (*Tenant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+prefixColumns("t.")+`
		FROM tenants t
		JOIN tenant_members m ON m.tenant_id = t.id
		WHERE m.user_id = $1 AND m.active AND t.deleted_at IS NULL
		ORDER BY m.created_at
		LIMIT 1`, userID)
	if err != nil {
		return nil, err
	}

	t, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByPos[Tenant])
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *PGStore) SetBackendOnboarded(ctx context.Context, tenantID uuid.UUID, onboarded bool, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenants
		SET backend_onboarded = $2, backend_onboarding_error = $3, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		tenantID, onboarded, reason,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) UpdateBillingState(ctx context.Context, tenantID uuid.UUID, status billing.Status, planID string, trialEndsAt *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenants
		SET billing_status = $2, plan_id = $3, trial_ends_at = $4, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		tenantID, status, planID, trialEndsAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) UpdatePlanLimits(ctx context.Context, tenantID uuid.UUID, seats, providers, throughput int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenants
		SET seat_limit = $2, provider_limit = $3, throughput_limit = $4, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		tenantID, seats, providers, throughput,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SoftDelete(ctx context.Context, tenantID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenants SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		tenantID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// prefixColumns qualifies the shared column list for joined queries.
func prefixColumns(prefix string) string {
	out := ""
	for i, col := range []string{
		"id", "slug", "name", "plan_id", "billing_status", "trial_ends_at",
		"seat_limit", "provider_limit", "throughput_limit",
		"currency", "timezone", "country", "language",
		"billing_customer_id", "billing_subscription_id", "billing_price_id",
		"backend_onboarded", "backend_onboarding_error",
		"created_at", "updated_at", "deleted_at",
	} {
		if i > 0 {
			out += ", "
		}
		out += prefix + col
	}
	return out
}
