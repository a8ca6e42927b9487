package tenant

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/costkit/pkg/billing"
)

// Cache is a read-through cache for tenant lookups on the hot dashboard
// path. Misses and cache errors both fall back to the store.
type Cache interface {
	Get(ctx context.Context, key string) (*Tenant, bool)
	Set(ctx context.Context, key string, t *Tenant)
	Delete(ctx context.Context, key string)
}

// RedisCache caches tenants as JSON values with a TTL.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache creates a redis-backed tenant cache.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(key string) string {
	return "tenant:" + key
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Tenant, bool) {
	raw, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var t Tenant
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, false
	}
	return &t, true
}

func (c *RedisCache) Set(ctx context.Context, key string, t *Tenant) {
	raw, err := json.Marshal(t)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, cacheKey(key), raw, c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) {
	_ = c.client.Del(ctx, cacheKey(key)).Err()
}

// CachedStore wraps a Store with slug-keyed read caching. Mutations
// invalidate; writes always go to the store.
type CachedStore struct {
	Store
	cache Cache
}

// NewCachedStore wraps store with the given cache.
func NewCachedStore(store Store, cache Cache) *CachedStore {
	return &CachedStore{Store: store, cache: cache}
}

func (s *CachedStore) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	if t, ok := s.cache.Get(ctx, slug); ok {
		return t, nil
	}

	t, err := s.Store.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, slug, t)
	return t, nil
}

func (s *CachedStore) SetBackendOnboarded(ctx context.Context, tenantID uuid.UUID, onboarded bool, reason string) error {
	if err := s.Store.SetBackendOnboarded(ctx, tenantID, onboarded, reason); err != nil {
		return err
	}
	s.invalidateByID(ctx, tenantID)
	return nil
}

func (s *CachedStore) UpdateBillingState(ctx context.Context, tenantID uuid.UUID, status billing.Status, planID string, trialEndsAt *time.Time) error {
	if err := s.Store.UpdateBillingState(ctx, tenantID, status, planID, trialEndsAt); err != nil {
		return err
	}
	s.invalidateByID(ctx, tenantID)
	return nil
}

func (s *CachedStore) UpdatePlanLimits(ctx context.Context, tenantID uuid.UUID, seats, providers, throughput int) error {
	if err := s.Store.UpdatePlanLimits(ctx, tenantID, seats, providers, throughput); err != nil {
		return err
	}
	s.invalidateByID(ctx, tenantID)
	return nil
}

func (s *CachedStore) SoftDelete(ctx context.Context, tenantID uuid.UUID) error {
	if err := s.Store.SoftDelete(ctx, tenantID); err != nil {
		return err
	}
	s.invalidateByID(ctx, tenantID)
	return nil
}

// invalidateByID drops the cached entry for the tenant's slug. Best
// effort: a lookup failure just leaves the entry to expire by TTL.
func (s *CachedStore) invalidateByID(ctx context.Context, tenantID uuid.UUID) {
	t, err := s.Store.GetByID(ctx, tenantID)
	if err != nil {
		return
	}
	s.cache.Delete(ctx, t.Slug)
}
