package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-session/core"
)

const identityCacheKeyPrefix = "go-session::identity::v1"

// CachedIdentityStore fronts an identity store with a read-through cache.
// Writes invalidate the cached entry so the next read observes store truth.
type CachedIdentityStore struct {
	base  core.IdentityStore
	cache repositorycache.CacheService
}

func NewCachedIdentityStore(
	base core.IdentityStore,
	cacheService repositorycache.CacheService,
) (*CachedIdentityStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base identity store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: identity cache service is required")
	}
	return &CachedIdentityStore{base: base, cache: cacheService}, nil
}

// IdentityCacheKey returns the deterministic cache key contract for identity
// reads: go-session::identity::v1::<user_id> with the user segment URL-path
// escaped after trimming.
func IdentityCacheKey(userID string) (string, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: user id is required")
	}
	return strings.Join([]string{identityCacheKeyPrefix, url.PathEscape(trimmed)}, "::"), nil
}

func (s *CachedIdentityStore) Upsert(ctx context.Context, identity core.Identity) (core.Identity, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Identity{}, fmt.Errorf("sqlstore: cached identity store is not configured")
	}
	out, err := s.base.Upsert(ctx, identity)
	if err != nil {
		return core.Identity{}, err
	}
	cacheKey, err := IdentityCacheKey(out.ID)
	if err != nil {
		return core.Identity{}, err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return core.Identity{}, err
	}
	return out, nil
}

func (s *CachedIdentityStore) GetByUser(ctx context.Context, userID string) (core.Identity, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Identity{}, fmt.Errorf("sqlstore: cached identity store is not configured")
	}
	cacheKey, err := IdentityCacheKey(userID)
	if err != nil {
		return core.Identity{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Identity, error) {
		return s.base.GetByUser(ctx, userID)
	})
}

func (s *CachedIdentityStore) Delete(ctx context.Context, userID string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached identity store is not configured")
	}
	if err := s.base.Delete(ctx, userID); err != nil {
		return err
	}
	cacheKey, err := IdentityCacheKey(userID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.IdentityStore = (*CachedIdentityStore)(nil)
