package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-session/core"
)

type stubIdentityStore struct {
	mu          sync.Mutex
	identity    core.Identity
	getCalls    int
	upsertCalls int
	getErr      error
	upsertErr   error
}

func (s *stubIdentityStore) Upsert(_ context.Context, identity core.Identity) (core.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.upsertErr != nil {
		return core.Identity{}, s.upsertErr
	}
	s.identity = identity
	return identity, nil
}

func (s *stubIdentityStore) GetByUser(_ context.Context, _ string) (core.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return core.Identity{}, s.getErr
	}
	return s.identity, nil
}

func (s *stubIdentityStore) Delete(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = core.Identity{}
	return nil
}

func newTestIdentityCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestCachedIdentityStore_Get_MissFetchThenHit(t *testing.T) {
	cacheService := newTestIdentityCacheService(t)
	base := &stubIdentityStore{
		identity: core.Identity{ID: "u1", Username: "ada", Role: "member"},
	}

	store, err := NewCachedIdentityStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached identity store: %v", err)
	}

	if _, err := store.GetByUser(context.Background(), "u1"); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected first get to fetch base store once, got %d", base.getCalls)
	}

	if _, err := store.GetByUser(context.Background(), "u1"); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be cache hit, base get calls=%d", base.getCalls)
	}
}

func TestCachedIdentityStore_Upsert_InvalidatesCachedKey(t *testing.T) {
	cacheService := newTestIdentityCacheService(t)
	base := &stubIdentityStore{
		identity: core.Identity{ID: "u1", Username: "ada", Role: "member"},
	}

	store, err := NewCachedIdentityStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached identity store: %v", err)
	}

	if _, err := store.GetByUser(context.Background(), "u1"); err != nil {
		t.Fatalf("prime cache with get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected one base read after cache prime, got %d", base.getCalls)
	}

	if _, err := store.Upsert(context.Background(), core.Identity{
		ID:       "u1",
		Username: "ada",
		Role:     "admin",
	}); err != nil {
		t.Fatalf("upsert through cached store: %v", err)
	}

	refreshed, err := store.GetByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected upsert to invalidate cached key, base get calls=%d", base.getCalls)
	}
	if refreshed.Role != "admin" {
		t.Fatalf("expected refreshed role admin, got %q", refreshed.Role)
	}
}

func TestCachedIdentityStore_PropagatesBaseErrors(t *testing.T) {
	cacheService := newTestIdentityCacheService(t)
	baseErr := errors.New("base store boom")
	base := &stubIdentityStore{getErr: baseErr}

	store, err := NewCachedIdentityStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached identity store: %v", err)
	}

	if _, err := store.GetByUser(context.Background(), "u1"); err == nil {
		t.Fatalf("expected base store error to surface")
	}
}

func TestIdentityCacheKey_EscapesSegments(t *testing.T) {
	key, err := IdentityCacheKey("user one/two")
	if err != nil {
		t.Fatalf("identity cache key: %v", err)
	}
	expected := "go-session::identity::v1::user%20one%2Ftwo"
	if key != expected {
		t.Fatalf("unexpected cache key %q, want %q", key, expected)
	}

	if _, err := IdentityCacheKey("  "); err == nil {
		t.Fatalf("expected blank user id to be rejected")
	}
}
