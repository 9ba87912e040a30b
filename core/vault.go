package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type vaultEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryVault is the default CredentialVault: a TTL map with an injectable
// clock. Entries past their TTL read back as absent.
type MemoryVault struct {
	mu      sync.Mutex
	entries map[string]vaultEntry
	nowFn   func() time.Time
}

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		entries: make(map[string]vaultEntry),
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock swaps the vault clock. Test hook.
func (v *MemoryVault) WithClock(nowFn func() time.Time) *MemoryVault {
	if v == nil || nowFn == nil {
		return v
	}
	v.mu.Lock()
	v.nowFn = nowFn
	v.mu.Unlock()
	return v
}

func (v *MemoryVault) Set(_ context.Context, pair TokenPair, ttls TokenTTLs) error {
	if v == nil {
		return fmt.Errorf("core: memory vault is not configured")
	}
	if pair.Empty() {
		return fmt.Errorf("core: token pair is required")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.nowFn()
	v.entries[TokenNameAccess] = vaultEntry{
		value:     pair.AccessToken,
		expiresAt: entryExpiry(now, pair.AccessExpiresAt, ttls.Access),
	}
	v.entries[TokenNameRefresh] = vaultEntry{
		value:     pair.RefreshToken,
		expiresAt: entryExpiry(now, pair.RefreshExpiresAt, ttls.Refresh),
	}
	return nil
}

func (v *MemoryVault) Get(_ context.Context, name string) (string, bool, error) {
	if v == nil {
		return "", false, fmt.Errorf("core: memory vault is not configured")
	}
	name = strings.TrimSpace(name)
	v.mu.Lock()
	defer v.mu.Unlock()

	entry, ok := v.entries[name]
	if !ok || strings.TrimSpace(entry.value) == "" {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(v.nowFn()) {
		delete(v.entries, name)
		return "", false, nil
	}
	return entry.value, true, nil
}

// Clear removes both entries, both-or-neither from the caller's perspective.
func (v *MemoryVault) Clear(_ context.Context) error {
	if v == nil {
		return fmt.Errorf("core: memory vault is not configured")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.entries, TokenNameAccess)
	delete(v.entries, TokenNameRefresh)
	return nil
}

func entryExpiry(now time.Time, absolute time.Time, ttl time.Duration) time.Time {
	if !absolute.IsZero() {
		return absolute.UTC()
	}
	if ttl > 0 {
		return now.Add(ttl)
	}
	return time.Time{}
}

// MemoryIdentityCache holds the tab-local identity projection.
type MemoryIdentityCache struct {
	mu       sync.Mutex
	identity Identity
	present  bool
}

func NewMemoryIdentityCache() *MemoryIdentityCache {
	return &MemoryIdentityCache{}
}

func (c *MemoryIdentityCache) Load(_ context.Context) (Identity, bool, error) {
	if c == nil {
		return Identity{}, false, fmt.Errorf("core: identity cache is not configured")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity, c.present, nil
}

func (c *MemoryIdentityCache) Store(_ context.Context, identity Identity) error {
	if c == nil {
		return fmt.Errorf("core: identity cache is not configured")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = identity
	c.present = true
	return nil
}

func (c *MemoryIdentityCache) Clear(_ context.Context) error {
	if c == nil {
		return fmt.Errorf("core: identity cache is not configured")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = Identity{}
	c.present = false
	return nil
}
