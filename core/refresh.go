package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/singleflight"
)

const (
	renewalFlightKey       = "session.renewal"
	defaultRenewalLockTTL  = 30 * time.Second
	defaultRenewalLockName = "session.renewal"
)

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// RenewalLocker optionally serializes renewals across tabs sharing the same
// refresh token. The coordinator never requires one: within a single process
// the single-flight group already collapses concurrent renewals, and the
// cross-tab race is tolerated unless the backend rotates refresh tokens per
// use.
type RenewalLocker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (LockHandle, error)
}

// RenewalFunc performs exactly one renewal round-trip against the backend.
type RenewalFunc func(ctx context.Context, refreshToken string) (TokenPair, error)

// RefreshCoordinator collapses concurrent renewal attempts into one in-flight
// operation. Callers arriving while a renewal is running join it and share its
// outcome; once the flight settles a later expiry starts a fresh renewal.
type RefreshCoordinator struct {
	vault   CredentialVault
	renew   RenewalFunc
	ttls    TokenTTLs
	locker  RenewalLocker
	lockTTL time.Duration
	logger  Logger
	metrics MetricsRecorder

	flight   singleflight.Group
	mu       sync.Mutex
	renewals int64
}

type RefreshCoordinatorOption func(*RefreshCoordinator)

func WithRenewalLocker(locker RenewalLocker, ttl time.Duration) RefreshCoordinatorOption {
	return func(c *RefreshCoordinator) {
		c.locker = locker
		if ttl > 0 {
			c.lockTTL = ttl
		}
	}
}

func WithRefreshLogger(logger Logger) RefreshCoordinatorOption {
	return func(c *RefreshCoordinator) {
		c.logger = logger
	}
}

func WithRefreshMetrics(metrics MetricsRecorder) RefreshCoordinatorOption {
	return func(c *RefreshCoordinator) {
		c.metrics = metrics
	}
}

func NewRefreshCoordinator(
	vault CredentialVault,
	renew RenewalFunc,
	ttls TokenTTLs,
	opts ...RefreshCoordinatorOption,
) (*RefreshCoordinator, error) {
	if vault == nil {
		return nil, fmt.Errorf("core: refresh coordinator requires a credential vault")
	}
	if renew == nil {
		return nil, fmt.Errorf("core: refresh coordinator requires a renewal func")
	}
	coordinator := &RefreshCoordinator{
		vault:   vault,
		renew:   renew,
		ttls:    ttls,
		lockTTL: defaultRenewalLockTTL,
		metrics: NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(coordinator)
	}
	return coordinator, nil
}

// Refresh runs the single-flight renewal. For N concurrent callers within one
// process exactly one renewal round-trip is issued; every caller receives the
// same pair or the same error. On success the new pair is already persisted in
// the vault; on failure the vault has been cleared.
func (c *RefreshCoordinator) Refresh(ctx context.Context) (TokenPair, error) {
	if c == nil {
		return TokenPair{}, fmt.Errorf("core: refresh coordinator is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// The flight outlives any single caller: a renewal in progress cannot be
	// aborted, only joined.
	flightCtx := context.WithoutCancel(ctx)
	value, err, _ := c.flight.Do(renewalFlightKey, func() (any, error) {
		return c.renewOnce(flightCtx)
	})
	if err != nil {
		return TokenPair{}, err
	}
	pair, ok := value.(TokenPair)
	if !ok {
		return TokenPair{}, fmt.Errorf("core: unexpected renewal result type %T", value)
	}
	return pair, nil
}

// Renewals reports how many renewal round-trips have been issued.
func (c *RefreshCoordinator) Renewals() int64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renewals
}

func (c *RefreshCoordinator) renewOnce(ctx context.Context) (TokenPair, error) {
	refreshToken, found, err := c.vault.Get(ctx, TokenNameRefresh)
	if err != nil {
		storageErr := NewStorageError("core: read refresh token", err)
		logWithLevel(ctx, c.logger, "error", "renewal aborted, vault unavailable", map[string]any{
			"error": storageErr.Error(),
		})
		return TokenPair{}, storageErr
	}
	if !found || strings.TrimSpace(refreshToken) == "" {
		c.clearVault(ctx)
		return TokenPair{}, NewAuthExpiredError("core: no refresh token available", nil)
	}

	unlock := func() {}
	if c.locker != nil {
		handle, lockErr := c.locker.Acquire(ctx, defaultRenewalLockName, c.lockTTL)
		if lockErr != nil {
			return TokenPair{}, newSessionError(lockErr.Error(), goerrors.CategoryConflict, SessionErrorRefreshLocked)
		}
		unlock = func() {
			_ = handle.Unlock(ctx)
		}
	}
	defer unlock()

	c.mu.Lock()
	c.renewals++
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.IncCounter(ctx, "session.renewal.total", 1, map[string]string{})
	}

	pair, err := c.renew(ctx, refreshToken)
	if err != nil {
		c.clearVault(ctx)
		authErr := NewAuthExpiredError("core: renewal failed", err)
		logWithLevel(ctx, c.logger, "error", "renewal failed, session cleared", map[string]any{
			"error": authErr.Error(),
		})
		return TokenPair{}, authErr
	}
	if strings.TrimSpace(pair.AccessToken) == "" {
		c.clearVault(ctx)
		return TokenPair{}, NewAuthExpiredError("core: renewal returned an empty access token", nil)
	}
	if strings.TrimSpace(pair.RefreshToken) == "" {
		// Backends that do not rotate keep the original refresh token live.
		pair.RefreshToken = refreshToken
	}

	if err := c.vault.Set(ctx, pair, c.ttls); err != nil {
		return TokenPair{}, NewStorageError("core: persist renewed pair", err)
	}
	logWithLevel(ctx, c.logger, "info", "renewal succeeded", map[string]any{
		"rotated": pair.RefreshToken != refreshToken,
	})
	return pair, nil
}

func (c *RefreshCoordinator) clearVault(ctx context.Context) {
	if err := c.vault.Clear(ctx); err != nil {
		logWithLevel(ctx, c.logger, "error", "vault clear failed", map[string]any{
			"error": err.Error(),
		})
	}
}

// MemoryRenewalLocker is a TTL lock map for single-process deployments and
// tests.
type MemoryRenewalLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	nowFn func() time.Time
}

func NewMemoryRenewalLocker() *MemoryRenewalLocker {
	return &MemoryRenewalLocker{
		locks: make(map[string]time.Time),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryRenewalLocker) Acquire(_ context.Context, name string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: renewal locker is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("core: lock name is required for lock acquisition")
	}
	if ttl <= 0 {
		ttl = defaultRenewalLockTTL
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.locks[name]; ok && now.Before(until) {
		return nil, fmt.Errorf("core: renewal lock already held for %q", name)
	}
	l.locks[name] = now.Add(ttl)
	return &memoryLockHandle{locker: l, name: name}, nil
}

type memoryLockHandle struct {
	locker *MemoryRenewalLocker
	name   string
	once   sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		delete(h.locker.locks, h.name)
		h.locker.mu.Unlock()
	})
	return nil
}
