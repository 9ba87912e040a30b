package core

import (
	"context"
	"fmt"
	"strings"
)

type ReconcileOutcome string

const (
	ReconcileSkipped   ReconcileOutcome = "skipped"
	ReconcileUnchanged ReconcileOutcome = "unchanged"
	ReconcileUpdated   ReconcileOutcome = "updated"
	ReconcileCleared   ReconcileOutcome = "cleared"
)

type ReconcileResult struct {
	Outcome  ReconcileOutcome
	Identity Identity
}

// IdentityReconciler keeps the cached identity consistent with server truth
// and with the other tabs of the same profile. Focus-triggered syncs are
// idempotent; storage-change signals apply last-writer-wins with no merging.
type IdentityReconciler struct {
	config  Config
	gateway *Gateway
	cache   IdentityCache
	vault   CredentialVault
	shared  IdentityStore
	bus     BusChannel
	tabID   string
	logger  Logger
	metrics MetricsRecorder
}

type ReconcilerOption func(*IdentityReconciler)

func WithSharedIdentityStore(store IdentityStore) ReconcilerOption {
	return func(r *IdentityReconciler) {
		r.shared = store
	}
}

func WithReconcilerVault(vault CredentialVault) ReconcilerOption {
	return func(r *IdentityReconciler) {
		r.vault = vault
	}
}

func WithReconcilerLogger(logger Logger) ReconcilerOption {
	return func(r *IdentityReconciler) {
		r.logger = logger
	}
}

func WithReconcilerMetrics(metrics MetricsRecorder) ReconcilerOption {
	return func(r *IdentityReconciler) {
		r.metrics = metrics
	}
}

func NewIdentityReconciler(
	cfg Config,
	gateway *Gateway,
	cache IdentityCache,
	bus BusChannel,
	tabID string,
	opts ...ReconcilerOption,
) (*IdentityReconciler, error) {
	if gateway == nil {
		return nil, fmt.Errorf("core: reconciler requires a gateway")
	}
	if cache == nil {
		return nil, fmt.Errorf("core: reconciler requires an identity cache")
	}
	reconciler := &IdentityReconciler{
		config:  cfg,
		gateway: gateway,
		cache:   cache,
		bus:     bus,
		tabID:   strings.TrimSpace(tabID),
		metrics: NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(reconciler)
	}
	return reconciler, nil
}

// SyncCurrentUser reconciles the cached identity against the session-check
// endpoint. The server is authoritative: a server-side logout force-clears the
// local cache, a differing identity overwrites it, an identical identity
// produces zero writes.
func (r *IdentityReconciler) SyncCurrentUser(ctx context.Context, userID string) (ReconcileResult, error) {
	if r == nil {
		return ReconcileResult{}, fmt.Errorf("core: reconciler is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cached, cachedPresent, err := r.cache.Load(ctx)
	if err != nil {
		return ReconcileResult{}, NewStorageError("core: load cached identity", err)
	}
	if strings.TrimSpace(userID) == "" && !cachedPresent {
		return ReconcileResult{Outcome: ReconcileSkipped}, nil
	}

	var check SessionCheck
	_, err = r.gateway.RequestJSON(ctx, GatewayRequest{
		Method: "GET",
		Path:   r.config.Endpoints.Session,
	}, &check)
	if err != nil {
		if IsAuthExpired(err) {
			return r.forceClear(ctx)
		}
		// Network and parse failures are non-fatal: cache stays untouched
		// and the next focus event retries.
		logWithLevel(ctx, r.logger, "error", "identity sync failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		return ReconcileResult{}, err
	}

	if !check.Authenticated {
		if !cachedPresent {
			return ReconcileResult{Outcome: ReconcileSkipped}, nil
		}
		return r.forceClear(ctx)
	}

	if cachedPresent && cached.Equal(check.Identity) {
		return ReconcileResult{Outcome: ReconcileUnchanged, Identity: cached}, nil
	}

	if err := r.cache.Store(ctx, check.Identity); err != nil {
		return ReconcileResult{}, NewStorageError("core: store reconciled identity", err)
	}
	if r.shared != nil {
		if _, err := r.shared.Upsert(ctx, check.Identity); err != nil {
			logWithLevel(ctx, r.logger, "error", "shared identity upsert failed", map[string]any{
				"user_id": check.Identity.ID,
				"error":   err.Error(),
			})
		}
	}
	r.publish(ctx, BusMessage{
		Type:        BusTypeIdentityChanged,
		Payload:     identityToPayload(check.Identity),
		OriginTabID: r.tabID,
	})
	return ReconcileResult{Outcome: ReconcileUpdated, Identity: check.Identity}, nil
}

// HandleBusMessage is the subscriber side of cross-tab consistency. Messages
// from this tab are ignored.
func (r *IdentityReconciler) HandleBusMessage(ctx context.Context, msg BusMessage) {
	if r == nil {
		return
	}
	if strings.TrimSpace(msg.OriginTabID) != "" && msg.OriginTabID == r.tabID {
		return
	}
	switch msg.Type {
	case BusTypeIdentityChanged:
		r.applyRemoteIdentity(ctx, msg)
	case BusTypeSessionCleared:
		if err := r.cache.Clear(ctx); err != nil {
			logWithLevel(ctx, r.logger, "error", "cache clear failed", map[string]any{"error": err.Error()})
		}
		if r.vault != nil {
			if err := r.vault.Clear(ctx); err != nil {
				logWithLevel(ctx, r.logger, "error", "vault clear failed", map[string]any{"error": err.Error()})
			}
		}
	case BusTypeFocusRegained:
		userID := payloadString(msg.Payload, "user_id")
		if _, err := r.SyncCurrentUser(ctx, userID); err != nil {
			logWithLevel(ctx, r.logger, "error", "focus sync failed", map[string]any{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
	}
}

// Attach subscribes the reconciler to the bus and returns the unsubscribe
// handle.
func (r *IdentityReconciler) Attach() (func(), error) {
	if r == nil || r.bus == nil {
		return func() {}, nil
	}
	return r.bus.Subscribe(r.HandleBusMessage)
}

func (r *IdentityReconciler) forceClear(ctx context.Context) (ReconcileResult, error) {
	if err := r.cache.Clear(ctx); err != nil {
		return ReconcileResult{}, NewStorageError("core: clear cached identity", err)
	}
	r.publish(ctx, BusMessage{
		Type:        BusTypeSessionCleared,
		OriginTabID: r.tabID,
	})
	return ReconcileResult{Outcome: ReconcileCleared}, nil
}

func (r *IdentityReconciler) applyRemoteIdentity(ctx context.Context, msg BusMessage) {
	identity := identityFromPayload(msg.Payload)
	if r.shared != nil {
		userID := strings.TrimSpace(identity.ID)
		if userID != "" {
			if stored, err := r.shared.GetByUser(ctx, userID); err == nil {
				// The shared store carries the newest write.
				identity = stored
			}
		}
	}
	if identity.Zero() {
		return
	}
	if err := r.cache.Store(ctx, identity); err != nil {
		logWithLevel(ctx, r.logger, "error", "remote identity apply failed", map[string]any{
			"user_id": identity.ID,
			"error":   err.Error(),
		})
	}
}

func (r *IdentityReconciler) publish(ctx context.Context, msg BusMessage) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(ctx, msg); err != nil {
		logWithLevel(ctx, r.logger, "error", "bus publish failed", map[string]any{
			"type":  msg.Type,
			"error": err.Error(),
		})
	}
	if r.metrics != nil {
		r.metrics.IncCounter(ctx, "session.bus.published.total", 1, map[string]string{"type": msg.Type})
	}
}

func identityToPayload(identity Identity) map[string]any {
	return map[string]any{
		"id":            identity.ID,
		"username":      identity.Username,
		"profile_image": identity.ProfileImage,
		"role":          identity.Role,
	}
}

func identityFromPayload(payload map[string]any) Identity {
	return Identity{
		ID:           payloadString(payload, "id"),
		Username:     payloadString(payload, "username"),
		ProfileImage: payloadString(payload, "profile_image"),
		Role:         payloadString(payload, "role"),
	}
}

func payloadString(payload map[string]any, key string) string {
	if len(payload) == 0 {
		return ""
	}
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}
