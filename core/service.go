package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

var ErrNotAuthenticated = errors.New("core: not authenticated")

// Service owns the session lifecycle: issuing the pair on login and
// registration, renewing it through the coordinator, destroying it on logout,
// and keeping the identity projection consistent through the reconciler.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	vault             CredentialVault
	identityCache     IdentityCache
	transport         TransportAdapter
	bus               BusChannel
	renewalLocker     RenewalLocker
	jobEnqueuer       JobEnqueuer
	persistenceClient any
	repositoryFactory any
	sessionStore      SessionStore
	identityStore     IdentityStore
	tabID             string

	gateway    *Gateway
	refresher  *RefreshCoordinator
	reconciler *IdentityReconciler
	nowFn      func() time.Time
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("session", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("session"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.vault == nil {
		builder.vault = NewMemoryVault()
	}
	if builder.identityCache == nil {
		builder.identityCache = NewMemoryIdentityCache()
	}
	if builder.transport == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: transport adapter is required"))
	}
	if builder.tabID == "" {
		builder.tabID = uuid.NewString()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if err := finalConfig.Validate(); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.sessionStore == nil || builder.identityStore == nil) && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			provider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if provider != nil {
				if builder.sessionStore == nil {
					builder.sessionStore = provider.SessionStore()
				}
				if builder.identityStore == nil {
					builder.identityStore = provider.IdentityStore()
				}
			}
		} else if provider, ok := builder.repositoryFactory.(StoreProvider); ok {
			if builder.sessionStore == nil {
				builder.sessionStore = provider.SessionStore()
			}
			if builder.identityStore == nil {
				builder.identityStore = provider.IdentityStore()
			}
		}
	}

	service := &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		vault:             builder.vault,
		identityCache:     builder.identityCache,
		transport:         builder.transport,
		bus:               builder.bus,
		renewalLocker:     builder.renewalLocker,
		jobEnqueuer:       builder.jobEnqueuer,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		sessionStore:      builder.sessionStore,
		identityStore:     builder.identityStore,
		tabID:             builder.tabID,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}

	refreshOpts := []RefreshCoordinatorOption{
		WithRefreshLogger(logger),
		WithRefreshMetrics(service.metricsRecorder),
	}
	if service.renewalLocker != nil {
		refreshOpts = append(refreshOpts, WithRenewalLocker(service.renewalLocker, defaultRenewalLockTTL))
	}
	refresher, err := NewRefreshCoordinator(
		service.vault,
		service.renewPair,
		TokenTTLs{
			Access:  finalConfig.Tokens.AccessTTL,
			Refresh: finalConfig.Tokens.RefreshTTL,
		},
		refreshOpts...,
	)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	service.refresher = refresher

	gateway, err := NewGateway(finalConfig, service.vault, service.transport, refresher, logger, service.metricsRecorder)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	service.gateway = gateway

	reconcilerOpts := []ReconcilerOption{
		WithReconcilerVault(service.vault),
		WithReconcilerLogger(logger),
		WithReconcilerMetrics(service.metricsRecorder),
	}
	if service.identityStore != nil {
		reconcilerOpts = append(reconcilerOpts, WithSharedIdentityStore(service.identityStore))
	}
	reconciler, err := NewIdentityReconciler(
		finalConfig,
		gateway,
		service.identityCache,
		service.bus,
		service.tabID,
		reconcilerOpts...,
	)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	service.reconciler = reconciler

	return service, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Gateway() *Gateway {
	if s == nil {
		return nil
	}
	return s.gateway
}

func (s *Service) Refresher() *RefreshCoordinator {
	if s == nil {
		return nil
	}
	return s.refresher
}

func (s *Service) Reconciler() *IdentityReconciler {
	if s == nil {
		return nil
	}
	return s.reconciler
}

func (s *Service) TabID() string {
	if s == nil {
		return ""
	}
	return s.tabID
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

// factoryError builds service errors through the configured ErrorFactory.
func (s *Service) factoryError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	factory := goerrors.New
	if s != nil && s.errorFactory != nil {
		factory = s.errorFactory
	}
	return ensureSessionErrorEnvelope(factory(message, category).WithTextCode(textCode))
}

// authEnvelope is the wire shape shared by login, registration, and renewal
// responses.
type authEnvelope struct {
	User             Identity `json:"user"`
	AccessToken      string   `json:"access_token"`
	RefreshToken     string   `json:"refresh_token"`
	ExpiresIn        int64    `json:"expires_in"`
	RefreshExpiresIn int64    `json:"refresh_expires_in"`
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (AuthResponse, error) {
	startedAt := time.Now()
	res, err := s.authenticate(ctx, s.config.Endpoints.Login, map[string]any{
		"username": strings.TrimSpace(req.Username),
		"password": req.Password,
	}, validateCredentials(req.Username, req.Password))
	s.observeOperation(ctx, startedAt, "login", err, map[string]any{
		"user_id": res.Identity.ID,
		"tab_id":  s.tabID,
	})
	return res, err
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (AuthResponse, error) {
	startedAt := time.Now()
	res, err := s.authenticate(ctx, s.config.Endpoints.Register, map[string]any{
		"username":      strings.TrimSpace(req.Username),
		"password":      req.Password,
		"profile_image": strings.TrimSpace(req.ProfileImage),
	}, validateCredentials(req.Username, req.Password))
	s.observeOperation(ctx, startedAt, "register", err, map[string]any{
		"user_id": res.Identity.ID,
		"tab_id":  s.tabID,
	})
	return res, err
}

func (s *Service) authenticate(ctx context.Context, path string, payload map[string]any, validationErr error) (AuthResponse, error) {
	if s == nil {
		return AuthResponse{}, fmt.Errorf("core: service is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if validationErr != nil {
		return AuthResponse{}, s.mapError(validationErr)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return AuthResponse{}, s.mapError(err)
	}
	res, err := s.transport.Do(ctx, TransportRequest{
		Method:  http.MethodPost,
		URL:     joinBaseURL(s.config.Endpoints.BaseURL, path),
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
		Timeout: s.config.RequestTimeout,
	})
	if err != nil {
		return AuthResponse{}, NewNetworkError("core: dispatch auth request", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return AuthResponse{}, NewHTTPError(res.StatusCode, httpErrorMessage(path, res))
	}

	var envelope authEnvelope
	if err := json.Unmarshal(res.Body, &envelope); err != nil {
		return AuthResponse{}, s.factoryError(
			fmt.Sprintf("core: decode auth response: %v", err),
			goerrors.CategoryBadInput,
			SessionErrorBadInput,
		)
	}

	now := s.nowFn()
	pair := pairFromEnvelope(now, envelope, s.config.Tokens)
	session := Session{
		UserID:           envelope.User.ID,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		IssuedAt:         now,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
	if !session.Valid(now) {
		return AuthResponse{}, NewAuthExpiredError("core: auth response carried no refresh token", nil)
	}

	if err := s.vault.Set(ctx, pair, TokenTTLs{
		Access:  s.config.Tokens.AccessTTL,
		Refresh: s.config.Tokens.RefreshTTL,
	}); err != nil {
		return AuthResponse{}, NewStorageError("core: persist credential pair", err)
	}
	if err := s.identityCache.Store(ctx, envelope.User); err != nil {
		return AuthResponse{}, NewStorageError("core: cache identity", err)
	}
	if s.sessionStore != nil {
		if _, err := s.sessionStore.SaveNewVersion(ctx, SaveSessionInput{
			UserID:  envelope.User.ID,
			Session: session,
			Status:  SessionStatusActive,
		}); err != nil {
			return AuthResponse{}, s.mapError(err)
		}
	}
	if s.identityStore != nil {
		if _, err := s.identityStore.Upsert(ctx, envelope.User); err != nil {
			s.logError(ctx, "shared identity upsert failed", map[string]any{
				"user_id": envelope.User.ID,
				"error":   err.Error(),
			})
		}
	}
	s.publish(ctx, BusMessage{
		Type:        BusTypeIdentityChanged,
		Payload:     identityToPayload(envelope.User),
		OriginTabID: s.tabID,
	})

	return AuthResponse{Session: session, Identity: envelope.User}, nil
}

// Logout destroys the session. The server round-trip is best-effort: local
// credentials and cached identity are cleared even when the network call
// fails, and every other tab is told to do the same.
func (s *Service) Logout(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()

	cached, _, loadErr := s.identityCache.Load(ctx)
	if loadErr != nil {
		s.logError(ctx, "identity cache read failed during logout", map[string]any{"error": loadErr.Error()})
	}

	if _, err := s.gateway.Request(ctx, GatewayRequest{
		Method: http.MethodPost,
		Path:   s.config.Endpoints.Logout,
	}); err != nil {
		s.logError(ctx, "server logout failed, clearing local state anyway", map[string]any{
			"error": err.Error(),
		})
	}

	err := s.clearLocalSession(ctx, cached.ID, "logout")
	s.observeOperation(ctx, startedAt, "logout", err, map[string]any{
		"user_id": cached.ID,
		"tab_id":  s.tabID,
	})
	return err
}

func (s *Service) clearLocalSession(ctx context.Context, userID string, reason string) error {
	if err := s.vault.Clear(ctx); err != nil {
		return NewStorageError("core: clear credential vault", err)
	}
	if err := s.identityCache.Clear(ctx); err != nil {
		return NewStorageError("core: clear identity cache", err)
	}
	if s.sessionStore != nil && strings.TrimSpace(userID) != "" {
		if err := s.sessionStore.RevokeActive(ctx, userID, reason); err != nil {
			s.logError(ctx, "session revoke failed", map[string]any{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
	}
	if s.identityStore != nil && strings.TrimSpace(userID) != "" {
		if err := s.identityStore.Delete(ctx, userID); err != nil {
			s.logError(ctx, "shared identity delete failed", map[string]any{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
	}
	s.publish(ctx, BusMessage{
		Type:        BusTypeSessionCleared,
		OriginTabID: s.tabID,
	})
	return nil
}

// CurrentUser reconciles and returns the canonical identity. A server-side
// logout is surfaced as an auth-expired error after local state is cleared.
func (s *Service) CurrentUser(ctx context.Context) (Identity, error) {
	if s == nil {
		return Identity{}, fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now()
	cached, _, err := s.identityCache.Load(ctx)
	if err != nil {
		return Identity{}, NewStorageError("core: load cached identity", err)
	}
	result, err := s.reconciler.SyncCurrentUser(ctx, cached.ID)
	s.observeOperation(ctx, startedAt, "current_user", err, map[string]any{
		"user_id": cached.ID,
		"tab_id":  s.tabID,
	})
	if err != nil {
		return Identity{}, err
	}
	switch result.Outcome {
	case ReconcileCleared, ReconcileSkipped:
		return Identity{}, NewAuthExpiredError("core: no authenticated session", ErrNotAuthenticated)
	default:
		return result.Identity, nil
	}
}

// Refresh forces a renewal through the coordinator.
func (s *Service) Refresh(ctx context.Context) (TokenPair, error) {
	if s == nil {
		return TokenPair{}, fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now()
	pair, err := s.refresher.Refresh(ctx)
	s.observeOperation(ctx, startedAt, "refresh", err, map[string]any{"tab_id": s.tabID})
	return pair, err
}

// SyncIdentity runs one reconciliation pass for userID.
func (s *Service) SyncIdentity(ctx context.Context, userID string) (ReconcileResult, error) {
	if s == nil {
		return ReconcileResult{}, fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now()
	result, err := s.reconciler.SyncCurrentUser(ctx, userID)
	s.observeOperation(ctx, startedAt, "sync_identity", err, map[string]any{
		"user_id": userID,
		"tab_id":  s.tabID,
	})
	return result, err
}

// HandleFocusRegained is the focus/visibility trigger. With a job enqueuer
// configured the sync runs in the background queue; otherwise it runs inline.
// Failures are logged, never surfaced: the next focus event retries.
func (s *Service) HandleFocusRegained(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	cached, present, err := s.identityCache.Load(ctx)
	if err != nil {
		return NewStorageError("core: load cached identity", err)
	}
	if !present {
		return nil
	}
	if s.jobEnqueuer != nil {
		return EnqueueIdentitySync(ctx, s.jobEnqueuer, cached.ID)
	}
	if _, syncErr := s.reconciler.SyncCurrentUser(ctx, cached.ID); syncErr != nil {
		s.logError(ctx, "focus sync failed", map[string]any{
			"user_id": cached.ID,
			"error":   syncErr.Error(),
		})
	}
	return nil
}

// Request exposes the gateway to feature modules.
func (s *Service) Request(ctx context.Context, req GatewayRequest) (GatewayResponse, error) {
	if s == nil {
		return GatewayResponse{}, fmt.Errorf("core: service is nil")
	}
	return s.gateway.Request(ctx, req)
}

func (s *Service) RequestJSON(ctx context.Context, req GatewayRequest, out any) (GatewayResponse, error) {
	if s == nil {
		return GatewayResponse{}, fmt.Errorf("core: service is nil")
	}
	return s.gateway.RequestJSON(ctx, req, out)
}

// SessionState reports lifecycle flags derived from the vault contents.
func (s *Service) SessionState(ctx context.Context) (TokenState, error) {
	if s == nil {
		return TokenState{}, fmt.Errorf("core: service is nil")
	}
	access, _, err := s.vault.Get(ctx, TokenNameAccess)
	if err != nil {
		return TokenState{}, NewStorageError("core: read access token", err)
	}
	refresh, _, err := s.vault.Get(ctx, TokenNameRefresh)
	if err != nil {
		return TokenState{}, NewStorageError("core: read refresh token", err)
	}
	return ResolveTokenState(s.nowFn(), Session{
		AccessToken:  access,
		RefreshToken: refresh,
	}, s.config.Tokens.RefreshLeadWindow), nil
}

func (s *Service) publish(ctx context.Context, msg BusMessage) {
	if s == nil || s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, msg); err != nil {
		s.logError(ctx, "bus publish failed", map[string]any{
			"type":  msg.Type,
			"error": err.Error(),
		})
	}
}

// renewPair is the coordinator's renewal round-trip: one POST against the
// refresh endpoint, outside the gateway so it can never recurse into another
// renewal.
func (s *Service) renewPair(ctx context.Context, refreshToken string) (TokenPair, error) {
	body, err := json.Marshal(map[string]any{"refresh_token": refreshToken})
	if err != nil {
		return TokenPair{}, err
	}
	res, err := s.transport.Do(ctx, TransportRequest{
		Method:  http.MethodPost,
		URL:     joinBaseURL(s.config.Endpoints.BaseURL, s.config.Endpoints.Refresh),
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
		Timeout: s.config.RequestTimeout,
	})
	if err != nil {
		return TokenPair{}, NewNetworkError("core: dispatch renewal request", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return TokenPair{}, NewHTTPError(res.StatusCode, httpErrorMessage(s.config.Endpoints.Refresh, res))
	}
	var envelope authEnvelope
	if err := json.Unmarshal(res.Body, &envelope); err != nil {
		return TokenPair{}, s.factoryError(
			fmt.Sprintf("core: decode renewal response: %v", err),
			goerrors.CategoryBadInput,
			SessionErrorBadInput,
		)
	}
	return pairFromEnvelope(s.nowFn(), envelope, s.config.Tokens), nil
}

func pairFromEnvelope(now time.Time, envelope authEnvelope, tokens TokensConfig) TokenPair {
	pair := TokenPair{
		AccessToken:  strings.TrimSpace(envelope.AccessToken),
		RefreshToken: strings.TrimSpace(envelope.RefreshToken),
	}
	accessTTL := tokens.AccessTTL
	if envelope.ExpiresIn > 0 {
		accessTTL = time.Duration(envelope.ExpiresIn) * time.Second
	}
	refreshTTL := tokens.RefreshTTL
	if envelope.RefreshExpiresIn > 0 {
		refreshTTL = time.Duration(envelope.RefreshExpiresIn) * time.Second
	}
	pair.AccessExpiresAt = now.Add(accessTTL)
	pair.RefreshExpiresAt = now.Add(refreshTTL)
	return pair
}

func validateCredentials(username string, password string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("core: username is required")
	}
	if password == "" {
		return fmt.Errorf("core: password is required")
	}
	return nil
}
