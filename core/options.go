package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
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
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithVault(vault CredentialVault) Option {
	return func(b *serviceBuilder) {
		b.vault = vault
	}
}

func WithIdentityCache(cache IdentityCache) Option {
	return func(b *serviceBuilder) {
		b.identityCache = cache
	}
}

func WithTransport(adapter TransportAdapter) Option {
	return func(b *serviceBuilder) {
		b.transport = adapter
	}
}

func WithBus(bus BusChannel) Option {
	return func(b *serviceBuilder) {
		b.bus = bus
	}
}

func WithServiceRenewalLocker(locker RenewalLocker) Option {
	return func(b *serviceBuilder) {
		b.renewalLocker = locker
	}
}

func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *serviceBuilder) {
		b.jobEnqueuer = enqueuer
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithSessionStore(store SessionStore) Option {
	return func(b *serviceBuilder) {
		b.sessionStore = store
	}
}

func WithIdentityStore(store IdentityStore) Option {
	return func(b *serviceBuilder) {
		b.identityStore = store
	}
}

func WithTabID(tabID string) Option {
	return func(b *serviceBuilder) {
		b.tabID = strings.TrimSpace(tabID)
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("session", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return sessionErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	endpoints := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Endpoints.BaseURL) != "" {
		endpoints["base_url"] = cfg.Endpoints.BaseURL
	}
	if includeZero || strings.TrimSpace(cfg.Endpoints.Login) != "" {
		endpoints["login"] = cfg.Endpoints.Login
	}
	if includeZero || strings.TrimSpace(cfg.Endpoints.Register) != "" {
		endpoints["register"] = cfg.Endpoints.Register
	}
	if includeZero || strings.TrimSpace(cfg.Endpoints.Logout) != "" {
		endpoints["logout"] = cfg.Endpoints.Logout
	}
	if includeZero || strings.TrimSpace(cfg.Endpoints.Session) != "" {
		endpoints["session"] = cfg.Endpoints.Session
	}
	if includeZero || strings.TrimSpace(cfg.Endpoints.Refresh) != "" {
		endpoints["refresh"] = cfg.Endpoints.Refresh
	}
	if len(endpoints) > 0 {
		layer["endpoints"] = endpoints
	}

	tokens := map[string]any{}
	if includeZero || cfg.Tokens.AccessTTL > 0 {
		tokens["access_ttl"] = cfg.Tokens.AccessTTL
	}
	if includeZero || cfg.Tokens.RefreshTTL > 0 {
		tokens["refresh_ttl"] = cfg.Tokens.RefreshTTL
	}
	if includeZero || cfg.Tokens.RefreshLeadWindow > 0 {
		tokens["refresh_lead_window"] = cfg.Tokens.RefreshLeadWindow
	}
	if len(tokens) > 0 {
		layer["tokens"] = tokens
	}

	if includeZero || cfg.RequestTimeout > 0 {
		layer["request_timeout"] = cfg.RequestTimeout
	}

	reconcile := map[string]any{}
	if includeZero || cfg.Reconcile.MaxAttempts > 0 {
		reconcile["max_attempts"] = cfg.Reconcile.MaxAttempts
	}
	if includeZero || cfg.Reconcile.InitialBackoff > 0 {
		reconcile["initial_backoff"] = cfg.Reconcile.InitialBackoff
	}
	if includeZero || cfg.Reconcile.MaxBackoff > 0 {
		reconcile["max_backoff"] = cfg.Reconcile.MaxBackoff
	}
	if len(reconcile) > 0 {
		layer["reconcile"] = reconcile
	}
	return layer
}
