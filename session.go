package session

import "github.com/goliatone/go-session/core"

type Config = core.Config

type EndpointsConfig = core.EndpointsConfig
type TokensConfig = core.TokensConfig
type ReconcileConfig = core.ReconcileConfig

type Option = core.Option

type Service = core.Service

type Session = core.Session
type TokenPair = core.TokenPair
type Identity = core.Identity
type TokenState = core.TokenState
type ReconcileResult = core.ReconcileResult
type StoredSession = core.StoredSession

type CredentialVault = core.CredentialVault
type IdentityCache = core.IdentityCache
type TransportAdapter = core.TransportAdapter
type BusChannel = core.BusChannel
type BusMessage = core.BusMessage
type SessionStore = core.SessionStore
type IdentityStore = core.IdentityStore
type RenewalLocker = core.RenewalLocker
type JobEnqueuer = core.JobEnqueuer

type LoginRequest = core.LoginRequest
type RegisterRequest = core.RegisterRequest
type AuthResponse = core.AuthResponse

type GatewayRequest = core.GatewayRequest
type GatewayResponse = core.GatewayResponse

var (
	WithLogger               = core.WithLogger
	WithLoggerProvider       = core.WithLoggerProvider
	WithMetricsRecorder      = core.WithMetricsRecorder
	WithErrorFactory         = core.WithErrorFactory
	WithErrorMapper          = core.WithErrorMapper
	WithConfigProvider       = core.WithConfigProvider
	WithOptionsResolver      = core.WithOptionsResolver
	WithVault                = core.WithVault
	WithIdentityCache        = core.WithIdentityCache
	WithTransport            = core.WithTransport
	WithBus                  = core.WithBus
	WithServiceRenewalLocker = core.WithServiceRenewalLocker
	WithJobEnqueuer          = core.WithJobEnqueuer
	WithPersistenceClient    = core.WithPersistenceClient
	WithRepositoryFactory    = core.WithRepositoryFactory
	WithSessionStore         = core.WithSessionStore
	WithIdentityStore        = core.WithIdentityStore
	WithTabID                = core.WithTabID
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
