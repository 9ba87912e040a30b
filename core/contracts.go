package core

import (
	"context"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Session is the authoritative credential pair plus its lifecycle timestamps.
// A session exists iff a valid refresh token exists; AccessExpiresAt is always
// before RefreshExpiresAt.
type Session struct {
	UserID           string
	AccessToken      string
	RefreshToken     string
	IssuedAt         time.Time
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

func (s Session) Valid(now time.Time) bool {
	if strings.TrimSpace(s.RefreshToken) == "" {
		return false
	}
	if s.RefreshExpiresAt.IsZero() {
		return true
	}
	return s.RefreshExpiresAt.After(now.UTC())
}

// TokenPair is the wire-level credential pair returned by login, registration,
// and renewal endpoints.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

func (p TokenPair) Empty() bool {
	return strings.TrimSpace(p.AccessToken) == "" && strings.TrimSpace(p.RefreshToken) == ""
}

// TokenTTLs carries the independent lifetimes the vault applies to each half
// of the pair.
type TokenTTLs struct {
	Access  time.Duration
	Refresh time.Duration
}

// Identity is the client-visible projection of the authenticated user. It is
// a strict function of the last-known-good session and is cleared whenever the
// session is destroyed.
type Identity struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	ProfileImage string `json:"profile_image"`
	Role         string `json:"role"`
}

func (i Identity) Zero() bool {
	return strings.TrimSpace(i.ID) == "" &&
		strings.TrimSpace(i.Username) == "" &&
		strings.TrimSpace(i.ProfileImage) == "" &&
		strings.TrimSpace(i.Role) == ""
}

// Equal reports structural equality. Reconciliation writes nothing when the
// server copy equals the cached copy.
func (i Identity) Equal(other Identity) bool {
	return i.ID == other.ID &&
		i.Username == other.Username &&
		i.ProfileImage == other.ProfileImage &&
		i.Role == other.Role
}

// SessionCheck is the canonical answer of the session-check endpoint.
type SessionCheck struct {
	Authenticated bool     `json:"authenticated"`
	Identity      Identity `json:"identity"`
}

const (
	TokenNameAccess  = "access_token"
	TokenNameRefresh = "refresh_token"
)

// CredentialVault owns durable storage of the credential pair. Absent or
// expired entries read back as not-found, never as an error; errors are
// reserved for an unavailable storage scope.
type CredentialVault interface {
	Set(ctx context.Context, pair TokenPair, ttls TokenTTLs) error
	Get(ctx context.Context, name string) (string, bool, error)
	Clear(ctx context.Context) error
}

// IdentityCache is the client cache UI consumers read. Only the session
// service and the reconciler write it.
type IdentityCache interface {
	Load(ctx context.Context) (Identity, bool, error)
	Store(ctx context.Context, identity Identity) error
	Clear(ctx context.Context) error
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
	Idempotency          string
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// BusMessage is the cross-tab channel schema. OriginTabID lets subscribers
// ignore their own writes.
type BusMessage struct {
	Type        string
	Payload     map[string]any
	OriginTabID string
}

const (
	BusTypeIdentityChanged = "session.identity.changed"
	BusTypeSessionCleared  = "session.cleared"
	BusTypeFocusRegained   = "session.focus.regained"
)

// BusChannel is an explicit publish/subscribe channel between tabs of the same
// profile. Implementations decide the underlying mechanism (shared storage
// events, in-process fan-out for tests).
type BusChannel interface {
	Publish(ctx context.Context, msg BusMessage) error
	Subscribe(handler func(ctx context.Context, msg BusMessage)) (func(), error)
}

// StoredSession is a versioned durable record of a credential pair.
type StoredSession struct {
	ID               string
	UserID           string
	Version          int
	Status           SessionStatus
	Session          Session
	RevocationReason string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusRevoked SessionStatus = "revoked"
)

type SaveSessionInput struct {
	UserID  string
	Session Session
	Status  SessionStatus
}

// SessionStore persists credential-pair versions for native clients that need
// durability beyond the vault.
type SessionStore interface {
	SaveNewVersion(ctx context.Context, in SaveSessionInput) (StoredSession, error)
	GetActiveByUser(ctx context.Context, userID string) (StoredSession, error)
	RevokeActive(ctx context.Context, userID string, reason string) error
}

// IdentityStore is the shared persisted-identity record every tab observes.
type IdentityStore interface {
	Upsert(ctx context.Context, identity Identity) (Identity, error)
	GetByUser(ctx context.Context, userID string) (Identity, error)
	Delete(ctx context.Context, userID string) error
}

type StoreProvider interface {
	SessionStore() SessionStore
	IdentityStore() IdentityStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string)       {}
func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
	// Attempt is the retry index this nack settles, so queue-side retry
	// policies bound on the same counter the dispatcher uses.
	Attempt int
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

// JobDelivery is one claimed queue message. Message returns the same value on
// every call; parameter writes made before a requeue Nack must survive into
// the redelivered message.
type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type LoginRequest struct {
	Username string
	Password string
}

type RegisterRequest struct {
	Username     string
	Password     string
	ProfileImage string
}

// AuthResponse is the outcome of login and registration: the issued session
// plus its identity projection.
type AuthResponse struct {
	Session  Session
	Identity Identity
}
