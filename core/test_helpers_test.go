package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

// scriptedTransport routes every dispatch through a handler func and records
// the requests it saw.
type scriptedTransport struct {
	mu       sync.Mutex
	handler  func(req TransportRequest) (TransportResponse, error)
	requests []TransportRequest
}

func newScriptedTransport(handler func(req TransportRequest) (TransportResponse, error)) *scriptedTransport {
	return &scriptedTransport{handler: handler}
}

func (t *scriptedTransport) Kind() string { return "scripted" }

func (t *scriptedTransport) Do(_ context.Context, req TransportRequest) (TransportResponse, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	handler := t.handler
	t.mu.Unlock()
	if handler == nil {
		return TransportResponse{StatusCode: 200}, nil
	}
	return handler(req)
}

func (t *scriptedTransport) Requests() []TransportRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TransportRequest(nil), t.requests...)
}

func jsonResponse(t *testing.T, status int, payload any) TransportResponse {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal response payload: %v", err)
	}
	return TransportResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

// memoryBus is a synchronous in-process fan-out used to simulate the cross-tab
// channel.
type memoryBus struct {
	mu       sync.Mutex
	next     int
	handlers map[int]func(ctx context.Context, msg BusMessage)
	messages []BusMessage
}

func newMemoryBus() *memoryBus {
	return &memoryBus{handlers: make(map[int]func(ctx context.Context, msg BusMessage))}
}

func (b *memoryBus) Publish(ctx context.Context, msg BusMessage) error {
	b.mu.Lock()
	b.messages = append(b.messages, msg)
	handlers := make([]func(ctx context.Context, msg BusMessage), 0, len(b.handlers))
	for _, handler := range b.handlers {
		handlers = append(handlers, handler)
	}
	b.mu.Unlock()
	for _, handler := range handlers {
		handler(ctx, msg)
	}
	return nil
}

func (b *memoryBus) Subscribe(handler func(ctx context.Context, msg BusMessage)) (func(), error) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = handler
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}, nil
}

func (b *memoryBus) Messages() []BusMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]BusMessage(nil), b.messages...)
}

func (b *memoryBus) MessagesOfType(msgType string) []BusMessage {
	var out []BusMessage
	for _, msg := range b.Messages() {
		if msg.Type == msgType {
			out = append(out, msg)
		}
	}
	return out
}

// countingCache wraps an IdentityCache and counts writes.
type countingCache struct {
	inner  IdentityCache
	mu     sync.Mutex
	stores int
	clears int
}

func newCountingCache() *countingCache {
	return &countingCache{inner: NewMemoryIdentityCache()}
}

func (c *countingCache) Load(ctx context.Context) (Identity, bool, error) {
	return c.inner.Load(ctx)
}

func (c *countingCache) Store(ctx context.Context, identity Identity) error {
	c.mu.Lock()
	c.stores++
	c.mu.Unlock()
	return c.inner.Store(ctx, identity)
}

func (c *countingCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.clears++
	c.mu.Unlock()
	return c.inner.Clear(ctx)
}

func (c *countingCache) Stores() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stores
}

func (c *countingCache) Clears() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clears
}

// memoryIdentityStore is a map-backed IdentityStore double.
type memoryIdentityStore struct {
	mu     sync.Mutex
	byUser map[string]Identity
}

func newMemoryIdentityStore() *memoryIdentityStore {
	return &memoryIdentityStore{byUser: make(map[string]Identity)}
}

func (s *memoryIdentityStore) Upsert(_ context.Context, identity Identity) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[identity.ID] = identity
	return identity, nil
}

func (s *memoryIdentityStore) GetByUser(_ context.Context, userID string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byUser[userID]
	if !ok {
		return Identity{}, fmt.Errorf("identity %q not found", userID)
	}
	return identity, nil
}

func (s *memoryIdentityStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byUser, userID)
	return nil
}

// memorySessionStore is a versioned SessionStore double.
type memorySessionStore struct {
	mu       sync.Mutex
	versions map[string][]StoredSession
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{versions: make(map[string][]StoredSession)}
}

func (s *memorySessionStore) SaveNewVersion(_ context.Context, in SaveSessionInput) (StoredSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.versions[in.UserID]
	for i := range existing {
		if existing[i].Status == SessionStatusActive {
			existing[i].Status = SessionStatusRevoked
			existing[i].RevocationReason = "superseded"
		}
	}
	record := StoredSession{
		ID:      fmt.Sprintf("%s-v%d", in.UserID, len(existing)+1),
		UserID:  in.UserID,
		Version: len(existing) + 1,
		Status:  in.Status,
		Session: in.Session,
	}
	s.versions[in.UserID] = append(existing, record)
	return record, nil
}

func (s *memorySessionStore) GetActiveByUser(_ context.Context, userID string) (StoredSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.versions[userID] {
		if record.Status == SessionStatusActive {
			return record, nil
		}
	}
	return StoredSession{}, fmt.Errorf("no active session for %q", userID)
}

func (s *memorySessionStore) RevokeActive(_ context.Context, userID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.versions[userID]
	for i := range records {
		if records[i].Status == SessionStatusActive {
			records[i].Status = SessionStatusRevoked
			records[i].RevocationReason = reason
		}
	}
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Endpoints.BaseURL = "https://api.test"
	return cfg
}

func seedVault(t *testing.T, vault CredentialVault, access string, refresh string) {
	t.Helper()
	err := vault.Set(context.Background(), TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
	}, TokenTTLs{Access: time.Hour, Refresh: 24 * time.Hour})
	if err != nil {
		t.Fatalf("seed vault: %v", err)
	}
}

func mustGateway(
	t *testing.T,
	cfg Config,
	vault CredentialVault,
	transport TransportAdapter,
	refresher *RefreshCoordinator,
) *Gateway {
	t.Helper()
	gateway, err := NewGateway(cfg, vault, transport, refresher, nil, NopMetricsRecorder{})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return gateway
}

func mustCoordinator(
	t *testing.T,
	vault CredentialVault,
	renew RenewalFunc,
	opts ...RefreshCoordinatorOption,
) *RefreshCoordinator {
	t.Helper()
	coordinator, err := NewRefreshCoordinator(vault, renew, TokenTTLs{
		Access:  time.Hour,
		Refresh: 24 * time.Hour,
	}, opts...)
	if err != nil {
		t.Fatalf("new refresh coordinator: %v", err)
	}
	return coordinator
}
