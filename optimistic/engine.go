// Package optimistic applies client-state mutations ahead of their backend
// confirmation. Every run snapshots the entity, applies the local mutation,
// then settles against the remote outcome: canonical data on success, an exact
// rollback to the snapshot on failure.
package optimistic

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/goliatone/go-session/core"
)

type TicketStatus string

const (
	TicketPending    TicketStatus = "pending"
	TicketCommitted  TicketStatus = "committed"
	TicketRolledBack TicketStatus = "rolledback"
)

// Ticket tracks one optimistic run from local apply to settlement.
type Ticket struct {
	ID        string
	EntityID  string
	Status    TicketStatus
	CreatedAt time.Time
	SettledAt time.Time
	Reason    string
}

// StateStore is the client-visible state the engine mutates. Implementations
// must persist Set before returning; the rollback path depends on it.
type StateStore[T any] interface {
	Get(ctx context.Context, entityID string) (T, bool, error)
	Set(ctx context.Context, entityID string, value T) error
	Delete(ctx context.Context, entityID string) error
}

// RemoteAction confirms the mutation against the backend. When canonical is
// true the returned value is the server's copy and overwrites the optimistic
// one, so local and server state converge even when they disagree.
type RemoteAction[T any] func(ctx context.Context) (value T, canonical bool, err error)

type Result[T any] struct {
	Ticket Ticket
	Value  T
}

type Engine[T any] struct {
	store   StateStore[T]
	logger  core.Logger
	metrics core.MetricsRecorder

	mu      sync.Mutex
	entity  map[string]*sync.Mutex
	tickets map[string]Ticket
}

type EngineOption[T any] func(*Engine[T])

func WithLogger[T any](logger core.Logger) EngineOption[T] {
	return func(e *Engine[T]) {
		e.logger = logger
	}
}

func WithMetrics[T any](metrics core.MetricsRecorder) EngineOption[T] {
	return func(e *Engine[T]) {
		e.metrics = metrics
	}
}

func NewEngine[T any](store StateStore[T], opts ...EngineOption[T]) (*Engine[T], error) {
	if store == nil {
		return nil, fmt.Errorf("optimistic: state store is required")
	}
	engine := &Engine[T]{
		store:   store,
		logger:  glog.Nop(),
		metrics: core.NopMetricsRecorder{},
		entity:  make(map[string]*sync.Mutex),
		tickets: make(map[string]Ticket),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(engine)
	}
	return engine, nil
}

// Run applies mutate to the entity immediately, then settles against remote.
// The engine holds a per-entity lock for the whole apply-settle span, so
// callers never see two concurrent runs interleave on one entity even though
// the underlying contract leaves that gating to them. Runs against different
// entities do not block each other.
func (e *Engine[T]) Run(
	ctx context.Context,
	entityID string,
	mutate func(T) T,
	remote RemoteAction[T],
) (Result[T], error) {
	var zero Result[T]
	if e == nil {
		return zero, fmt.Errorf("optimistic: engine is nil")
	}
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return zero, fmt.Errorf("optimistic: entity id is required")
	}
	if mutate == nil {
		return zero, fmt.Errorf("optimistic: mutate func is required")
	}
	if remote == nil {
		return zero, fmt.Errorf("optimistic: remote action is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	lock := e.entityLock(entityID)
	lock.Lock()
	defer lock.Unlock()

	snapshot, existed, err := e.store.Get(ctx, entityID)
	if err != nil {
		return zero, core.NewStorageError("optimistic: snapshot entity", err)
	}

	optimistic := mutate(snapshot)
	if err := e.store.Set(ctx, entityID, optimistic); err != nil {
		return zero, core.NewStorageError("optimistic: apply local mutation", err)
	}

	ticket := Ticket{
		ID:        uuid.NewString(),
		EntityID:  entityID,
		Status:    TicketPending,
		CreatedAt: time.Now().UTC(),
	}
	e.saveTicket(ticket)
	e.metrics.IncCounter(ctx, "optimistic.run.total", 1, map[string]string{"entity_id": entityID})

	canonical, hasCanonical, remoteErr := remote(ctx)
	if remoteErr != nil {
		if rollbackErr := e.rollback(ctx, entityID, snapshot, existed); rollbackErr != nil {
			ticket = e.settle(ctx, ticket, TicketRolledBack, remoteErr.Error())
			return Result[T]{Ticket: ticket, Value: snapshot}, core.NewStorageError(
				"optimistic: rollback after remote failure", rollbackErr)
		}
		ticket = e.settle(ctx, ticket, TicketRolledBack, remoteErr.Error())
		e.logSettled(ctx, ticket)
		return Result[T]{Ticket: ticket, Value: snapshot}, remoteErr
	}

	value := optimistic
	if hasCanonical {
		// The server copy wins over the locally predicted one.
		if err := e.store.Set(ctx, entityID, canonical); err != nil {
			return zero, core.NewStorageError("optimistic: store canonical value", err)
		}
		value = canonical
	}
	ticket = e.settle(ctx, ticket, TicketCommitted, "")
	e.logSettled(ctx, ticket)
	return Result[T]{Ticket: ticket, Value: value}, nil
}

// Ticket reports a run that is still awaiting settlement. Settled tickets
// are discarded; their final state is only available from the Run result.
func (e *Engine[T]) Ticket(id string) (Ticket, bool) {
	if e == nil {
		return Ticket{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ticket, ok := e.tickets[strings.TrimSpace(id)]
	return ticket, ok
}

func (e *Engine[T]) rollback(ctx context.Context, entityID string, snapshot T, existed bool) error {
	if existed {
		return e.store.Set(ctx, entityID, snapshot)
	}
	return e.store.Delete(ctx, entityID)
}

func (e *Engine[T]) settle(ctx context.Context, ticket Ticket, status TicketStatus, reason string) Ticket {
	ticket.Status = status
	ticket.SettledAt = time.Now().UTC()
	ticket.Reason = reason
	e.dropTicket(ticket.ID)
	e.metrics.IncCounter(ctx, "optimistic.settled.total", 1, map[string]string{
		"entity_id": ticket.EntityID,
		"status":    string(status),
	})
	return ticket
}

func (e *Engine[T]) saveTicket(ticket Ticket) {
	e.mu.Lock()
	e.tickets[ticket.ID] = ticket
	e.mu.Unlock()
}

func (e *Engine[T]) dropTicket(id string) {
	e.mu.Lock()
	delete(e.tickets, id)
	e.mu.Unlock()
}

func (e *Engine[T]) entityLock(entityID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.entity[entityID]
	if !ok {
		lock = &sync.Mutex{}
		e.entity[entityID] = lock
	}
	return lock
}

func (e *Engine[T]) logSettled(ctx context.Context, ticket Ticket) {
	if e.logger == nil {
		return
	}
	logger := e.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Info("optimistic run settled",
		"ticket_id", ticket.ID,
		"entity_id", ticket.EntityID,
		"status", string(ticket.Status),
	)
}
