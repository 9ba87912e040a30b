package query

import (
	"context"

	"github.com/goliatone/go-session/core"
)

type SessionReader interface {
	CurrentUser(ctx context.Context) (core.Identity, error)
	SessionState(ctx context.Context) (core.TokenState, error)
}

type StoredSessionReader interface {
	GetActiveByUser(ctx context.Context, userID string) (core.StoredSession, error)
}

type StoredIdentityReader interface {
	GetByUser(ctx context.Context, userID string) (core.Identity, error)
}

type CurrentUserQuery struct {
	reader SessionReader
}

func NewCurrentUserQuery(reader SessionReader) *CurrentUserQuery {
	return &CurrentUserQuery{reader: reader}
}

func (q *CurrentUserQuery) Query(ctx context.Context, _ CurrentUserMessage) (core.Identity, error) {
	if q == nil || q.reader == nil {
		return core.Identity{}, queryDependencyError("query: session reader is required")
	}
	return q.reader.CurrentUser(ctx)
}

type SessionStateQuery struct {
	reader SessionReader
}

func NewSessionStateQuery(reader SessionReader) *SessionStateQuery {
	return &SessionStateQuery{reader: reader}
}

func (q *SessionStateQuery) Query(ctx context.Context, _ SessionStateMessage) (core.TokenState, error) {
	if q == nil || q.reader == nil {
		return core.TokenState{}, queryDependencyError("query: session reader is required")
	}
	return q.reader.SessionState(ctx)
}

type ActiveSessionQuery struct {
	reader StoredSessionReader
}

func NewActiveSessionQuery(reader StoredSessionReader) *ActiveSessionQuery {
	return &ActiveSessionQuery{reader: reader}
}

func (q *ActiveSessionQuery) Query(ctx context.Context, msg ActiveSessionMessage) (core.StoredSession, error) {
	if q == nil || q.reader == nil {
		return core.StoredSession{}, queryDependencyError("query: session store reader is required")
	}
	return q.reader.GetActiveByUser(ctx, msg.UserID)
}

type StoredIdentityQuery struct {
	reader StoredIdentityReader
}

func NewStoredIdentityQuery(reader StoredIdentityReader) *StoredIdentityQuery {
	return &StoredIdentityQuery{reader: reader}
}

func (q *StoredIdentityQuery) Query(ctx context.Context, msg StoredIdentityMessage) (core.Identity, error) {
	if q == nil || q.reader == nil {
		return core.Identity{}, queryDependencyError("query: identity store reader is required")
	}
	return q.reader.GetByUser(ctx, msg.UserID)
}
