package query

import (
	"fmt"
	"strings"
)

const (
	TypeCurrentUser    = "session.query.identity.current"
	TypeSessionState   = "session.query.state.resolve"
	TypeActiveSession  = "session.query.store.active"
	TypeStoredIdentity = "session.query.store.identity"
)

type CurrentUserMessage struct{}

func (CurrentUserMessage) Type() string { return TypeCurrentUser }

func (CurrentUserMessage) Validate() error { return nil }

type SessionStateMessage struct{}

func (SessionStateMessage) Type() string { return TypeSessionState }

func (SessionStateMessage) Validate() error { return nil }

type ActiveSessionMessage struct {
	UserID string
}

func (ActiveSessionMessage) Type() string { return TypeActiveSession }

func (m ActiveSessionMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("query: user id is required")
	}
	return nil
}

type StoredIdentityMessage struct {
	UserID string
}

func (StoredIdentityMessage) Type() string { return TypeStoredIdentity }

func (m StoredIdentityMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("query: user id is required")
	}
	return nil
}
