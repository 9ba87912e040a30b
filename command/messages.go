package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-session/core"
)

const (
	TypeLogin        = "session.command.login"
	TypeRegister     = "session.command.register"
	TypeLogout       = "session.command.logout"
	TypeRefresh      = "session.command.refresh"
	TypeSyncIdentity = "session.command.identity.sync"
	TypeFocusRegain  = "session.command.focus.regained"
)

type LoginMessage struct {
	Request core.LoginRequest
}

func (LoginMessage) Type() string { return TypeLogin }

func (m LoginMessage) Validate() error {
	if strings.TrimSpace(m.Request.Username) == "" {
		return fmt.Errorf("command: username is required")
	}
	if m.Request.Password == "" {
		return fmt.Errorf("command: password is required")
	}
	return nil
}

type RegisterMessage struct {
	Request core.RegisterRequest
}

func (RegisterMessage) Type() string { return TypeRegister }

func (m RegisterMessage) Validate() error {
	if strings.TrimSpace(m.Request.Username) == "" {
		return fmt.Errorf("command: username is required")
	}
	if m.Request.Password == "" {
		return fmt.Errorf("command: password is required")
	}
	return nil
}

type LogoutMessage struct{}

func (LogoutMessage) Type() string { return TypeLogout }

func (LogoutMessage) Validate() error { return nil }

type RefreshMessage struct{}

func (RefreshMessage) Type() string { return TypeRefresh }

func (RefreshMessage) Validate() error { return nil }

type SyncIdentityMessage struct {
	UserID string
}

func (SyncIdentityMessage) Type() string { return TypeSyncIdentity }

func (m SyncIdentityMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("command: user id is required")
	}
	return nil
}

type FocusRegainedMessage struct{}

func (FocusRegainedMessage) Type() string { return TypeFocusRegain }

func (FocusRegainedMessage) Validate() error { return nil }
