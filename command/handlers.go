package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-session/core"
)

type MutatingService interface {
	Login(ctx context.Context, req core.LoginRequest) (core.AuthResponse, error)
	Register(ctx context.Context, req core.RegisterRequest) (core.AuthResponse, error)
	Logout(ctx context.Context) error
	Refresh(ctx context.Context) (core.TokenPair, error)
	SyncIdentity(ctx context.Context, userID string) (core.ReconcileResult, error)
	HandleFocusRegained(ctx context.Context) error
}

type LoginCommand struct {
	service MutatingService
}

func NewLoginCommand(service MutatingService) *LoginCommand {
	return &LoginCommand{service: service}
}

func (c *LoginCommand) Execute(ctx context.Context, msg LoginMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: login service is required")
	}
	out, err := c.service.Login(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RegisterCommand struct {
	service MutatingService
}

func NewRegisterCommand(service MutatingService) *RegisterCommand {
	return &RegisterCommand{service: service}
}

func (c *RegisterCommand) Execute(ctx context.Context, msg RegisterMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: register service is required")
	}
	out, err := c.service.Register(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type LogoutCommand struct {
	service MutatingService
}

func NewLogoutCommand(service MutatingService) *LogoutCommand {
	return &LogoutCommand{service: service}
}

func (c *LogoutCommand) Execute(ctx context.Context, _ LogoutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: logout service is required")
	}
	return c.service.Logout(ctx)
}

type RefreshCommand struct {
	service MutatingService
}

func NewRefreshCommand(service MutatingService) *RefreshCommand {
	return &RefreshCommand{service: service}
}

func (c *RefreshCommand) Execute(ctx context.Context, _ RefreshMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh service is required")
	}
	out, err := c.service.Refresh(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SyncIdentityCommand struct {
	service MutatingService
}

func NewSyncIdentityCommand(service MutatingService) *SyncIdentityCommand {
	return &SyncIdentityCommand{service: service}
}

func (c *SyncIdentityCommand) Execute(ctx context.Context, msg SyncIdentityMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: identity sync service is required")
	}
	out, err := c.service.SyncIdentity(ctx, msg.UserID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type FocusRegainedCommand struct {
	service MutatingService
}

func NewFocusRegainedCommand(service MutatingService) *FocusRegainedCommand {
	return &FocusRegainedCommand{service: service}
}

func (c *FocusRegainedCommand) Execute(ctx context.Context, _ FocusRegainedMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: focus service is required")
	}
	return c.service.HandleFocusRegained(ctx)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
