package session

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"

	"github.com/goliatone/go-session/adapters/gocommand"
	sessioncommand "github.com/goliatone/go-session/command"
	"github.com/goliatone/go-session/core"
	sessionquery "github.com/goliatone/go-session/query"
)

var _ CommandQueryService = (*core.Service)(nil)

type CommandQueryService interface {
	sessioncommand.MutatingService
	sessionquery.SessionReader
}

type Commands struct {
	Login         *sessioncommand.LoginCommand
	Register      *sessioncommand.RegisterCommand
	Logout        *sessioncommand.LogoutCommand
	Refresh       *sessioncommand.RefreshCommand
	SyncIdentity  *sessioncommand.SyncIdentityCommand
	FocusRegained *sessioncommand.FocusRegainedCommand
}

type Queries struct {
	CurrentUser    *sessionquery.CurrentUserQuery
	SessionState   *sessionquery.SessionStateQuery
	ActiveSession  *sessionquery.ActiveSessionQuery
	StoredIdentity *sessionquery.StoredIdentityQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	sessionReader  sessionquery.StoredSessionReader
	identityReader sessionquery.StoredIdentityReader
}

// WithStoredSessionReader wires the durable session store into the facade's
// active-session query.
func WithStoredSessionReader(reader sessionquery.StoredSessionReader) FacadeOption {
	return func(options *facadeOptions) {
		options.sessionReader = reader
	}
}

// WithStoredIdentityReader wires the shared identity store into the facade's
// stored-identity query.
func WithStoredIdentityReader(reader sessionquery.StoredIdentityReader) FacadeOption {
	return func(options *facadeOptions) {
		options.identityReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("session: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	sessionReader := cfg.sessionReader
	if sessionReader == nil {
		sessionReader, _ = service.(sessionquery.StoredSessionReader)
	}
	identityReader := cfg.identityReader
	if identityReader == nil {
		identityReader, _ = service.(sessionquery.StoredIdentityReader)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Login:         sessioncommand.NewLoginCommand(service),
		Register:      sessioncommand.NewRegisterCommand(service),
		Logout:        sessioncommand.NewLogoutCommand(service),
		Refresh:       sessioncommand.NewRefreshCommand(service),
		SyncIdentity:  sessioncommand.NewSyncIdentityCommand(service),
		FocusRegained: sessioncommand.NewFocusRegainedCommand(service),
	}
	facade.queries = Queries{
		CurrentUser:  sessionquery.NewCurrentUserQuery(service),
		SessionState: sessionquery.NewSessionStateQuery(service),
	}
	if sessionReader != nil {
		facade.queries.ActiveSession = sessionquery.NewActiveSessionQuery(sessionReader)
	}
	if identityReader != nil {
		facade.queries.StoredIdentity = sessionquery.NewStoredIdentityQuery(identityReader)
	}

	return facade, nil
}

// HandlerSubscriptions tracks the dispatcher subscriptions Attach created so
// a caller can tear the whole set down at once.
type HandlerSubscriptions struct {
	subs []commanddispatcher.Subscription
}

func (s *HandlerSubscriptions) Unsubscribe() {
	if s == nil {
		return
	}
	for _, sub := range s.subs {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
	s.subs = nil
}

// Attach registers every facade command and wired query with the go-command
// registry and subscribes them on the dispatcher, so callers can route
// session operations through gocommand.Dispatch and gocommand.Query.
func (f *Facade) Attach(adapter *gocommand.RegistryAdapter, runnerOpts ...runner.Option) (*HandlerSubscriptions, error) {
	if f == nil {
		return nil, fmt.Errorf("session: facade is nil")
	}
	if adapter == nil {
		return nil, fmt.Errorf("session: registry adapter is required")
	}

	bundle := &HandlerSubscriptions{}
	track := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			return err
		}
		bundle.subs = append(bundle.subs, sub)
		return nil
	}

	if err := track(gocommand.RegisterAndSubscribe(adapter, f.commands.Login, runnerOpts...)); err != nil {
		bundle.Unsubscribe()
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribe(adapter, f.commands.Register, runnerOpts...)); err != nil {
		bundle.Unsubscribe()
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribe(adapter, f.commands.Logout, runnerOpts...)); err != nil {
		bundle.Unsubscribe()
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribe(adapter, f.commands.Refresh, runnerOpts...)); err != nil {
		bundle.Unsubscribe()
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribe(adapter, f.commands.SyncIdentity, runnerOpts...)); err != nil {
		bundle.Unsubscribe()
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribe(adapter, f.commands.FocusRegained, runnerOpts...)); err != nil {
		bundle.Unsubscribe()
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribeQuery(adapter, f.queries.CurrentUser, runnerOpts...)); err != nil {
		bundle.Unsubscribe()
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribeQuery(adapter, f.queries.SessionState, runnerOpts...)); err != nil {
		bundle.Unsubscribe()
		return nil, err
	}
	if f.queries.ActiveSession != nil {
		if err := track(gocommand.RegisterAndSubscribeQuery(adapter, f.queries.ActiveSession, runnerOpts...)); err != nil {
			bundle.Unsubscribe()
			return nil, err
		}
	}
	if f.queries.StoredIdentity != nil {
		if err := track(gocommand.RegisterAndSubscribeQuery(adapter, f.queries.StoredIdentity, runnerOpts...)); err != nil {
			bundle.Unsubscribe()
			return nil, err
		}
	}

	return bundle, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
