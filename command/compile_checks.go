package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[LoginMessage]         = (*LoginCommand)(nil)
	_ gocmd.Commander[RegisterMessage]      = (*RegisterCommand)(nil)
	_ gocmd.Commander[LogoutMessage]        = (*LogoutCommand)(nil)
	_ gocmd.Commander[RefreshMessage]       = (*RefreshCommand)(nil)
	_ gocmd.Commander[SyncIdentityMessage]  = (*SyncIdentityCommand)(nil)
	_ gocmd.Commander[FocusRegainedMessage] = (*FocusRegainedCommand)(nil)
)
