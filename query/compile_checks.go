package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-session/core"
)

var (
	_ gocmd.Querier[CurrentUserMessage, core.Identity]        = (*CurrentUserQuery)(nil)
	_ gocmd.Querier[SessionStateMessage, core.TokenState]     = (*SessionStateQuery)(nil)
	_ gocmd.Querier[ActiveSessionMessage, core.StoredSession] = (*ActiveSessionQuery)(nil)
	_ gocmd.Querier[StoredIdentityMessage, core.Identity]     = (*StoredIdentityQuery)(nil)
)
