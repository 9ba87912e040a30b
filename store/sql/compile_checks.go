package sqlstore

import "github.com/goliatone/go-session/core"

var (
	_ core.SessionStore           = (*SessionStore)(nil)
	_ core.IdentityStore          = (*IdentityStore)(nil)
	_ core.IdentityStore          = (*CachedIdentityStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
