package core

import (
	"strings"
	"time"
)

const (
	DefaultExpiringSoonWindow = 5 * time.Minute
	DefaultRefreshLeadWindow  = 5 * time.Minute
)

// TokenState captures access/refresh lifecycle flags derived from a session.
type TokenState struct {
	AccessExpiresAt  *time.Time
	RefreshExpiresAt *time.Time
	HasAccessToken   bool
	HasRefreshToken  bool
	CanRenew         bool
	IsExpired        bool
	IsExpiringSoon   bool
}

// ResolveTokenState evaluates expiry and renewability flags for a session.
func ResolveTokenState(now time.Time, session Session, expiringSoonWindow time.Duration) TokenState {
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}
	if expiringSoonWindow <= 0 {
		expiringSoonWindow = DefaultExpiringSoonWindow
	}

	state := TokenState{
		HasAccessToken:  strings.TrimSpace(session.AccessToken) != "",
		HasRefreshToken: strings.TrimSpace(session.RefreshToken) != "",
	}
	if !session.RefreshExpiresAt.IsZero() {
		refreshExpiresAt := session.RefreshExpiresAt.UTC()
		state.RefreshExpiresAt = &refreshExpiresAt
		state.CanRenew = state.HasRefreshToken && refreshExpiresAt.After(now)
	} else {
		state.CanRenew = state.HasRefreshToken
	}
	if session.AccessExpiresAt.IsZero() {
		return state
	}
	accessExpiresAt := session.AccessExpiresAt.UTC()
	state.AccessExpiresAt = &accessExpiresAt
	if !accessExpiresAt.After(now) {
		state.IsExpired = true
		return state
	}
	state.IsExpiringSoon = !accessExpiresAt.After(now.Add(expiringSoonWindow))
	return state
}

// ShouldRenew returns true when renewal should run before the next
// authenticated dispatch.
func ShouldRenew(now time.Time, state TokenState, leadWindow time.Duration) bool {
	if !state.CanRenew {
		return false
	}
	if !state.HasAccessToken {
		return true
	}
	if state.AccessExpiresAt == nil {
		return false
	}
	if leadWindow <= 0 {
		leadWindow = DefaultRefreshLeadWindow
	}
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}
	return !state.AccessExpiresAt.UTC().After(now.Add(leadWindow))
}
