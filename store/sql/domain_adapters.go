package sqlstore

import (
	"time"

	"github.com/goliatone/go-session/core"
)

func newSessionRecord(in core.SaveSessionInput, version int, now time.Time) *sessionRecord {
	record := &sessionRecord{
		UserID:           in.UserID,
		Version:          version,
		Status:           string(in.Status),
		AccessToken:      in.Session.AccessToken,
		RefreshToken:     in.Session.RefreshToken,
		IssuedAt:         in.Session.IssuedAt,
		RevocationReason: "",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if !in.Session.AccessExpiresAt.IsZero() {
		accessExpiresAt := in.Session.AccessExpiresAt
		record.AccessExpiresAt = &accessExpiresAt
	}
	if !in.Session.RefreshExpiresAt.IsZero() {
		refreshExpiresAt := in.Session.RefreshExpiresAt
		record.RefreshExpiresAt = &refreshExpiresAt
	}
	return record
}

func (r *sessionRecord) toDomain() core.StoredSession {
	if r == nil {
		return core.StoredSession{}
	}
	stored := core.StoredSession{
		ID:      r.ID,
		UserID:  r.UserID,
		Version: r.Version,
		Status:  core.SessionStatus(r.Status),
		Session: core.Session{
			UserID:       r.UserID,
			AccessToken:  r.AccessToken,
			RefreshToken: r.RefreshToken,
			IssuedAt:     r.IssuedAt,
		},
		RevocationReason: r.RevocationReason,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.AccessExpiresAt != nil {
		stored.Session.AccessExpiresAt = *r.AccessExpiresAt
	}
	if r.RefreshExpiresAt != nil {
		stored.Session.RefreshExpiresAt = *r.RefreshExpiresAt
	}
	return stored
}

func newIdentityRecord(identity core.Identity, now time.Time) *identityRecord {
	return &identityRecord{
		UserID:       identity.ID,
		Username:     identity.Username,
		ProfileImage: identity.ProfileImage,
		Role:         identity.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (r *identityRecord) toDomain() core.Identity {
	if r == nil {
		return core.Identity{}
	}
	return core.Identity{
		ID:           r.UserID,
		Username:     r.Username,
		ProfileImage: r.ProfileImage,
		Role:         r.Role,
	}
}
