package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-session/core"
	"github.com/uptrace/bun"
)

// SessionStore persists credential-pair versions. Saving a new version
// supersedes whatever active record the user had, so at most one active row
// exists per user at any time.
type SessionStore struct {
	db   *bun.DB
	repo repository.Repository[*sessionRecord]
}

func (s *SessionStore) SaveNewVersion(ctx context.Context, in core.SaveSessionInput) (core.StoredSession, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.StoredSession{}, fmt.Errorf("sqlstore: session store is not configured")
	}
	trimmedUserID := strings.TrimSpace(in.UserID)
	if trimmedUserID == "" {
		return core.StoredSession{}, fmt.Errorf("sqlstore: user id is required")
	}
	if strings.TrimSpace(in.Session.RefreshToken) == "" {
		return core.StoredSession{}, fmt.Errorf("sqlstore: refresh token is required")
	}

	status := in.Status
	if strings.TrimSpace(string(status)) == "" {
		status = core.SessionStatusActive
	}
	in.UserID = trimmedUserID
	in.Status = status
	now := time.Now().UTC()

	var created core.StoredSession
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		nextVersion, versionErr := s.nextVersion(ctx, tx, trimmedUserID)
		if versionErr != nil {
			return versionErr
		}

		if status == core.SessionStatusActive {
			revokeReason := "superseded"
			_, updateErr := tx.NewUpdate().
				Model((*sessionRecord)(nil)).
				Set("status = ?", string(core.SessionStatusRevoked)).
				Set("revocation_reason = ?", revokeReason).
				Set("updated_at = ?", now).
				Where("user_id = ?", trimmedUserID).
				Where("status = ?", string(core.SessionStatusActive)).
				Exec(ctx)
			if updateErr != nil {
				return updateErr
			}
		}

		record := newSessionRecord(in, nextVersion, now)
		inserted, createErr := s.repo.CreateTx(ctx, tx, record)
		if createErr != nil {
			return createErr
		}
		created = inserted.toDomain()
		return nil
	})
	if err != nil {
		return core.StoredSession{}, err
	}

	return created, nil
}

func (s *SessionStore) GetActiveByUser(ctx context.Context, userID string) (core.StoredSession, error) {
	if s == nil || s.repo == nil {
		return core.StoredSession{}, fmt.Errorf("sqlstore: session store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", strings.TrimSpace(userID)),
		repository.SelectBy("status", "=", string(core.SessionStatusActive)),
		repository.OrderBy("version DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.StoredSession{}, err
	}
	if len(records) == 0 {
		return core.StoredSession{}, fmt.Errorf("sqlstore: active session not found for user %q", userID)
	}
	return records[0].toDomain(), nil
}

func (s *SessionStore) RevokeActive(ctx context.Context, userID string, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: session store is not configured")
	}
	trimmedUserID := strings.TrimSpace(userID)
	if trimmedUserID == "" {
		return fmt.Errorf("sqlstore: user id is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "revoked"
	}

	_, err := s.db.NewUpdate().
		Model((*sessionRecord)(nil)).
		Set("status = ?", string(core.SessionStatusRevoked)).
		Set("revocation_reason = ?", reason).
		Set("updated_at = ?", time.Now().UTC()).
		Where("user_id = ?", trimmedUserID).
		Where("status = ?", string(core.SessionStatusActive)).
		Exec(ctx)
	return err
}

func (s *SessionStore) nextVersion(ctx context.Context, tx bun.Tx, userID string) (int, error) {
	var maxVersion int
	if err := tx.NewSelect().
		Model((*sessionRecord)(nil)).
		ColumnExpr("COALESCE(MAX(version), 0)").
		Where("?TableAlias.user_id = ?", userID).
		Scan(ctx, &maxVersion); err != nil {
		return 0, err
	}
	return maxVersion + 1, nil
}
