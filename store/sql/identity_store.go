package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-session/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// IdentityStore is the shared identity projection every tab of a profile
// reads. Writes apply last-writer-wins with no field merging.
type IdentityStore struct {
	db   *bun.DB
	repo repository.Repository[*identityRecord]
}

func (s *IdentityStore) Upsert(ctx context.Context, identity core.Identity) (core.Identity, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.Identity{}, fmt.Errorf("sqlstore: identity store is not configured")
	}
	identity.ID = strings.TrimSpace(identity.ID)
	identity.Username = strings.TrimSpace(identity.Username)
	if identity.ID == "" {
		return core.Identity{}, fmt.Errorf("sqlstore: user id is required")
	}
	if identity.Username == "" {
		return core.Identity{}, fmt.Errorf("sqlstore: username is required")
	}

	now := time.Now().UTC()
	var out core.Identity
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findIdentityTx(ctx, tx, identity.ID)
		if err != nil {
			return err
		}
		if record == nil {
			record = newIdentityRecord(identity, now)
			record.ID = uuid.NewString()
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			out = record.toDomain()
			return nil
		}

		record.Username = identity.Username
		record.ProfileImage = identity.ProfileImage
		record.Role = identity.Role
		record.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().
			Model(record).
			WherePK().
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Identity{}, err
	}
	return out, nil
}

func (s *IdentityStore) GetByUser(ctx context.Context, userID string) (core.Identity, error) {
	if s == nil || s.repo == nil {
		return core.Identity{}, fmt.Errorf("sqlstore: identity store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", strings.TrimSpace(userID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Identity{}, err
	}
	if len(records) == 0 {
		return core.Identity{}, fmt.Errorf("sqlstore: identity not found for user %q", userID)
	}
	return records[0].toDomain(), nil
}

func (s *IdentityStore) Delete(ctx context.Context, userID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: identity store is not configured")
	}
	trimmedUserID := strings.TrimSpace(userID)
	if trimmedUserID == "" {
		return fmt.Errorf("sqlstore: user id is required")
	}
	_, err := s.db.NewDelete().
		Model((*identityRecord)(nil)).
		Where("user_id = ?", trimmedUserID).
		Exec(ctx)
	return err
}

func findIdentityTx(ctx context.Context, tx bun.Tx, userID string) (*identityRecord, error) {
	record := &identityRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}
