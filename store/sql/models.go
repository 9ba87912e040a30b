package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type sessionRecord struct {
	bun.BaseModel `bun:"table:session_records,alias:sr"`

	ID               string     `bun:"id,pk"`
	UserID           string     `bun:"user_id,notnull"`
	Version          int        `bun:"version,notnull"`
	Status           string     `bun:"status,notnull"`
	AccessToken      string     `bun:"access_token,notnull"`
	RefreshToken     string     `bun:"refresh_token,notnull"`
	IssuedAt         time.Time  `bun:"issued_at,nullzero"`
	AccessExpiresAt  *time.Time `bun:"access_expires_at,nullzero"`
	RefreshExpiresAt *time.Time `bun:"refresh_expires_at,nullzero"`
	RevocationReason string     `bun:"revocation_reason,notnull"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type identityRecord struct {
	bun.BaseModel `bun:"table:session_identities,alias:si"`

	ID           string    `bun:"id,pk"`
	UserID       string    `bun:"user_id,notnull,unique"`
	Username     string    `bun:"username,notnull"`
	ProfileImage string    `bun:"profile_image"`
	Role         string    `bun:"role,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
