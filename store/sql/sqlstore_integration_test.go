package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-session/core"
	sessionmigrations "github.com/goliatone/go-session/migrations"
	sqlstore "github.com/goliatone/go-session/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-session-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"session_records",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "session_records" {
		t.Fatalf("expected session_records table, got %q", tableName)
	}
}

func TestSessionStore_EnforcesVersioningAndSingleActive(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}

	store := factory.SessionStore()
	if store == nil {
		t.Fatalf("expected session store from factory")
	}

	first, err := store.SaveNewVersion(ctx, core.SaveSessionInput{
		UserID: "u1",
		Session: core.Session{
			UserID:       "u1",
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			IssuedAt:     time.Now().UTC(),
		},
	})
	if err != nil {
		t.Fatalf("save first version: %v", err)
	}
	if first.Version != 1 || first.Status != core.SessionStatusActive {
		t.Fatalf("unexpected first version: %#v", first)
	}

	second, err := store.SaveNewVersion(ctx, core.SaveSessionInput{
		UserID: "u1",
		Session: core.Session{
			UserID:       "u1",
			AccessToken:  "access-2",
			RefreshToken: "refresh-2",
			IssuedAt:     time.Now().UTC(),
		},
	})
	if err != nil {
		t.Fatalf("save second version: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("expected version 2, got %d", second.Version)
	}

	active, err := store.GetActiveByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active.Version != 2 || active.Session.AccessToken != "access-2" {
		t.Fatalf("unexpected active session: %#v", active)
	}

	var supersededReason string
	if err := client.DB().NewRaw(
		"SELECT revocation_reason FROM session_records WHERE user_id = ? AND version = 1",
		"u1",
	).Scan(ctx, &supersededReason); err != nil {
		t.Fatalf("query superseded record: %v", err)
	}
	if supersededReason != "superseded" {
		t.Fatalf("expected first version to be superseded, got %q", supersededReason)
	}

	if err := store.RevokeActive(ctx, "u1", "logout"); err != nil {
		t.Fatalf("revoke active: %v", err)
	}
	if _, err := store.GetActiveByUser(ctx, "u1"); err == nil {
		t.Fatalf("expected no active session after revocation")
	}
}

func TestSessionStore_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.SessionStore()

	if _, err := store.SaveNewVersion(ctx, core.SaveSessionInput{
		Session: core.Session{RefreshToken: "refresh-1"},
	}); err == nil || !strings.Contains(err.Error(), "user id") {
		t.Fatalf("expected user id error, got %v", err)
	}
	if _, err := store.SaveNewVersion(ctx, core.SaveSessionInput{
		UserID:  "u1",
		Session: core.Session{AccessToken: "access-1"},
	}); err == nil || !strings.Contains(err.Error(), "refresh token") {
		t.Fatalf("expected refresh token error, got %v", err)
	}
}

func TestIdentityStore_UpsertAppliesLastWriterWins(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.IdentityStore()
	if store == nil {
		t.Fatalf("expected identity store from factory")
	}

	created, err := store.Upsert(ctx, core.Identity{
		ID:       "u1",
		Username: "ada",
		Role:     "member",
	})
	if err != nil {
		t.Fatalf("insert identity: %v", err)
	}
	if created.Role != "member" {
		t.Fatalf("unexpected created identity: %#v", created)
	}

	updated, err := store.Upsert(ctx, core.Identity{
		ID:           "u1",
		Username:     "ada",
		ProfileImage: "https://cdn.test/ada.png",
		Role:         "admin",
	})
	if err != nil {
		t.Fatalf("update identity: %v", err)
	}
	if updated.Role != "admin" || updated.ProfileImage != "https://cdn.test/ada.png" {
		t.Fatalf("unexpected updated identity: %#v", updated)
	}

	var rowCount int
	if err := client.DB().NewRaw(
		"SELECT COUNT(*) FROM session_identities WHERE user_id = ?",
		"u1",
	).Scan(ctx, &rowCount); err != nil {
		t.Fatalf("count identity rows: %v", err)
	}
	if rowCount != 1 {
		t.Fatalf("expected a single identity row, got %d", rowCount)
	}

	loaded, err := store.GetByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("get identity: %v", err)
	}
	if !loaded.Equal(updated) {
		t.Fatalf("unexpected loaded identity: %#v", loaded)
	}

	if err := store.Delete(ctx, "u1"); err != nil {
		t.Fatalf("delete identity: %v", err)
	}
	if _, err := store.GetByUser(ctx, "u1"); err == nil {
		t.Fatalf("expected identity to be gone after delete")
	}
}

func TestRepositoryFactory_ResolvesSupportedClients(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory := sqlstore.NewRepositoryFactory()
	provider, err := factory.BuildStores(client.DB())
	if err != nil {
		t.Fatalf("build stores from bun db: %v", err)
	}
	if provider.SessionStore() == nil || provider.IdentityStore() == nil {
		t.Fatalf("expected stores from provider")
	}

	if _, err := sqlstore.NewRepositoryFactory().BuildStores(42); err == nil {
		t.Fatalf("expected unsupported client error")
	}
	if _, err := sqlstore.NewRepositoryFactory().BuildStores(nil); err == nil {
		t.Fatalf("expected nil client error")
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:session-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = sessionmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != sessionmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, sessionmigrations.WithValidationTargets(sessionmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
