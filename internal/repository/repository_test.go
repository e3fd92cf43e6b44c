package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/canopyops/portal/internal/db/bunx"
	"github.com/canopyops/portal/internal/db/models"
	"github.com/canopyops/portal/internal/migrations"
)

// setupTestDB opens a fresh in-memory SQLite database and applies the full
// migration set, so the repositories run against the same schema the server
// does.
func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := bunx.NewDB(":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	ctx := context.Background()
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	return db
}

func createTestPrincipal(t *testing.T, db *bun.DB, username string) *models.Principal {
	t.Helper()

	p := &models.Principal{
		Username: username,
		Email:    username + "@example.com",
		Role:     "customer",
	}
	require.NoError(t, NewBunPrincipalRepository(db).Create(context.Background(), p))
	return p
}

func createTestSession(t *testing.T, db *bun.DB, principalID, tokenHash string, expiresAt time.Time) *models.Session {
	t.Helper()

	s := &models.Session{
		PrincipalID:  principalID,
		TokenHash:    tokenHash,
		AccessToken:  "access-" + tokenHash,
		RefreshToken: "refresh-" + tokenHash,
		IDToken:      "id-" + tokenHash,
		ExpiresAt:    expiresAt,
	}
	require.NoError(t, NewBunSessionRepository(db).Create(context.Background(), s))
	return s
}
