// Package testdb opens a migrated Postgres database for integration tests.
// Tests skip unless DATABASE_URL points at a disposable database.
package testdb

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/recaphq/recap-api/internal/platform/logger"
	"github.com/recaphq/recap-api/internal/platform/postgres"
	"github.com/stretchr/testify/require"
)

// TestTimeout bounds setup and cleanup queries.
const TestTimeout = 10 * time.Second

// tables are truncated between tests, children first.
var tables = []string{"avatar_tasks", "tasks", "coupon_redemptions", "credit_history", "credit_accounts"}

// URL returns the integration database URL, or "" when none is configured.
func URL() string {
	return os.Getenv("DATABASE_URL")
}

// Open connects to DATABASE_URL, applies every migration and empties the
// tables. The test is skipped when no database is configured.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := URL()
	if dbURL == "" {
		t.Skip("DATABASE_URL not set; skipping database test")
	}

	db, err := sql.Open("pgx", dbURL)
	require.NoError(t, err, "failed to open database")
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	require.NoError(t, db.PingContext(ctx), "failed to reach database")
	require.NoError(t, postgres.Migrate(ctx, db, logger.Discard(), "up"), "failed to migrate")

	Truncate(t, db)
	t.Cleanup(func() { Truncate(t, db) })
	return db
}

// Truncate removes every row written by the service.
func Truncate(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	for _, table := range tables {
		_, err := db.ExecContext(ctx, "TRUNCATE TABLE "+table+" CASCADE")
		require.NoError(t, err, "failed to truncate %s", table)
	}
}
