//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/getpup/ledger-migrator/store/sqlstore"
)

// getTestDB returns a database connection for integration tests.
// It reads the DATABASE_URL environment variable and skips the test if not set.
func getTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db, err := sqlstore.Open(sqlstore.Postgres, dbURL)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return db
}

// setupTables creates the campaign tables using the default configuration.
func setupTables(t *testing.T, db *sql.DB) *sqlstore.Store {
	t.Helper()

	s := sqlstore.New(db, sqlstore.Postgres)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to create tables: %v", err)
	}
	return s
}

// cleanupTables truncates the campaign tables to clean up test data.
// Errors are logged but don't fail the test (cleanup is best-effort).
func cleanupTables(t *testing.T, db *sql.DB) {
	t.Helper()

	config := sqlstore.DefaultTableConfig()

	// outcomes reference campaigns
	if _, err := db.Exec("TRUNCATE " + config.OutcomesTable + " CASCADE"); err != nil {
		t.Logf("warning: failed to truncate outcomes table: %v", err)
	}

	if _, err := db.Exec("TRUNCATE " + config.CampaignsTable + " CASCADE"); err != nil {
		t.Logf("warning: failed to truncate campaigns table: %v", err)
	}
}

// teardownTables drops the campaign tables using the default configuration.
// Errors are logged but don't fail the test.
func teardownTables(t *testing.T, db *sql.DB) {
	t.Helper()

	migrationSQL := sqlstore.MigrationDown(sqlstore.Postgres, sqlstore.DefaultTableConfig())
	if _, err := db.Exec(migrationSQL); err != nil {
		t.Logf("warning: failed to drop tables: %v", err)
	}
}
