//go:build integration

package migrations_test

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/getpup/ledger-migrator/pkg/migrations"
)

// execScript runs a generated migration statement by statement.
func execScript(t *testing.T, db *sql.DB, script string) {
	t.Helper()

	for _, stmt := range strings.Split(script, ";\n") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			if !strings.HasPrefix(strings.TrimSpace(line), "--") {
				lines = append(lines, line)
			}
		}
		stmt = strings.TrimSpace(strings.Join(lines, "\n"))
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to execute statement %q: %v", stmt, err)
		}
	}
}

func TestIntegrationSQLite(t *testing.T) {
	tmpDir := t.TempDir()
	config := migrations.Config{
		OutputFolder:   tmpDir,
		OutputFilename: "sqlite_integration.sql",
		CampaignsTable: "it_campaigns",
		OutcomesTable:  "it_outcomes",
	}

	if err := migrations.GenerateSQLite(&config); err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}

	script, err := os.ReadFile(filepath.Join(tmpDir, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read migration: %v", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	execScript(t, db, string(script))
	// Applying twice must be a no-op.
	execScript(t, db, string(script))

	if _, err := db.Exec(`INSERT INTO it_campaigns (id, kind, source_generation, state, started_at, last_heartbeat)
		VALUES ('c-1', 'migrate', 'order', 'running', datetime('now'), datetime('now'))`); err != nil {
		t.Fatalf("Failed to insert campaign: %v", err)
	}
}

func TestIntegrationPostgres(t *testing.T) {
	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping PostgreSQL integration test")
	}

	tmpDir := t.TempDir()
	config := migrations.Config{
		OutputFolder:   tmpDir,
		OutputFilename: "postgres_integration.sql",
		CampaignsTable: "it_campaigns",
		OutcomesTable:  "it_outcomes",
	}

	if err := migrations.GeneratePostgres(&config); err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}

	script, err := os.ReadFile(filepath.Join(tmpDir, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read migration: %v", err)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	_, _ = db.Exec("DROP TABLE IF EXISTS it_outcomes")
	_, _ = db.Exec("DROP TABLE IF EXISTS it_campaigns")
	defer func() {
		_, _ = db.Exec("DROP TABLE IF EXISTS it_outcomes")
		_, _ = db.Exec("DROP TABLE IF EXISTS it_campaigns")
	}()

	execScript(t, db, string(script))

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM information_schema.tables WHERE table_name IN ('it_campaigns', 'it_outcomes')`).Scan(&count); err != nil {
		t.Fatalf("Failed to query tables: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 tables, got %d", count)
	}
}
