package sqlstore

import (
	"fmt"
	"strings"
)

// TableConfig configures the table names used by the campaign store.
type TableConfig struct {
	// CampaignsTable is the name of the table storing campaign headers.
	CampaignsTable string

	// OutcomesTable is the name of the table storing per-record outcomes.
	OutcomesTable string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		CampaignsTable: "migrator_campaigns",
		OutcomesTable:  "migrator_outcomes",
	}
}

// Statements returns the DDL statements creating the campaign tables, one statement per entry.
func Statements(d Dialect, config TableConfig) []string {
	c, o := config.CampaignsTable, config.OutcomesTable

	switch d {
	case MySQL:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id VARCHAR(64) PRIMARY KEY,
    kind VARCHAR(32) NOT NULL,
    source_generation VARCHAR(255) NOT NULL,
    target_generation VARCHAR(255) NOT NULL DEFAULT '',
    state VARCHAR(32) NOT NULL,
    started_at DATETIME(6) NOT NULL,
    finished_at DATETIME(6) NULL,
    last_heartbeat DATETIME(6) NOT NULL,
    INDEX idx_%s_started (started_at),
    INDEX idx_%s_state (state)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`, c, c, c),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    campaign_id VARCHAR(64) NOT NULL,
    record_id VARCHAR(128) NOT NULL,
    owner VARCHAR(64) NOT NULL,
    record_key VARCHAR(64) NOT NULL,
    source_address VARCHAR(64) NOT NULL,
    kind VARCHAR(32) NOT NULL,
    new_address VARCHAR(64) NOT NULL DEFAULT '',
    receipt VARCHAR(128) NOT NULL DEFAULT '',
    reason TEXT NOT NULL,
    attempts INT NOT NULL DEFAULT 0,
    completed_at DATETIME(6) NOT NULL,
    PRIMARY KEY (campaign_id, record_id),
    INDEX idx_%s_kind (campaign_id, kind),
    FOREIGN KEY (campaign_id) REFERENCES %s(id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`, o, o, c),
		}
	case SQLite:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    source_generation TEXT NOT NULL,
    target_generation TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NULL,
    last_heartbeat TIMESTAMP NOT NULL
)`, c),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_started ON %s (started_at DESC)`, c, c),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    campaign_id TEXT NOT NULL REFERENCES %s(id),
    record_id TEXT NOT NULL,
    owner TEXT NOT NULL,
    record_key TEXT NOT NULL,
    source_address TEXT NOT NULL,
    kind TEXT NOT NULL,
    new_address TEXT NOT NULL DEFAULT '',
    receipt TEXT NOT NULL DEFAULT '',
    reason TEXT NOT NULL DEFAULT '',
    attempts INTEGER NOT NULL DEFAULT 0,
    completed_at TIMESTAMP NOT NULL,
    PRIMARY KEY (campaign_id, record_id)
)`, o, c),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_kind ON %s (campaign_id, kind)`, o, o),
		}
	default:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    source_generation TEXT NOT NULL,
    target_generation TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NULL,
    last_heartbeat TIMESTAMPTZ NOT NULL
)`, c),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_started ON %s (started_at DESC)`, c, c),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    campaign_id TEXT NOT NULL REFERENCES %s(id),
    record_id TEXT NOT NULL,
    owner TEXT NOT NULL,
    record_key TEXT NOT NULL,
    source_address TEXT NOT NULL,
    kind TEXT NOT NULL,
    new_address TEXT NOT NULL DEFAULT '',
    receipt TEXT NOT NULL DEFAULT '',
    reason TEXT NOT NULL DEFAULT '',
    attempts INTEGER NOT NULL DEFAULT 0,
    completed_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (campaign_id, record_id)
)`, o, c),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_kind ON %s (campaign_id, kind)`, o, o),
		}
	}
}

// MigrationUp returns the SQL script creating the campaign tables.
func MigrationUp(d Dialect, config TableConfig) string {
	return strings.Join(Statements(d, config), ";\n\n") + ";\n"
}

// MigrationDown returns the SQL script dropping the campaign tables.
// The outcomes table is dropped first due to the foreign key constraint.
func MigrationDown(d Dialect, config TableConfig) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;\n\nDROP TABLE IF EXISTS %s;\n", config.OutcomesTable, config.CampaignsTable)
}
