package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/getpup/ledger-migrator/store/sqlstore"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// validateIdentifier ensures an identifier contains only safe characters for SQL.
// Returns an error if the identifier contains characters that could be used for SQL injection.
func validateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// validateConfig validates all configuration values to prevent SQL injection.
func validateConfig(config *Config) error {
	if err := validateIdentifier(config.CampaignsTable, "CampaignsTable"); err != nil {
		return err
	}
	if err := validateIdentifier(config.OutcomesTable, "OutcomesTable"); err != nil {
		return err
	}
	if config.CampaignsTable == config.OutcomesTable {
		return fmt.Errorf("CampaignsTable and OutcomesTable must differ (got: %s)", config.CampaignsTable)
	}
	return nil
}

// Config configures migration generation for the campaign log tables.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// CampaignsTable is the name of the campaign header table
	CampaignsTable string

	// OutcomesTable is the name of the per-record outcome table
	OutcomesTable string
}

// DefaultConfig returns the default configuration for campaign log migrations.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	tables := sqlstore.DefaultTableConfig()
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_ledger_migrator.sql", timestamp),
		CampaignsTable: tables.CampaignsTable,
		OutcomesTable:  tables.OutcomesTable,
	}
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	return Generate(sqlstore.Postgres, config)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	return Generate(sqlstore.MySQL, config)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	return Generate(sqlstore.SQLite, config)
}

// Generate writes the migration file for the given dialect.
func Generate(d sqlstore.Dialect, config *Config) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := generateSQL(d, config)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

var databaseNames = map[sqlstore.Dialect]string{
	sqlstore.Postgres: "PostgreSQL",
	sqlstore.MySQL:    "MySQL/MariaDB",
	sqlstore.SQLite:   "SQLite",
}

func generateSQL(d sqlstore.Dialect, config *Config) string {
	tables := sqlstore.TableConfig{
		CampaignsTable: config.CampaignsTable,
		OutcomesTable:  config.OutcomesTable,
	}

	return fmt.Sprintf(`-- Ledger Migrator Campaign Log Migration
-- Generated: %s
-- Database: %s

-- %s holds one row per campaign: kind, generations, lifecycle state and heartbeat.
-- %s holds the append-only outcome log, one row per record per campaign.

%s`,
		time.Now().Format(time.RFC3339),
		databaseNames[d],
		config.CampaignsTable,
		config.OutcomesTable,
		sqlstore.MigrationUp(d, tables),
	)
}
