// Command migrate-gen generates SQL migration files for the ledger migrator campaign log.
//
// Usage:
//
//	go run github.com/getpup/ledger-migrator/cmd/migrate-gen -output migrations -filename init.sql
//
// Or with go generate:
//
//	//go:generate go run github.com/getpup/ledger-migrator/cmd/migrate-gen -output migrations
//
// Generate migrations for different database adapters:
//
//	go run github.com/getpup/ledger-migrator/cmd/migrate-gen -adapter postgres -output migrations
//	go run github.com/getpup/ledger-migrator/cmd/migrate-gen -adapter mysql -output migrations
//	go run github.com/getpup/ledger-migrator/cmd/migrate-gen -adapter sqlite -output migrations
//
// Customize table names:
//
//	go run github.com/getpup/ledger-migrator/cmd/migrate-gen -campaigns-table campaigns -outcomes-table outcomes
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/getpup/ledger-migrator/pkg/migrations"
	"github.com/getpup/ledger-migrator/store/sqlstore"
)

func main() {
	defaults := migrations.DefaultConfig()

	var (
		adapter        = flag.String("adapter", "postgres", "Database adapter: postgres, mysql, or sqlite")
		outputFolder   = flag.String("output", defaults.OutputFolder, "Output folder for migration file")
		outputFilename = flag.String("filename", "", "Output filename (default: timestamp-based)")
		campaignsTable = flag.String("campaigns-table", defaults.CampaignsTable, "Name of campaigns table")
		outcomesTable  = flag.String("outcomes-table", defaults.OutcomesTable, "Name of outcomes table")
	)

	flag.Parse()

	config := defaults
	config.OutputFolder = *outputFolder
	config.CampaignsTable = *campaignsTable
	config.OutcomesTable = *outcomesTable

	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}

	dialect, err := sqlstore.ParseDialect(*adapter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: unsupported adapter '%s'. Supported adapters are: postgres, mysql, sqlite\n", *adapter)
		os.Exit(1)
	}

	if err := migrations.Generate(dialect, &config); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s migration: %s/%s\n", *adapter, config.OutputFolder, config.OutputFilename)
}
