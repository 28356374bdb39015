// Package migrations provides SQL migration generation for the campaign log tables.
// It writes the schema for campaign headers and per-record outcomes as migration files
// for PostgreSQL, MySQL/MariaDB, and SQLite, so the tables can be provisioned by an
// existing migration tool instead of by the migrator at startup.
package migrations
