package sqlstore

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/mr-tron/base58"

	migrator "github.com/getpup/ledger-migrator"
	"github.com/getpup/ledger-migrator/store"
)

// Store is a database/sql implementation of CampaignStore.
// It provides persistent storage for campaign headers and outcome logs.
type Store struct {
	db             *sql.DB
	dialect        Dialect
	campaignsTable string
	outcomesTable  string
}

// Compile-time check that Store implements CampaignStore.
var _ store.CampaignStore = (*Store)(nil)

// New creates a new store with default table names.
func New(db *sql.DB, d Dialect) *Store {
	return NewWithConfig(db, d, DefaultTableConfig())
}

// NewWithConfig creates a new store with custom table names.
func NewWithConfig(db *sql.DB, d Dialect, config TableConfig) *Store {
	return &Store{
		db:             db,
		dialect:        d,
		campaignsTable: config.CampaignsTable,
		outcomesTable:  config.OutcomesTable,
	}
}

// Migrate creates the campaign tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	config := TableConfig{CampaignsTable: s.campaignsTable, OutcomesTable: s.outcomesTable}
	for _, stmt := range Statements(s.dialect, config) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate campaign tables: %w", err)
		}
	}
	return nil
}

// CreateCampaign registers a new campaign.
// Returns store.ErrCampaignExists if the ID is already taken.
func (s *Store) CreateCampaign(ctx context.Context, info migrator.CampaignInfo) error {
	query := s.dialect.Rebind(fmt.Sprintf(`
		INSERT INTO %s (id, kind, source_generation, target_generation, state, started_at, finished_at, last_heartbeat)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.campaignsTable))

	startedAt := info.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	heartbeat := info.LastHeartbeat
	if heartbeat.IsZero() {
		heartbeat = startedAt
	}

	_, err := s.db.ExecContext(ctx, query,
		info.ID,
		string(info.Kind),
		string(info.SourceGeneration),
		string(info.TargetGeneration),
		string(info.State),
		startedAt.UTC(),
		nullTime(info.FinishedAt),
		heartbeat.UTC(),
	)
	if isUniqueViolation(err) {
		return store.ErrCampaignExists
	}
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// UpdateCampaignState updates the state of a campaign.
// Terminal states stamp finished_at.
// Returns store.ErrCampaignNotFound if the campaign does not exist.
func (s *Store) UpdateCampaignState(ctx context.Context, campaignID string, state migrator.CampaignState) error {
	var finishedAt sql.NullTime
	if state.IsTerminal() {
		finishedAt = nullTime(time.Now())
	}

	query := s.dialect.Rebind(fmt.Sprintf(`
		UPDATE %s
		SET state = ?, finished_at = ?
		WHERE id = ?
	`, s.campaignsTable))

	result, err := s.db.ExecContext(ctx, query, string(state), finishedAt, campaignID)
	if err != nil {
		return fmt.Errorf("failed to update campaign state: %w", err)
	}

	return s.checkAffected(ctx, result, campaignID)
}

// Heartbeat updates the last heartbeat time for a campaign.
// Returns store.ErrCampaignNotFound if the campaign does not exist.
func (s *Store) Heartbeat(ctx context.Context, campaignID string) error {
	query := s.dialect.Rebind(fmt.Sprintf(`
		UPDATE %s
		SET last_heartbeat = ?
		WHERE id = ?
	`, s.campaignsTable))

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), campaignID)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}

	return s.checkAffected(ctx, result, campaignID)
}

// AppendOutcome adds a record outcome to the campaign log.
// Returns migrator.ErrOutcomeExists if the record already has an outcome in this campaign
// and store.ErrCampaignNotFound if the campaign does not exist.
func (s *Store) AppendOutcome(ctx context.Context, campaignID string, outcome migrator.Outcome) error {
	if _, err := s.GetCampaign(ctx, campaignID); err != nil {
		return err
	}

	completedAt := outcome.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	var newAddress string
	if !outcome.NewAddress.IsZero() {
		newAddress = outcome.NewAddress.String()
	}

	query := s.dialect.Rebind(fmt.Sprintf(`
		INSERT INTO %s (campaign_id, record_id, owner, record_key, source_address, kind, new_address, receipt, reason, attempts, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.outcomesTable))

	_, err := s.db.ExecContext(ctx, query,
		campaignID,
		outcome.RecordID,
		outcome.Owner.String(),
		outcome.Key.String(),
		outcome.Source.String(),
		string(outcome.Kind),
		newAddress,
		outcome.Receipt,
		outcome.Reason,
		outcome.Attempts,
		completedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return migrator.ErrOutcomeExists
	}
	if err != nil {
		return fmt.Errorf("failed to append outcome: %w", err)
	}

	return nil
}

// GetCampaign returns a campaign header by ID.
// Returns store.ErrCampaignNotFound if the campaign does not exist.
func (s *Store) GetCampaign(ctx context.Context, campaignID string) (migrator.CampaignInfo, error) {
	query := s.dialect.Rebind(fmt.Sprintf(`
		SELECT id, kind, source_generation, target_generation, state, started_at, finished_at, last_heartbeat
		FROM %s
		WHERE id = ?
	`, s.campaignsTable))

	info, err := scanCampaign(s.db.QueryRowContext(ctx, query, campaignID))
	if errors.Is(err, sql.ErrNoRows) {
		return migrator.CampaignInfo{}, store.ErrCampaignNotFound
	}
	if err != nil {
		return migrator.CampaignInfo{}, fmt.Errorf("failed to get campaign: %w", err)
	}

	return info, nil
}

// ListCampaigns returns all campaigns, most recently started first.
func (s *Store) ListCampaigns(ctx context.Context) ([]migrator.CampaignInfo, error) {
	query := fmt.Sprintf(`
		SELECT id, kind, source_generation, target_generation, state, started_at, finished_at, last_heartbeat
		FROM %s
		ORDER BY started_at DESC, id DESC
	`, s.campaignsTable)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []migrator.CampaignInfo{}
	for rows.Next() {
		info, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}

	return campaigns, nil
}

// ListOutcomes returns the outcome log of a campaign ordered by record ID.
func (s *Store) ListOutcomes(ctx context.Context, campaignID string) ([]migrator.Outcome, error) {
	query := s.dialect.Rebind(fmt.Sprintf(`
		SELECT record_id, owner, record_key, source_address, kind, new_address, receipt, reason, attempts, completed_at
		FROM %s
		WHERE campaign_id = ?
		ORDER BY record_id
	`, s.outcomesTable))

	rows, err := s.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []migrator.Outcome{}
	for rows.Next() {
		var (
			o                                    migrator.Outcome
			owner, key, source, kind, newAddress string
		)
		if err := rows.Scan(
			&o.RecordID,
			&owner,
			&key,
			&source,
			&kind,
			&newAddress,
			&o.Receipt,
			&o.Reason,
			&o.Attempts,
			&o.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}

		o.Kind = migrator.OutcomeKind(kind)
		if err := decodeOutcomeKeys(&o, owner, key, source, newAddress); err != nil {
			return nil, fmt.Errorf("failed to decode outcome %q: %w", o.RecordID, err)
		}
		outcomes = append(outcomes, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}

	return outcomes, nil
}

// checkAffected maps an update that touched no rows to store.ErrCampaignNotFound.
// MySQL reports unchanged rows as unaffected, so existence is confirmed with a read.
func (s *Store) checkAffected(ctx context.Context, result sql.Result, campaignID string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	_, err = s.GetCampaign(ctx, campaignID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (migrator.CampaignInfo, error) {
	var (
		info                        migrator.CampaignInfo
		kind, source, target, state string
		finishedAt                  sql.NullTime
	)
	err := row.Scan(
		&info.ID,
		&kind,
		&source,
		&target,
		&state,
		&info.StartedAt,
		&finishedAt,
		&info.LastHeartbeat,
	)
	if err != nil {
		return migrator.CampaignInfo{}, err
	}

	info.Kind = migrator.CampaignKind(kind)
	info.SourceGeneration = migrator.NamespaceTag(source)
	info.TargetGeneration = migrator.NamespaceTag(target)
	info.State = migrator.CampaignState(state)
	if finishedAt.Valid {
		info.FinishedAt = finishedAt.Time
	}

	return info, nil
}

func decodeOutcomeKeys(o *migrator.Outcome, owner, key, source, newAddress string) error {
	var err error
	if owner != "" {
		if o.Owner, err = base58.Decode(owner); err != nil {
			return fmt.Errorf("owner: %w", err)
		}
	}
	if o.Key, err = hex.DecodeString(key); err != nil {
		return fmt.Errorf("key: %w", err)
	}
	if o.Source, err = decodeAddress(source); err != nil {
		return fmt.Errorf("source address: %w", err)
	}
	if o.NewAddress, err = decodeAddress(newAddress); err != nil {
		return fmt.Errorf("new address: %w", err)
	}
	return nil
}

func decodeAddress(s string) (migrator.Address, error) {
	var a migrator.Address
	if s == "" {
		return a, nil
	}
	b, err := base58.Decode(s)
	if err != nil {
		return a, err
	}
	if len(b) != migrator.AddressLength {
		return a, fmt.Errorf("%w: %d bytes", migrator.ErrInvalidKeyShape, len(b))
	}
	copy(a[:], b)
	return a, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// isUniqueViolation reports whether err is a primary key or unique constraint violation
// for any of the supported drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}

	return false
}
