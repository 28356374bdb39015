package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	migrator "github.com/getpup/ledger-migrator"
	"github.com/getpup/ledger-migrator/store"
)

// Store is an in-memory implementation of CampaignStore for testing and dry runs.
// It provides thread-safe access to campaign data using a sync.RWMutex.
type Store struct {
	mu        sync.RWMutex
	campaigns map[string]migrator.CampaignInfo       // campaignID -> header
	outcomes  map[string]map[string]migrator.Outcome // campaignID -> recordID -> outcome
}

// Compile-time check that Store implements CampaignStore.
var _ store.CampaignStore = (*Store)(nil)

// New creates a new in-memory store with initialized maps.
func New() *Store {
	return &Store{
		campaigns: make(map[string]migrator.CampaignInfo),
		outcomes:  make(map[string]map[string]migrator.Outcome),
	}
}

// CreateCampaign registers a new campaign.
// Returns store.ErrCampaignExists if the ID is already taken.
func (s *Store) CreateCampaign(ctx context.Context, info migrator.CampaignInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[info.ID]; ok {
		return store.ErrCampaignExists
	}

	if info.LastHeartbeat.IsZero() {
		info.LastHeartbeat = time.Now()
	}
	s.campaigns[info.ID] = info
	s.outcomes[info.ID] = make(map[string]migrator.Outcome)

	return nil
}

// UpdateCampaignState updates the state of a campaign.
// Terminal states stamp FinishedAt.
func (s *Store) UpdateCampaignState(ctx context.Context, campaignID string, state migrator.CampaignState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.campaigns[campaignID]
	if !ok {
		return store.ErrCampaignNotFound
	}

	info.State = state
	if state.IsTerminal() {
		info.FinishedAt = time.Now()
	}
	s.campaigns[campaignID] = info

	return nil
}

// Heartbeat updates the last heartbeat time for a campaign.
func (s *Store) Heartbeat(ctx context.Context, campaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.campaigns[campaignID]
	if !ok {
		return store.ErrCampaignNotFound
	}

	info.LastHeartbeat = time.Now()
	s.campaigns[campaignID] = info

	return nil
}

// AppendOutcome adds a record outcome to the campaign log.
// An existing outcome is never replaced.
func (s *Store) AppendOutcome(ctx context.Context, campaignID string, outcome migrator.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.outcomes[campaignID]
	if !ok {
		return store.ErrCampaignNotFound
	}

	if _, exists := log[outcome.RecordID]; exists {
		return migrator.ErrOutcomeExists
	}

	if outcome.CompletedAt.IsZero() {
		outcome.CompletedAt = time.Now()
	}
	// Err is process-local and is not kept, matching the SQL store.
	outcome.Err = nil
	log[outcome.RecordID] = outcome

	return nil
}

// GetCampaign returns a campaign header by ID.
func (s *Store) GetCampaign(ctx context.Context, campaignID string) (migrator.CampaignInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.campaigns[campaignID]
	if !ok {
		return migrator.CampaignInfo{}, store.ErrCampaignNotFound
	}

	return info, nil
}

// ListCampaigns returns all campaigns, most recently started first.
func (s *Store) ListCampaigns(ctx context.Context) ([]migrator.CampaignInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]migrator.CampaignInfo, 0, len(s.campaigns))
	for _, info := range s.campaigns {
		result = append(result, info)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	return result, nil
}

// ListOutcomes returns the outcome log of a campaign ordered by record ID.
func (s *Store) ListOutcomes(ctx context.Context, campaignID string) ([]migrator.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.outcomes[campaignID]
	if !ok {
		return []migrator.Outcome{}, nil
	}

	result := make([]migrator.Outcome, 0, len(log))
	for _, o := range log {
		result = append(result, o)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].RecordID < result[j].RecordID
	})

	return result, nil
}
