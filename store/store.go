package store

import (
	"context"

	migrator "github.com/getpup/ledger-migrator"
)

// CampaignStore persists campaign headers and their outcome logs.
// Implementations must be safe for concurrent access from multiple campaign workers.
type CampaignStore interface {
	// CreateCampaign registers a new campaign.
	CreateCampaign(ctx context.Context, info migrator.CampaignInfo) error

	// UpdateCampaignState updates the state of a campaign.
	// Terminal states also record the finish time.
	// Returns ErrCampaignNotFound if the campaign does not exist.
	UpdateCampaignState(ctx context.Context, campaignID string, state migrator.CampaignState) error

	// Heartbeat updates the last heartbeat time for a campaign.
	// Returns ErrCampaignNotFound if the campaign does not exist.
	Heartbeat(ctx context.Context, campaignID string) error

	// AppendOutcome adds a record outcome to the campaign log.
	// Returns migrator.ErrOutcomeExists if the record already has an outcome in this campaign.
	AppendOutcome(ctx context.Context, campaignID string, outcome migrator.Outcome) error

	// GetCampaign returns a campaign header by ID.
	// Returns ErrCampaignNotFound if the campaign does not exist.
	GetCampaign(ctx context.Context, campaignID string) (migrator.CampaignInfo, error)

	// ListCampaigns returns all campaigns, most recently started first.
	// Returns an empty slice if no campaigns exist.
	ListCampaigns(ctx context.Context) ([]migrator.CampaignInfo, error)

	// ListOutcomes returns the outcome log of a campaign ordered by record ID.
	// Returns an empty slice if the campaign has no outcomes.
	ListOutcomes(ctx context.Context, campaignID string) ([]migrator.Outcome, error)
}

// Load rebuilds a campaign with its full outcome log from the store.
func Load(ctx context.Context, s CampaignStore, campaignID string) (*migrator.Campaign, error) {
	info, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	outcomes, err := s.ListOutcomes(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	return migrator.RestoreCampaign(info, outcomes)
}
