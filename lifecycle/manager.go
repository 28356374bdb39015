package lifecycle

import (
	"context"
	"time"

	"github.com/getpup/pupsourcing/es"

	migrator "github.com/getpup/ledger-migrator"
	"github.com/getpup/ledger-migrator/metrics"
	"github.com/getpup/ledger-migrator/store"
)

// Config holds configuration for the lifecycle Manager.
type Config struct {
	// Store persists the campaign header and outcome log (required).
	Store store.CampaignStore

	// HeartbeatInterval is the interval between heartbeats (default: 5s).
	HeartbeatInterval time.Duration

	// Logger is for observability (optional).
	Logger es.Logger

	// Metrics records campaign state and outcome counters (optional).
	Metrics *metrics.Collector
}

// Manager keeps a single campaign's in-memory log and its persisted copy in step.
// It heartbeats the campaign while it runs and records state transitions.
type Manager struct {
	config   Config
	campaign *migrator.Campaign
}

// New creates a new lifecycle Manager with the given configuration.
// Applies default values for HeartbeatInterval if not set.
func New(cfg Config) *Manager {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}

	return &Manager{
		config: cfg,
	}
}

// Register persists a new campaign and makes it the managed campaign.
func (m *Manager) Register(ctx context.Context, c *migrator.Campaign) error {
	info := c.Info()
	if err := m.config.Store.CreateCampaign(ctx, info); err != nil {
		return err
	}

	m.campaign = c

	if m.config.Metrics != nil {
		m.config.Metrics.SetCampaignState(info.ID, string(info.State))
	}

	if m.config.Logger != nil {
		m.config.Logger.Info(ctx, "campaign registered",
			"campaignID", info.ID,
			"kind", info.Kind,
			"source", info.SourceGeneration,
			"target", info.TargetGeneration)
	}

	return nil
}

// StartHeartbeat runs a heartbeat loop until the context is cancelled.
// Sends heartbeats at the configured interval and logs if a logger is provided.
func (m *Manager) StartHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(m.config.HeartbeatInterval)
	defer ticker.Stop()

	campaignID := m.CampaignID()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			start := time.Now()
			if err := m.config.Store.Heartbeat(ctx, campaignID); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if m.config.Logger != nil {
					m.config.Logger.Error(ctx, "heartbeat failed", "campaignID", campaignID, "error", err)
				}
				return err
			}

			if m.config.Metrics != nil {
				m.config.Metrics.ObserveHeartbeatLatency(time.Since(start).Seconds())
			}

			if m.config.Logger != nil {
				m.config.Logger.Debug(ctx, "heartbeat sent", "campaignID", campaignID)
			}
		}
	}
}

// UpdateState transitions the campaign and persists the new state.
// Terminal states also record campaign totals and duration.
func (m *Manager) UpdateState(ctx context.Context, state migrator.CampaignState) error {
	m.campaign.SetState(state)
	info := m.campaign.Info()

	if err := m.config.Store.UpdateCampaignState(ctx, info.ID, state); err != nil {
		return err
	}

	if m.config.Metrics != nil {
		m.config.Metrics.SetCampaignState(info.ID, string(state))
		if state.IsTerminal() {
			m.config.Metrics.IncCampaigns(string(info.Kind), string(state))
			m.config.Metrics.ObserveCampaignDuration(string(info.Kind), info.FinishedAt.Sub(info.StartedAt).Seconds())
		}
	}

	if m.config.Logger != nil {
		m.config.Logger.Info(ctx, "campaign state updated", "campaignID", info.ID, "state", state)
	}

	return nil
}

// RecordOutcome appends the outcome to the campaign log and persists it.
// Returns migrator.ErrOutcomeExists without touching the store if the record already has an outcome.
func (m *Manager) RecordOutcome(ctx context.Context, o migrator.Outcome) error {
	if err := m.campaign.Record(o); err != nil {
		return err
	}

	// Record stamps CompletedAt; persist the stamped copy.
	recorded, _ := m.campaign.Outcome(o.RecordID)
	if err := m.config.Store.AppendOutcome(ctx, m.campaign.ID(), recorded); err != nil {
		return err
	}

	if m.config.Metrics != nil {
		m.config.Metrics.IncOutcomes(string(m.campaign.Info().Kind), string(o.Kind))
	}

	return nil
}

// Campaign returns the managed campaign.
func (m *Manager) Campaign() *migrator.Campaign {
	return m.campaign
}

// GetCampaign returns the persisted campaign header from the store.
func (m *Manager) GetCampaign(ctx context.Context) (migrator.CampaignInfo, error) {
	return m.config.Store.GetCampaign(ctx, m.CampaignID())
}

// CampaignID returns the managed campaign's ID.
func (m *Manager) CampaignID() string {
	if m.campaign == nil {
		return ""
	}
	return m.campaign.ID()
}
