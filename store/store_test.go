package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrator "github.com/getpup/ledger-migrator"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()
	m := NewMockCampaignStore()
	info := migrator.CampaignInfo{ID: "c-1", Kind: migrator.CampaignMigrate, State: migrator.CampaignStateCompleted}
	m.GetCampaignFunc = func(ctx context.Context, id string) (migrator.CampaignInfo, error) {
		return info, nil
	}
	m.ListOutcomesFunc = func(ctx context.Context, id string) ([]migrator.Outcome, error) {
		return []migrator.Outcome{
			{RecordID: "a", Kind: migrator.OutcomeMigrated},
			{RecordID: "b", Kind: migrator.OutcomeFailed},
		}, nil
	}

	c, err := Load(ctx, m, "c-1")

	require.NoError(t, err)
	assert.Equal(t, info, c.Info())
	assert.Equal(t, migrator.Summary{Total: 2, Migrated: 1, Failed: 1}, c.Summary())
	assert.Equal(t, []string{"c-1"}, m.GetCampaignCalls)
	assert.Equal(t, []string{"c-1"}, m.ListOutcomesCalls)
}

func TestLoad_NotFound(t *testing.T) {
	m := NewMockCampaignStore()

	_, err := Load(context.Background(), m, "missing")

	assert.ErrorIs(t, err, ErrCampaignNotFound)
	assert.Empty(t, m.ListOutcomesCalls)
}

func TestLoad_OutcomeError(t *testing.T) {
	m := NewMockCampaignStore()
	boom := errors.New("db down")
	m.GetCampaignFunc = func(ctx context.Context, id string) (migrator.CampaignInfo, error) {
		return migrator.CampaignInfo{ID: id}, nil
	}
	m.ListOutcomesFunc = func(ctx context.Context, id string) ([]migrator.Outcome, error) {
		return nil, boom
	}

	_, err := Load(context.Background(), m, "c-1")

	assert.ErrorIs(t, err, boom)
}

func TestMockCampaignStore_TracksCalls(t *testing.T) {
	ctx := context.Background()
	m := NewMockCampaignStore()

	require.NoError(t, m.CreateCampaign(ctx, migrator.CampaignInfo{ID: "c-1"}))
	require.NoError(t, m.UpdateCampaignState(ctx, "c-1", migrator.CampaignStateRunning))
	require.NoError(t, m.UpdateCampaignState(ctx, "c-1", migrator.CampaignStateCompleted))
	require.NoError(t, m.Heartbeat(ctx, "c-1"))
	require.NoError(t, m.AppendOutcome(ctx, "c-1", migrator.Outcome{RecordID: "a"}))

	assert.Len(t, m.CreateCampaignCalls, 1)
	assert.Equal(t, []migrator.CampaignState{migrator.CampaignStateRunning, migrator.CampaignStateCompleted}, m.States())
	assert.Equal(t, []string{"c-1"}, m.HeartbeatCalls)
	assert.Equal(t, 1, m.AppendedOutcomes())

	m.Reset()
	assert.Empty(t, m.States())
	assert.Equal(t, 0, m.AppendedOutcomes())
}
