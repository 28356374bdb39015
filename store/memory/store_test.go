package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrator "github.com/getpup/ledger-migrator"
	"github.com/getpup/ledger-migrator/store"
)

func newInfo(id string, startedAt time.Time) migrator.CampaignInfo {
	return migrator.CampaignInfo{
		ID:               id,
		Kind:             migrator.CampaignMigrate,
		SourceGeneration: "machine",
		TargetGeneration: "machine-new",
		State:            migrator.CampaignStatePending,
		StartedAt:        startedAt,
	}
}

func TestCreateCampaign(t *testing.T) {
	s := New()
	ctx := context.Background()
	info := newInfo("c-1", time.Now())

	require.NoError(t, s.CreateCampaign(ctx, info))

	got, err := s.GetCampaign(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, info.ID, got.ID)
	assert.Equal(t, migrator.CampaignStatePending, got.State)
	assert.False(t, got.LastHeartbeat.IsZero(), "heartbeat should be initialized")
}

func TestCreateCampaign_Duplicate(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateCampaign(ctx, newInfo("c-1", time.Now())))

	err := s.CreateCampaign(ctx, newInfo("c-1", time.Now()))

	assert.ErrorIs(t, err, store.ErrCampaignExists)
}

func TestGetCampaign_NotFound(t *testing.T) {
	s := New()

	_, err := s.GetCampaign(context.Background(), "missing")

	assert.ErrorIs(t, err, store.ErrCampaignNotFound)
}

func TestUpdateCampaignState(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateCampaign(ctx, newInfo("c-1", time.Now())))

	require.NoError(t, s.UpdateCampaignState(ctx, "c-1", migrator.CampaignStateRunning))
	got, err := s.GetCampaign(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, migrator.CampaignStateRunning, got.State)
	assert.True(t, got.FinishedAt.IsZero(), "non-terminal state must not set FinishedAt")

	require.NoError(t, s.UpdateCampaignState(ctx, "c-1", migrator.CampaignStateCompleted))
	got, err = s.GetCampaign(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, migrator.CampaignStateCompleted, got.State)
	assert.False(t, got.FinishedAt.IsZero(), "terminal state must set FinishedAt")
}

func TestUpdateCampaignState_NotFound(t *testing.T) {
	s := New()

	err := s.UpdateCampaignState(context.Background(), "missing", migrator.CampaignStateRunning)

	assert.ErrorIs(t, err, store.ErrCampaignNotFound)
}

func TestHeartbeat(t *testing.T) {
	s := New()
	ctx := context.Background()
	info := newInfo("c-1", time.Now())
	info.LastHeartbeat = time.Now().Add(-time.Hour)
	require.NoError(t, s.CreateCampaign(ctx, info))

	before := time.Now()
	require.NoError(t, s.Heartbeat(ctx, "c-1"))

	got, err := s.GetCampaign(ctx, "c-1")
	require.NoError(t, err)
	assert.False(t, got.LastHeartbeat.Before(before))

	assert.ErrorIs(t, s.Heartbeat(ctx, "missing"), store.ErrCampaignNotFound)
}

func TestAppendOutcome(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateCampaign(ctx, newInfo("c-1", time.Now())))

	err := s.AppendOutcome(ctx, "c-1", migrator.Outcome{
		RecordID: "b",
		Kind:     migrator.OutcomeFailed,
		Reason:   "boom",
		Err:      errors.New("boom"),
	})
	require.NoError(t, err)
	require.NoError(t, s.AppendOutcome(ctx, "c-1", migrator.Outcome{RecordID: "a", Kind: migrator.OutcomeMigrated}))

	outcomes, err := s.ListOutcomes(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "a", outcomes[0].RecordID)
	assert.Equal(t, "b", outcomes[1].RecordID)
	assert.Equal(t, "boom", outcomes[1].Reason)
	assert.Nil(t, outcomes[1].Err, "error classification is not persisted")
	assert.False(t, outcomes[0].CompletedAt.IsZero())
}

func TestAppendOutcome_IsAppendOnly(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateCampaign(ctx, newInfo("c-1", time.Now())))
	require.NoError(t, s.AppendOutcome(ctx, "c-1", migrator.Outcome{RecordID: "a", Kind: migrator.OutcomeMigrated}))

	err := s.AppendOutcome(ctx, "c-1", migrator.Outcome{RecordID: "a", Kind: migrator.OutcomeFailed})

	assert.ErrorIs(t, err, migrator.ErrOutcomeExists)
	outcomes, err := s.ListOutcomes(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, migrator.OutcomeMigrated, outcomes[0].Kind)
}

func TestAppendOutcome_UnknownCampaign(t *testing.T) {
	s := New()

	err := s.AppendOutcome(context.Background(), "missing", migrator.Outcome{RecordID: "a"})

	assert.ErrorIs(t, err, store.ErrCampaignNotFound)
}

func TestAppendOutcome_SameRecordInDifferentCampaigns(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateCampaign(ctx, newInfo("c-1", time.Now())))
	require.NoError(t, s.CreateCampaign(ctx, newInfo("c-2", time.Now())))

	require.NoError(t, s.AppendOutcome(ctx, "c-1", migrator.Outcome{RecordID: "a", Kind: migrator.OutcomeMigrated}))
	require.NoError(t, s.AppendOutcome(ctx, "c-2", migrator.Outcome{RecordID: "a", Kind: migrator.OutcomeSkippedAlreadyMigrated}))
}

func TestListCampaigns_NewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()
	require.NoError(t, s.CreateCampaign(ctx, newInfo("old", base.Add(-2*time.Hour))))
	require.NoError(t, s.CreateCampaign(ctx, newInfo("new", base)))
	require.NoError(t, s.CreateCampaign(ctx, newInfo("mid", base.Add(-time.Hour))))

	campaigns, err := s.ListCampaigns(ctx)

	require.NoError(t, err)
	require.Len(t, campaigns, 3)
	assert.Equal(t, "new", campaigns[0].ID)
	assert.Equal(t, "mid", campaigns[1].ID)
	assert.Equal(t, "old", campaigns[2].ID)
}

func TestListCampaigns_Empty(t *testing.T) {
	s := New()

	campaigns, err := s.ListCampaigns(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, campaigns)
	assert.Empty(t, campaigns)
}

func TestListOutcomes_UnknownCampaign(t *testing.T) {
	s := New()

	outcomes, err := s.ListOutcomes(context.Background(), "missing")

	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestLoad_RoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateCampaign(ctx, newInfo("c-1", time.Now())))
	require.NoError(t, s.AppendOutcome(ctx, "c-1", migrator.Outcome{RecordID: "a", Kind: migrator.OutcomeMigrated}))
	require.NoError(t, s.AppendOutcome(ctx, "c-1", migrator.Outcome{RecordID: "b", Kind: migrator.OutcomeSkippedAlreadyMigrated}))
	require.NoError(t, s.UpdateCampaignState(ctx, "c-1", migrator.CampaignStateCompleted))

	c, err := store.Load(ctx, s, "c-1")

	require.NoError(t, err)
	assert.True(t, c.Succeeded())
	assert.Equal(t, migrator.Summary{Total: 2, Migrated: 1, Skipped: 1}, c.Summary())
}

func TestConcurrentAppend(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateCampaign(ctx, newInfo("c-1", time.Now())))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.AppendOutcome(ctx, "c-1", migrator.Outcome{RecordID: fmt.Sprintf("rec-%02d", i), Kind: migrator.OutcomeMigrated})
			_ = s.Heartbeat(ctx, "c-1")
		}(i)
	}
	wg.Wait()

	outcomes, err := s.ListOutcomes(ctx, "c-1")
	require.NoError(t, err)
	assert.Len(t, outcomes, 20)
}
