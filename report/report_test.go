package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrator "github.com/getpup/ledger-migrator"
)

var (
	started  = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	finished = time.Date(2024, 5, 1, 0, 5, 0, 0, time.UTC)
	decided  = time.Date(2024, 5, 1, 0, 1, 0, 0, time.UTC)
)

func fill(v byte) []byte {
	return bytes.Repeat([]byte{v}, 32)
}

func addr(v byte) migrator.Address {
	var a migrator.Address
	copy(a[:], fill(v))
	return a
}

func outcome(owner byte, key []byte, kind migrator.OutcomeKind, src, dst byte) migrator.Outcome {
	o := migrator.Outcome{
		Owner:       fill(owner),
		Key:         key,
		Source:      addr(src),
		Kind:        kind,
		NewAddress:  addr(dst),
		CompletedAt: decided,
	}
	o.RecordID = migrator.RecordID(o.Owner, o.Key)
	return o
}

func testCampaign(t *testing.T) *migrator.Campaign {
	t.Helper()

	migrated := outcome(1, []byte{0, 1}, migrator.OutcomeMigrated, 2, 3)
	migrated.Receipt = "5sig1"
	migrated.Attempts = 1

	skipped := outcome(1, []byte{0, 2}, migrator.OutcomeSkippedAlreadyMigrated, 4, 5)

	failed := outcome(6, []byte{0, 3}, migrator.OutcomeFailed, 7, 8)
	failed.Receipt = "5sig3"
	failed.Attempts = 3
	failed.Reason = "submission expired after 3 attempts"

	c, err := migrator.RestoreCampaign(migrator.CampaignInfo{
		ID:               "0190f1d2-7a3b-7c4d-8e5f-0123456789ab",
		Kind:             migrator.CampaignMigrate,
		SourceGeneration: "order",
		TargetGeneration: "order-new",
		State:            migrator.CampaignStateCompleted,
		StartedAt:        started,
		FinishedAt:       finished,
		LastHeartbeat:    finished,
	}, []migrator.Outcome{migrated, skipped, failed})
	require.NoError(t, err)
	return c
}

func testCampaigns() []migrator.CampaignInfo {
	return []migrator.CampaignInfo{
		{
			ID:               "0190f1d2-aaaa-7c4d-8e5f-0123456789ab",
			Kind:             migrator.CampaignSweep,
			SourceGeneration: "order",
			State:            migrator.CampaignStateRunning,
			StartedAt:        finished,
			LastHeartbeat:    finished,
		},
		{
			ID:               "0190f1d2-7a3b-7c4d-8e5f-0123456789ab",
			Kind:             migrator.CampaignMigrate,
			SourceGeneration: "order",
			TargetGeneration: "order-new",
			State:            migrator.CampaignStateCompleted,
			StartedAt:        started,
			FinishedAt:       finished,
			LastHeartbeat:    finished,
		},
	}
}

func testPlan() []migrator.PlannedStep {
	return []migrator.PlannedStep{
		{RecordID: migrator.RecordID(fill(1), []byte{0, 1}), Source: addr(2), Target: addr(3), Action: migrator.PlanMigrate},
		{RecordID: migrator.RecordID(fill(1), []byte{0, 2}), Source: addr(4), Target: addr(5), Action: migrator.PlanSkip, Reason: "target already holds the record"},
	}
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestWriteCampaign(t *testing.T) {
	for _, format := range []Format{FormatText, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteCampaign(&buf, format, testCampaign(t)))
			newGoldie(t).Assert(t, "campaign_"+string(format), buf.Bytes())
		})
	}
}

func TestWriteCampaigns(t *testing.T) {
	for _, format := range []Format{FormatText, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteCampaigns(&buf, format, testCampaigns()))
			newGoldie(t).Assert(t, "campaigns_"+string(format), buf.Bytes())
		})
	}
}

func TestWritePlan(t *testing.T) {
	for _, format := range []Format{FormatText, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WritePlan(&buf, format, migrator.CampaignMigrate, "order", "order-new", testPlan()))
			newGoldie(t).Assert(t, "plan_"+string(format), buf.Bytes())
		})
	}
}

func TestWriteCampaigns_Empty(t *testing.T) {
	var text, js bytes.Buffer

	require.NoError(t, WriteCampaigns(&text, FormatText, nil))
	require.NoError(t, WriteCampaigns(&js, FormatJSON, nil))

	assert.Equal(t, "no campaigns\n", text.String())
	assert.Equal(t, "[]\n", js.String())
}

func TestWritePlan_Empty(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WritePlan(&buf, FormatText, migrator.CampaignSweep, "order", "", nil))

	assert.Equal(t, "dry run: sweep order (0 records, nothing submitted)\n", buf.String())
}

func TestWriteCampaign_NoFailures(t *testing.T) {
	c := migrator.NewCampaign(migrator.CampaignSweep, "order", "")
	require.NoError(t, c.Record(migrator.Outcome{RecordID: "a/01", Kind: migrator.OutcomeRemoved}))

	var buf bytes.Buffer
	require.NoError(t, WriteCampaign(&buf, FormatText, c))

	assert.Contains(t, buf.String(), "generation  order\n")
	assert.Contains(t, buf.String(), "removed=1")
	assert.NotContains(t, buf.String(), "failed records")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("yaml")
	assert.Error(t, err)
}
