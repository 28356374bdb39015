package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewCollector_CreatesCollectorWithProgram(t *testing.T) {
	collector := NewCollector("test-program")

	assert.NotNil(t, collector)
	assert.Equal(t, "test-program", collector.program)
}

func TestCollector_IncCampaigns(t *testing.T) {
	collector := NewCollector("test-prog-coll-1")

	before := testutil.ToFloat64(CampaignsTotal.WithLabelValues("test-prog-coll-1", "migrate", "completed"))
	collector.IncCampaigns("migrate", "completed")
	after := testutil.ToFloat64(CampaignsTotal.WithLabelValues("test-prog-coll-1", "migrate", "completed"))

	assert.Equal(t, before+1, after)
}

func TestCollector_IncOutcomes(t *testing.T) {
	collector := NewCollector("test-prog-coll-2")

	before := testutil.ToFloat64(OutcomesTotal.WithLabelValues("test-prog-coll-2", "sweep", "removed"))
	collector.IncOutcomes("sweep", "removed")
	after := testutil.ToFloat64(OutcomesTotal.WithLabelValues("test-prog-coll-2", "sweep", "removed"))

	assert.Equal(t, before+1, after)
}

func TestCollector_IncSubmissions(t *testing.T) {
	collector := NewCollector("test-prog-coll-3")

	before := testutil.ToFloat64(SubmissionsTotal.WithLabelValues("test-prog-coll-3", "relocate", "expired"))
	collector.IncSubmissions("relocate", "expired")
	after := testutil.ToFloat64(SubmissionsTotal.WithLabelValues("test-prog-coll-3", "relocate", "expired"))

	assert.Equal(t, before+1, after)
}

func TestCollector_IncListRetries(t *testing.T) {
	collector := NewCollector("test-prog-coll-4")

	before := testutil.ToFloat64(ListRetriesTotal.WithLabelValues("test-prog-coll-4", "rename"))
	collector.IncListRetries("rename")
	after := testutil.ToFloat64(ListRetriesTotal.WithLabelValues("test-prog-coll-4", "rename"))

	assert.Equal(t, before+1, after)
}

func TestCollector_StepsInFlight(t *testing.T) {
	collector := NewCollector("test-prog-coll-5")

	collector.IncStepsInFlight("migrate")
	collector.IncStepsInFlight("migrate")
	collector.DecStepsInFlight("migrate")
	value := testutil.ToFloat64(StepsInFlight.WithLabelValues("test-prog-coll-5", "migrate"))

	assert.Equal(t, float64(1), value)
}

func TestCollector_SetCampaignState(t *testing.T) {
	collector := NewCollector("test-prog-coll-6")

	collector.SetCampaignState("campaign-1", "running")

	runningValue := testutil.ToFloat64(CampaignState.WithLabelValues("test-prog-coll-6", "campaign-1", "running"))
	pendingValue := testutil.ToFloat64(CampaignState.WithLabelValues("test-prog-coll-6", "campaign-1", "pending"))

	assert.Equal(t, float64(1), runningValue)
	assert.Equal(t, float64(0), pendingValue)
}

func TestCollector_CampaignStates(t *testing.T) {
	collector := NewCollector("test-prog-coll-states")

	collector.SetCampaignState("campaign-1", "running")
	collector.SetCampaignState("campaign-1", "completed")
	states := collector.CampaignStates()
	states["campaign-1"] = "mutated"

	assert.Equal(t, map[string]string{"campaign-1": "completed"}, collector.CampaignStates())
	assert.Equal(t, "test-prog-coll-states", collector.Program())
}

func TestCollector_ObserveStepDuration(t *testing.T) {
	collector := NewCollector("test-prog-coll-7")

	collector.ObserveStepDuration("remove", 0.5)

	count := testutil.CollectAndCount(StepDuration)
	assert.Greater(t, count, 0)
}

func TestCollector_ObserveCampaignDuration(t *testing.T) {
	collector := NewCollector("test-prog-coll-8")

	collector.ObserveCampaignDuration("migrate", 12)

	count := testutil.CollectAndCount(CampaignDuration)
	assert.Greater(t, count, 0)
}

func TestCollector_ObserveHeartbeatLatency(t *testing.T) {
	collector := NewCollector("test-prog-coll-9")

	collector.ObserveHeartbeatLatency(0.1)

	count := testutil.CollectAndCount(HeartbeatLatency)
	assert.Greater(t, count, 0)
}
