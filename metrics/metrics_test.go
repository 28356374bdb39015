package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOutcomesTotal_Increment(t *testing.T) {
	before := testutil.ToFloat64(OutcomesTotal.WithLabelValues("test-prog", "migrate", "migrated"))
	OutcomesTotal.WithLabelValues("test-prog", "migrate", "migrated").Inc()
	after := testutil.ToFloat64(OutcomesTotal.WithLabelValues("test-prog", "migrate", "migrated"))

	assert.Equal(t, before+1, after)
}

func TestSubmissionsTotal_Increment(t *testing.T) {
	before := testutil.ToFloat64(SubmissionsTotal.WithLabelValues("test-prog-2", "remove", "confirmed"))
	SubmissionsTotal.WithLabelValues("test-prog-2", "remove", "confirmed").Inc()
	after := testutil.ToFloat64(SubmissionsTotal.WithLabelValues("test-prog-2", "remove", "confirmed"))

	assert.Equal(t, before+1, after)
}

func TestStepsInFlight_SetValue(t *testing.T) {
	StepsInFlight.WithLabelValues("test-prog-3", "sweep").Set(5)
	value := testutil.ToFloat64(StepsInFlight.WithLabelValues("test-prog-3", "sweep"))

	assert.Equal(t, float64(5), value)
}

func TestStepDuration_Observe(t *testing.T) {
	StepDuration.WithLabelValues("test-prog-4", "relocate").Observe(1.5)
	count := testutil.CollectAndCount(StepDuration)

	assert.Greater(t, count, 0)
}

func TestCampaignDuration_Observe(t *testing.T) {
	CampaignDuration.WithLabelValues("test-prog-5", "rename").Observe(30)
	count := testutil.CollectAndCount(CampaignDuration)

	assert.Greater(t, count, 0)
}
