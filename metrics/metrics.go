package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CampaignsTotal tracks campaigns by kind and terminal state.
var CampaignsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ledger_migrator_campaigns_total",
		Help: "Total campaigns finished, by kind and terminal state",
	},
	[]string{"program", "kind", "state"},
)

// OutcomesTotal tracks recorded outcomes by kind.
var OutcomesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ledger_migrator_outcomes_total",
		Help: "Total record outcomes recorded",
	},
	[]string{"program", "kind", "outcome"},
)

// SubmissionsTotal tracks ledger submissions by operation and observed status.
var SubmissionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ledger_migrator_submissions_total",
		Help: "Total requests submitted to the ledger",
	},
	[]string{"program", "operation", "status"},
)

// ListRetriesTotal tracks record source restarts after a listing failure.
var ListRetriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ledger_migrator_list_retries_total",
		Help: "Total record listing retries",
	},
	[]string{"program", "kind"},
)

// StepsInFlight tracks the number of migration steps currently running.
var StepsInFlight = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "ledger_migrator_steps_in_flight",
		Help: "Current migration steps in flight",
	},
	[]string{"program", "kind"},
)

// CampaignState tracks campaign state (value 1 for current state, 0 otherwise).
var CampaignState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "ledger_migrator_campaign_state",
		Help: "Campaign state (1 for current state, 0 otherwise)",
	},
	[]string{"program", "campaign_id", "state"},
)

// StepDuration tracks the latency of a single record step, retries included.
var StepDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ledger_migrator_step_duration_seconds",
		Help:    "Time spent processing one record",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"program", "operation"},
)

// CampaignDuration tracks wall time of whole campaigns.
var CampaignDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ledger_migrator_campaign_duration_seconds",
		Help:    "Campaign wall time",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	},
	[]string{"program", "kind"},
)

// HeartbeatLatency tracks campaign heartbeat round-trip latency.
var HeartbeatLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ledger_migrator_heartbeat_latency_seconds",
		Help:    "Campaign heartbeat round-trip latency",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"program"},
)
