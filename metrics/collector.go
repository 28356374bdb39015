package metrics

import "sync"

// Collector wraps metrics and provides helper methods with pre-filled labels.
// It also remembers the latest state of every campaign it has seen, for /healthz.
type Collector struct {
	program string

	mu     sync.RWMutex
	states map[string]string
}

// NewCollector creates a new Collector for the given program identity.
func NewCollector(program string) *Collector {
	return &Collector{program: program, states: make(map[string]string)}
}

// Program returns the program label the collector reports under.
func (c *Collector) Program() string {
	return c.program
}

// CampaignStates returns the latest state of every campaign, keyed by campaign ID.
func (c *Collector) CampaignStates() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]string, len(c.states))
	for id, state := range c.states {
		result[id] = state
	}
	return result
}

// IncCampaigns increments the campaigns counter for a finished campaign.
func (c *Collector) IncCampaigns(kind, state string) {
	CampaignsTotal.WithLabelValues(c.program, kind, state).Inc()
}

// IncOutcomes increments the outcomes counter.
func (c *Collector) IncOutcomes(kind, outcome string) {
	OutcomesTotal.WithLabelValues(c.program, kind, outcome).Inc()
}

// IncSubmissions increments the submissions counter.
func (c *Collector) IncSubmissions(operation, status string) {
	SubmissionsTotal.WithLabelValues(c.program, operation, status).Inc()
}

// IncListRetries increments the listing retries counter.
func (c *Collector) IncListRetries(kind string) {
	ListRetriesTotal.WithLabelValues(c.program, kind).Inc()
}

// IncStepsInFlight increments the in-flight steps gauge.
func (c *Collector) IncStepsInFlight(kind string) {
	StepsInFlight.WithLabelValues(c.program, kind).Inc()
}

// DecStepsInFlight decrements the in-flight steps gauge.
func (c *Collector) DecStepsInFlight(kind string) {
	StepsInFlight.WithLabelValues(c.program, kind).Dec()
}

// SetCampaignState sets the campaign state gauge. Sets value to 1 for the given state, 0 for others.
func (c *Collector) SetCampaignState(campaignID string, state string) {
	c.mu.Lock()
	c.states[campaignID] = state
	c.mu.Unlock()

	states := []string{"pending", "running", "draining", "completed", "cancelled", "aborted"}
	for _, s := range states {
		if s == state {
			CampaignState.WithLabelValues(c.program, campaignID, s).Set(1)
		} else {
			CampaignState.WithLabelValues(c.program, campaignID, s).Set(0)
		}
	}
}

// ObserveStepDuration records a step duration observation.
func (c *Collector) ObserveStepDuration(operation string, seconds float64) {
	StepDuration.WithLabelValues(c.program, operation).Observe(seconds)
}

// ObserveCampaignDuration records a campaign duration observation.
func (c *Collector) ObserveCampaignDuration(kind string, seconds float64) {
	CampaignDuration.WithLabelValues(c.program, kind).Observe(seconds)
}

// ObserveHeartbeatLatency records a heartbeat latency observation.
func (c *Collector) ObserveHeartbeatLatency(seconds float64) {
	HeartbeatLatency.WithLabelValues(c.program).Observe(seconds)
}
