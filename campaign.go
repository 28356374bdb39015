package migrator

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Campaign is one end-to-end run over all records of a generation.
// The outcome log is append-only: each record receives exactly one outcome.
// Campaign is safe for concurrent use by the coordinator's workers.
type Campaign struct {
	mu       sync.RWMutex
	info     CampaignInfo
	outcomes map[string]Outcome
}

// NewCampaign creates a pending campaign with a fresh UUIDv7 identifier.
func NewCampaign(kind CampaignKind, source, target NamespaceTag) *Campaign {
	now := time.Now()
	return &Campaign{
		info: CampaignInfo{
			ID:               uuid.Must(uuid.NewV7()).String(),
			Kind:             kind,
			SourceGeneration: source,
			TargetGeneration: target,
			State:            CampaignStatePending,
			StartedAt:        now,
			LastHeartbeat:    now,
		},
		outcomes: make(map[string]Outcome),
	}
}

// RestoreCampaign rebuilds a campaign from persisted state.
// Duplicate outcomes are reported with ErrOutcomeExists.
func RestoreCampaign(info CampaignInfo, outcomes []Outcome) (*Campaign, error) {
	c := &Campaign{
		info:     info,
		outcomes: make(map[string]Outcome, len(outcomes)),
	}
	for _, o := range outcomes {
		if err := c.Record(o); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ID returns the campaign identifier.
func (c *Campaign) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info.ID
}

// Info returns a copy of the campaign header.
func (c *Campaign) Info() CampaignInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// State returns the current lifecycle state.
func (c *Campaign) State() CampaignState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info.State
}

// SetState transitions the campaign. Terminal states also stamp FinishedAt.
func (c *Campaign) SetState(state CampaignState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info.State = state
	if state.IsTerminal() {
		c.info.FinishedAt = time.Now()
	}
}

// Record appends the outcome for its record.
// Returns ErrOutcomeExists if the record already has an outcome; the log is never mutated.
func (c *Campaign) Record(o Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.outcomes[o.RecordID]; ok {
		return ErrOutcomeExists
	}
	if o.CompletedAt.IsZero() {
		o.CompletedAt = time.Now()
	}
	c.outcomes[o.RecordID] = o
	return nil
}

// Outcome returns the outcome recorded for recordID.
func (c *Campaign) Outcome(recordID string) (Outcome, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.outcomes[recordID]
	return o, ok
}

// Len returns the number of recorded outcomes.
func (c *Campaign) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.outcomes)
}

// Outcomes returns all outcomes ordered by record ID, independent of completion order.
func (c *Campaign) Outcomes() []Outcome {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]Outcome, 0, len(c.outcomes))
	for _, o := range c.outcomes {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].RecordID < result[j].RecordID
	})
	return result
}

// Failed returns the failed outcomes ordered by record ID.
func (c *Campaign) Failed() []Outcome {
	var failed []Outcome
	for _, o := range c.Outcomes() {
		if o.Kind == OutcomeFailed {
			failed = append(failed, o)
		}
	}
	return failed
}

// Summary counts outcomes by category.
func (c *Campaign) Summary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Summary{Total: len(c.outcomes)}
	for _, o := range c.outcomes {
		switch {
		case o.Kind == OutcomeMigrated:
			s.Migrated++
		case o.Kind == OutcomeRemoved:
			s.Removed++
		case o.Kind == OutcomeFailed:
			s.Failed++
		case o.Kind.IsSkip():
			s.Skipped++
		}
	}
	return s
}

// Succeeded reports whether the campaign completed and no record failed.
func (c *Campaign) Succeeded() bool {
	return c.State() == CampaignStateCompleted && c.Summary().Failed == 0
}
