package store

import (
	"context"
	"sync"

	migrator "github.com/getpup/ledger-migrator"
)

// MockCampaignStore is a configurable mock implementation of CampaignStore
// for use in tests. It allows setting up expected return values, tracking method
// calls, and injecting errors for testing error paths.
type MockCampaignStore struct {
	mu sync.RWMutex

	// CreateCampaignFunc is called by CreateCampaign if set.
	CreateCampaignFunc func(ctx context.Context, info migrator.CampaignInfo) error

	// UpdateCampaignStateFunc is called by UpdateCampaignState if set.
	UpdateCampaignStateFunc func(ctx context.Context, campaignID string, state migrator.CampaignState) error

	// HeartbeatFunc is called by Heartbeat if set.
	HeartbeatFunc func(ctx context.Context, campaignID string) error

	// AppendOutcomeFunc is called by AppendOutcome if set.
	AppendOutcomeFunc func(ctx context.Context, campaignID string, outcome migrator.Outcome) error

	// GetCampaignFunc is called by GetCampaign if set.
	GetCampaignFunc func(ctx context.Context, campaignID string) (migrator.CampaignInfo, error)

	// ListCampaignsFunc is called by ListCampaigns if set.
	ListCampaignsFunc func(ctx context.Context) ([]migrator.CampaignInfo, error)

	// ListOutcomesFunc is called by ListOutcomes if set.
	ListOutcomesFunc func(ctx context.Context, campaignID string) ([]migrator.Outcome, error)

	// Call tracking
	CreateCampaignCalls      []migrator.CampaignInfo
	UpdateCampaignStateCalls []UpdateCampaignStateCall
	HeartbeatCalls           []string
	AppendOutcomeCalls       []AppendOutcomeCall
	GetCampaignCalls         []string
	ListCampaignsCalls       int
	ListOutcomesCalls        []string
}

// Call tracking structs
type UpdateCampaignStateCall struct {
	CampaignID string
	State      migrator.CampaignState
}

type AppendOutcomeCall struct {
	CampaignID string
	Outcome    migrator.Outcome
}

// Compile-time check that MockCampaignStore implements CampaignStore.
var _ CampaignStore = (*MockCampaignStore)(nil)

// NewMockCampaignStore creates a new MockCampaignStore with initialized call tracking slices.
func NewMockCampaignStore() *MockCampaignStore {
	return &MockCampaignStore{
		CreateCampaignCalls:      []migrator.CampaignInfo{},
		UpdateCampaignStateCalls: []UpdateCampaignStateCall{},
		HeartbeatCalls:           []string{},
		AppendOutcomeCalls:       []AppendOutcomeCall{},
		GetCampaignCalls:         []string{},
		ListOutcomesCalls:        []string{},
	}
}

// CreateCampaign implements CampaignStore.
func (m *MockCampaignStore) CreateCampaign(ctx context.Context, info migrator.CampaignInfo) error {
	m.mu.Lock()
	m.CreateCampaignCalls = append(m.CreateCampaignCalls, info)
	m.mu.Unlock()

	if m.CreateCampaignFunc != nil {
		return m.CreateCampaignFunc(ctx, info)
	}
	return nil
}

// UpdateCampaignState implements CampaignStore.
func (m *MockCampaignStore) UpdateCampaignState(ctx context.Context, campaignID string, state migrator.CampaignState) error {
	m.mu.Lock()
	m.UpdateCampaignStateCalls = append(m.UpdateCampaignStateCalls, UpdateCampaignStateCall{
		CampaignID: campaignID,
		State:      state,
	})
	m.mu.Unlock()

	if m.UpdateCampaignStateFunc != nil {
		return m.UpdateCampaignStateFunc(ctx, campaignID, state)
	}
	return nil
}

// Heartbeat implements CampaignStore.
func (m *MockCampaignStore) Heartbeat(ctx context.Context, campaignID string) error {
	m.mu.Lock()
	m.HeartbeatCalls = append(m.HeartbeatCalls, campaignID)
	m.mu.Unlock()

	if m.HeartbeatFunc != nil {
		return m.HeartbeatFunc(ctx, campaignID)
	}
	return nil
}

// AppendOutcome implements CampaignStore.
func (m *MockCampaignStore) AppendOutcome(ctx context.Context, campaignID string, outcome migrator.Outcome) error {
	m.mu.Lock()
	m.AppendOutcomeCalls = append(m.AppendOutcomeCalls, AppendOutcomeCall{
		CampaignID: campaignID,
		Outcome:    outcome,
	})
	m.mu.Unlock()

	if m.AppendOutcomeFunc != nil {
		return m.AppendOutcomeFunc(ctx, campaignID, outcome)
	}
	return nil
}

// GetCampaign implements CampaignStore.
func (m *MockCampaignStore) GetCampaign(ctx context.Context, campaignID string) (migrator.CampaignInfo, error) {
	m.mu.Lock()
	m.GetCampaignCalls = append(m.GetCampaignCalls, campaignID)
	m.mu.Unlock()

	if m.GetCampaignFunc != nil {
		return m.GetCampaignFunc(ctx, campaignID)
	}
	return migrator.CampaignInfo{}, ErrCampaignNotFound
}

// ListCampaigns implements CampaignStore.
func (m *MockCampaignStore) ListCampaigns(ctx context.Context) ([]migrator.CampaignInfo, error) {
	m.mu.Lock()
	m.ListCampaignsCalls++
	m.mu.Unlock()

	if m.ListCampaignsFunc != nil {
		return m.ListCampaignsFunc(ctx)
	}
	return []migrator.CampaignInfo{}, nil
}

// ListOutcomes implements CampaignStore.
func (m *MockCampaignStore) ListOutcomes(ctx context.Context, campaignID string) ([]migrator.Outcome, error) {
	m.mu.Lock()
	m.ListOutcomesCalls = append(m.ListOutcomesCalls, campaignID)
	m.mu.Unlock()

	if m.ListOutcomesFunc != nil {
		return m.ListOutcomesFunc(ctx, campaignID)
	}
	return []migrator.Outcome{}, nil
}

// States returns the states passed to UpdateCampaignState, in call order.
func (m *MockCampaignStore) States() []migrator.CampaignState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	states := make([]migrator.CampaignState, len(m.UpdateCampaignStateCalls))
	for i, c := range m.UpdateCampaignStateCalls {
		states[i] = c.State
	}
	return states
}

// AppendedOutcomes returns the number of AppendOutcome calls.
func (m *MockCampaignStore) AppendedOutcomes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.AppendOutcomeCalls)
}

// Reset clears all call tracking data.
func (m *MockCampaignStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCampaignCalls = []migrator.CampaignInfo{}
	m.UpdateCampaignStateCalls = []UpdateCampaignStateCall{}
	m.HeartbeatCalls = []string{}
	m.AppendOutcomeCalls = []AppendOutcomeCall{}
	m.GetCampaignCalls = []string{}
	m.ListCampaignsCalls = 0
	m.ListOutcomesCalls = []string{}
}
