package ledger

import (
	"context"
	"fmt"
	"sync"

	migrator "github.com/getpup/ledger-migrator"
)

// MockLedger is a configurable mock implementation of Ledger for use in tests.
// It allows setting up return values, tracking method calls and injecting errors.
type MockLedger struct {
	mu sync.Mutex

	// ListFunc is called by List if set.
	ListFunc func(ctx context.Context, tag migrator.NamespaceTag, page PageRequest) (Page, error)

	// GetFunc is called by Get if set.
	GetFunc func(ctx context.Context, addr migrator.Address) (migrator.Record, error)

	// LatestFinalityFunc is called by LatestFinality if set.
	LatestFinalityFunc func(ctx context.Context) (FinalityRef, error)

	// SubmitFunc is called by Submit if set.
	SubmitFunc func(ctx context.Context, req Request, ref FinalityRef) (Handle, error)

	// AwaitStatusFunc is called by AwaitStatus if set.
	AwaitStatusFunc func(ctx context.Context, h Handle) (Status, error)

	// Call tracking
	ListCalls           []ListCall
	GetCalls            []migrator.Address
	LatestFinalityCalls int
	SubmitCalls         []SubmitCall
	AwaitStatusCalls    []Handle
}

// ListCall records the parameters of a single List call.
type ListCall struct {
	Tag  migrator.NamespaceTag
	Page PageRequest
}

// SubmitCall records the parameters of a single Submit call.
type SubmitCall struct {
	Request  Request
	Finality FinalityRef
}

// Compile-time check that MockLedger implements Ledger.
var _ Ledger = (*MockLedger)(nil)

// NewMockLedger creates a new MockLedger with an empty call history.
func NewMockLedger() *MockLedger {
	return &MockLedger{}
}

// List implements Ledger. Defaults to an empty, exhausted page.
func (m *MockLedger) List(ctx context.Context, tag migrator.NamespaceTag, page PageRequest) (Page, error) {
	m.mu.Lock()
	m.ListCalls = append(m.ListCalls, ListCall{Tag: tag, Page: page})
	m.mu.Unlock()

	if m.ListFunc != nil {
		return m.ListFunc(ctx, tag, page)
	}
	return Page{}, nil
}

// Get implements Ledger. Defaults to migrator.ErrRecordNotFound.
func (m *MockLedger) Get(ctx context.Context, addr migrator.Address) (migrator.Record, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, addr)
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, addr)
	}
	return migrator.Record{}, migrator.ErrRecordNotFound
}

// LatestFinality implements Ledger. Defaults to a reference numbered by call count.
func (m *MockLedger) LatestFinality(ctx context.Context) (FinalityRef, error) {
	m.mu.Lock()
	m.LatestFinalityCalls++
	n := m.LatestFinalityCalls
	m.mu.Unlock()

	if m.LatestFinalityFunc != nil {
		return m.LatestFinalityFunc(ctx)
	}
	return FinalityRef{Hash: fmt.Sprintf("mock-hash-%d", n), LastValidHeight: uint64(n) * 150}, nil
}

// Submit implements Ledger. Defaults to a handle numbered by call count.
func (m *MockLedger) Submit(ctx context.Context, req Request, ref FinalityRef) (Handle, error) {
	m.mu.Lock()
	m.SubmitCalls = append(m.SubmitCalls, SubmitCall{Request: req, Finality: ref})
	n := len(m.SubmitCalls)
	m.mu.Unlock()

	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, req, ref)
	}
	return Handle{ID: fmt.Sprintf("mock-receipt-%d", n), Finality: ref}, nil
}

// AwaitStatus implements Ledger. Defaults to confirmed.
func (m *MockLedger) AwaitStatus(ctx context.Context, h Handle) (Status, error) {
	m.mu.Lock()
	m.AwaitStatusCalls = append(m.AwaitStatusCalls, h)
	m.mu.Unlock()

	if m.AwaitStatusFunc != nil {
		return m.AwaitStatusFunc(ctx, h)
	}
	return Status{State: StatusConfirmed}, nil
}

// SubmitCount returns the number of Submit calls.
func (m *MockLedger) SubmitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SubmitCalls)
}

// Reset clears the call history.
func (m *MockLedger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls = nil
	m.GetCalls = nil
	m.LatestFinalityCalls = 0
	m.SubmitCalls = nil
	m.AwaitStatusCalls = nil
}
