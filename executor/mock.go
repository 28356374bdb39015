package executor

import (
	"context"
	"sync"

	migrator "github.com/getpup/ledger-migrator"
)

// MockRunner is a mock implementation of Runner for testing.
type MockRunner struct {
	mu sync.Mutex

	MigrateFunc func(ctx context.Context, rec migrator.Record, target migrator.NamespaceTag) migrator.Outcome
	RemoveFunc  func(ctx context.Context, rec migrator.Record) migrator.Outcome

	MigrateCalls []MigrateCall
	RemoveCalls  []migrator.Record
}

// MigrateCall records the parameters of a single Migrate call.
type MigrateCall struct {
	Record migrator.Record
	Target migrator.NamespaceTag
}

// Compile-time check that MockRunner implements Runner.
var _ Runner = (*MockRunner)(nil)

// NewMockRunner creates a new MockRunner with an empty call history.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		MigrateCalls: make([]MigrateCall, 0),
		RemoveCalls:  make([]migrator.Record, 0),
	}
}

// Migrate implements the Runner interface.
// It records the call parameters, then:
// - If MigrateFunc is set, calls and returns it
// - Otherwise, returns a Migrated outcome for the record
func (m *MockRunner) Migrate(ctx context.Context, rec migrator.Record, target migrator.NamespaceTag) migrator.Outcome {
	m.mu.Lock()
	m.MigrateCalls = append(m.MigrateCalls, MigrateCall{Record: rec, Target: target})
	m.mu.Unlock()

	if m.MigrateFunc != nil {
		return m.MigrateFunc(ctx, rec, target)
	}

	out := newOutcome(rec)
	out.Kind = migrator.OutcomeMigrated
	out.Receipt = "mock-receipt"
	out.Attempts = 1
	return out
}

// Remove implements the Runner interface.
// It records the call parameters, then:
// - If RemoveFunc is set, calls and returns it
// - Otherwise, returns a Removed outcome for the record
func (m *MockRunner) Remove(ctx context.Context, rec migrator.Record) migrator.Outcome {
	m.mu.Lock()
	m.RemoveCalls = append(m.RemoveCalls, rec)
	m.mu.Unlock()

	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, rec)
	}

	out := newOutcome(rec)
	out.Kind = migrator.OutcomeRemoved
	out.Receipt = "mock-receipt"
	out.Attempts = 1
	return out
}

// MigrateCount returns the number of Migrate calls.
func (m *MockRunner) MigrateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.MigrateCalls)
}

// RemoveCount returns the number of Remove calls.
func (m *MockRunner) RemoveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RemoveCalls)
}

// Reset clears the call history.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MigrateCalls = make([]MigrateCall, 0)
	m.RemoveCalls = make([]migrator.Record, 0)
}
