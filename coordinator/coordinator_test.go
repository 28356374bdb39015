package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrator "github.com/getpup/ledger-migrator"
	"github.com/getpup/ledger-migrator/address"
	"github.com/getpup/ledger-migrator/executor"
	"github.com/getpup/ledger-migrator/ledger"
	ledgermem "github.com/getpup/ledger-migrator/ledger/memory"
	"github.com/getpup/ledger-migrator/metrics"
	"github.com/getpup/ledger-migrator/signer"
	"github.com/getpup/ledger-migrator/source"
	"github.com/getpup/ledger-migrator/store"
	"github.com/getpup/ledger-migrator/store/memory"
)

// mockLogger captures log calls for testing
type mockLogger struct {
	mu    sync.Mutex
	calls []logCall
}

type logCall struct {
	level   string
	message string
	args    []interface{}
}

func (m *mockLogger) log(level, msg string, args []interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, logCall{level: level, message: msg, args: args})
}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...interface{}) {
	m.log("debug", msg, args)
}

func (m *mockLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	m.log("info", msg, args)
}

func (m *mockLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	m.log("error", msg, args)
}

func (m *mockLogger) messages(level string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []string
	for _, c := range m.calls {
		if c.level == level {
			result = append(result, c.message)
		}
	}
	return result
}

// scriptedSource replays one listing pass per List call; the last pass repeats.
type scriptedSource struct {
	mu     sync.Mutex
	passes []listPass
	calls  int
}

type listPass struct {
	records []migrator.Record
	err     error
}

func (s *scriptedSource) List(tag migrator.NamespaceTag) source.Iterator {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.passes[min(s.calls, len(s.passes)-1)]
	s.calls++
	return &sliceIterator{records: p.records, failErr: p.err}
}

func (s *scriptedSource) listCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type sliceIterator struct {
	records []migrator.Record
	failErr error
	i       int
	cur     migrator.Record
	err     error
}

func (it *sliceIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		it.err = err
		return false
	}
	if it.i < len(it.records) {
		it.cur = it.records[it.i]
		it.i++
		return true
	}
	it.err = it.failErr
	return false
}

func (it *sliceIterator) Record() migrator.Record { return it.cur }
func (it *sliceIterator) Err() error              { return it.err }
func (it *sliceIterator) Close() error            { return nil }

func testOwner(b byte) migrator.OwnerKey {
	o := make(migrator.OwnerKey, 32)
	o[31] = b
	return o
}

func testRecord(i int) migrator.Record {
	return migrator.Record{
		Address:    migrator.Address{byte(i), 0xee},
		Owner:      testOwner(byte(i)),
		Key:        migrator.RecordKey{byte(i)},
		Generation: "machine",
	}
}

func testRecords(n int) []migrator.Record {
	recs := make([]migrator.Record, n)
	for i := range recs {
		recs[i] = testRecord(i + 1)
	}
	return recs
}

var testProgram = migrator.Address{0x42}

// ledgerFixture wires the real executor and source over a simulated ledger.
type ledgerFixture struct {
	ledger *ledgermem.Ledger
	coord  *Coordinator
	store  *memory.Store
}

func newLedgerFixture(t *testing.T, cfg ledgermem.Config) ledgerFixture {
	t.Helper()
	kp, err := signer.Generate()
	require.NoError(t, err)

	cfg.Program = testProgram
	l := ledgermem.New(cfg)
	s := memory.New()
	coord := New(Config{
		Source: source.New(source.Config{Ledger: l, PageSize: 2}),
		Runner: executor.New(executor.Config{
			Ledger:  l,
			Deriver: address.NewDeriver(testProgram),
			Signer:  kp,
		}),
		Store: s,
	})
	return ledgerFixture{ledger: l, coord: coord, store: s}
}

func uuidKey(b byte) migrator.RecordKey {
	k := make(migrator.RecordKey, 16)
	for i := range k {
		k[i] = b
	}
	return k
}

func TestNew_AppliesDefaults(t *testing.T) {
	c := New(Config{})

	assert.Equal(t, 5, c.config.Concurrency)
	assert.Equal(t, 3, c.config.ListAttempts)
	assert.Equal(t, time.Second, c.config.ListBackoff)
	assert.Equal(t, 30*time.Second, c.config.MaxListBackoff)
	assert.NotNil(t, c.config.Store)
}

func TestRunCampaign_MigratesAndRerunSkips(t *testing.T) {
	f := newLedgerFixture(t, ledgermem.Config{RetainSources: true})
	var records []migrator.Record
	for i := byte(1); i <= 3; i++ {
		rec, err := f.ledger.Put("machine", testOwner(i), uuidKey(i), migrator.Payload{"disk": int64(i)})
		require.NoError(t, err)
		records = append(records, rec)
	}
	ctx := context.Background()

	campaign, err := f.coord.RunCampaign(ctx, "machine", "machine-new", 2)

	require.NoError(t, err)
	assert.Equal(t, migrator.CampaignStateCompleted, campaign.State())
	assert.True(t, campaign.Succeeded())
	require.Equal(t, 3, campaign.Len())
	for _, rec := range records {
		o, ok := campaign.Outcome(rec.ID())
		require.True(t, ok, "missing outcome for %s", rec.ID())
		assert.Equal(t, migrator.OutcomeMigrated, o.Kind)
		expected, _, err := address.Derive("machine-new", rec.Owner, rec.Key, testProgram)
		require.NoError(t, err)
		assert.Equal(t, expected, o.NewAddress)
		assert.NotEmpty(t, o.Receipt)
	}

	height := f.ledger.Height()

	rerun, err := f.coord.RunCampaign(ctx, "machine", "machine-new", 2)

	require.NoError(t, err)
	assert.Equal(t, migrator.Summary{Total: 3, Skipped: 3}, rerun.Summary())
	for _, o := range rerun.Outcomes() {
		assert.Equal(t, migrator.OutcomeSkippedAlreadyMigrated, o.Kind)
	}
	assert.Equal(t, height, f.ledger.Height(), "rerun must not submit any request")
	assert.NotEqual(t, campaign.ID(), rerun.ID())
}

func TestRunCampaign_EmptyGeneration(t *testing.T) {
	f := newLedgerFixture(t, ledgermem.Config{})

	campaign, err := f.coord.RunCampaign(context.Background(), "order", "order-new", 0)

	require.NoError(t, err)
	assert.Equal(t, 0, campaign.Len())
	assert.True(t, campaign.Succeeded())
}

func TestRunCampaign_PartialFailureIndependence(t *testing.T) {
	f := newLedgerFixture(t, ledgermem.Config{})
	a, err := f.ledger.Put("order", testOwner(1), uuidKey(1), nil)
	require.NoError(t, err)
	b, err := f.ledger.Put("order", testOwner(2), uuidKey(2), nil)
	require.NoError(t, err)
	f.ledger.RejectFunc = func(req ledger.Request) string {
		if req.Source.Address == a.Address {
			return "InvalidOrderStatus"
		}
		return ""
	}

	campaign, err := f.coord.RunCampaign(context.Background(), "order", "order-new", 2)

	require.NoError(t, err, "per-record failures never fail the campaign")
	assert.Equal(t, migrator.CampaignStateCompleted, campaign.State())
	assert.False(t, campaign.Succeeded())

	failed, ok := campaign.Outcome(a.ID())
	require.True(t, ok)
	assert.Equal(t, migrator.OutcomeFailed, failed.Kind)
	assert.Equal(t, "rejected: InvalidOrderStatus", failed.Reason)
	assert.ErrorIs(t, failed.Err, migrator.ErrRejected)

	migrated, ok := campaign.Outcome(b.ID())
	require.True(t, ok)
	assert.Equal(t, migrator.OutcomeMigrated, migrated.Kind)
}

func TestRunCampaign_InvalidGenerations(t *testing.T) {
	c := New(Config{Source: &scriptedSource{}, Runner: executor.NewMockRunner()})
	ctx := context.Background()

	_, err := c.RunCampaign(ctx, "machine", "machine", 1)
	assert.ErrorIs(t, err, migrator.ErrSameGeneration)

	_, err = c.RunCampaign(ctx, "", "machine-new", 1)
	assert.ErrorIs(t, err, migrator.ErrInvalidGeneration)

	_, err = c.RunRenameCampaign(ctx, "machine-new", "", 1)
	assert.ErrorIs(t, err, migrator.ErrInvalidGeneration)
}

func TestRunCampaign_BoundedConcurrency(t *testing.T) {
	tests := []struct {
		name        string
		configured  int
		requested   int
		wantAtMost  int32
		recordCount int
	}{
		{name: "explicit limit", configured: 10, requested: 3, wantAtMost: 3, recordCount: 20},
		{name: "default limit", configured: 2, requested: 0, wantAtMost: 2, recordCount: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inFlight, peak atomic.Int32
			runner := executor.NewMockRunner()
			runner.MigrateFunc = func(ctx context.Context, rec migrator.Record, target migrator.NamespaceTag) migrator.Outcome {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return migrator.Outcome{RecordID: rec.ID(), Kind: migrator.OutcomeMigrated}
			}

			c := New(Config{
				Source:      &scriptedSource{passes: []listPass{{records: testRecords(tt.recordCount)}}},
				Runner:      runner,
				Concurrency: tt.configured,
			})

			campaign, err := c.RunCampaign(context.Background(), "machine", "machine-new", tt.requested)

			require.NoError(t, err)
			assert.Equal(t, tt.recordCount, campaign.Len())
			assert.Equal(t, tt.recordCount, runner.MigrateCount())
			assert.LessOrEqual(t, peak.Load(), tt.wantAtMost)
			assert.Equal(t, int32(0), inFlight.Load(), "every step must be joined before return")
		})
	}
}

func TestRunCampaign_ListingRetryDoesNotRedispatch(t *testing.T) {
	all := testRecords(4)
	src := &scriptedSource{passes: []listPass{
		{records: all[:2], err: fmt.Errorf("%w: connection reset", migrator.ErrSourceUnavailable)},
		{records: all},
	}}
	runner := executor.NewMockRunner()
	logger := &mockLogger{}
	collector := metrics.NewCollector("coordinator-retry-test")
	c := New(Config{
		Source:      src,
		Runner:      runner,
		ListBackoff: time.Millisecond,
		Logger:      logger,
		Metrics:     collector,
	})

	campaign, err := c.RunCampaign(context.Background(), "machine", "machine-new", 2)

	require.NoError(t, err)
	assert.Equal(t, 2, src.listCalls())
	assert.Equal(t, 4, campaign.Len())
	assert.Equal(t, 4, runner.MigrateCount(), "records from the failed pass are not dispatched again")
	assert.Contains(t, logger.messages("error"), "listing failed, retrying")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ListRetriesTotal.WithLabelValues("coordinator-retry-test", "migrate")))
}

func TestRunCampaign_ListingExhaustedAborts(t *testing.T) {
	src := &scriptedSource{passes: []listPass{
		{records: testRecords(1), err: fmt.Errorf("%w: timeout", migrator.ErrSourceUnavailable)},
	}}
	mockStore := store.NewMockCampaignStore()
	c := New(Config{
		Source:       src,
		Runner:       executor.NewMockRunner(),
		Store:        mockStore,
		ListAttempts: 2,
		ListBackoff:  time.Millisecond,
	})

	campaign, err := c.RunCampaign(context.Background(), "machine", "machine-new", 1)

	require.Error(t, err)
	assert.ErrorIs(t, err, migrator.ErrSourceUnavailable)
	require.NotNil(t, campaign, "the partial campaign is returned")
	assert.Equal(t, migrator.CampaignStateAborted, campaign.State())
	assert.Equal(t, 1, campaign.Len())
	assert.Equal(t, 2, src.listCalls())
	assert.Equal(t, []migrator.CampaignState{
		migrator.CampaignStateRunning,
		migrator.CampaignStateDraining,
		migrator.CampaignStateAborted,
	}, mockStore.States())
}

func TestRunCampaign_NonRetryableListingError(t *testing.T) {
	boom := errors.New("malformed page")
	src := &scriptedSource{passes: []listPass{{err: boom}}}
	c := New(Config{Source: src, Runner: executor.NewMockRunner(), ListBackoff: time.Millisecond})

	campaign, err := c.RunCampaign(context.Background(), "machine", "machine-new", 1)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, src.listCalls())
	assert.Equal(t, migrator.CampaignStateAborted, campaign.State())
}

func TestRunCampaign_UnsupportedGenerationIsNotRetried(t *testing.T) {
	mock := ledger.NewMockLedger()
	mock.ListFunc = func(ctx context.Context, tag migrator.NamespaceTag, page ledger.PageRequest) (ledger.Page, error) {
		return ledger.Page{}, fmt.Errorf("%w: %q", migrator.ErrUnsupportedGeneration, tag)
	}
	c := New(Config{
		Source:       source.New(source.Config{Ledger: mock}),
		Runner:       executor.NewMockRunner(),
		ListAttempts: 3,
		ListBackoff:  time.Millisecond,
	})

	campaign, err := c.RunCampaign(context.Background(), "dataset", "dataset-new", 1)

	assert.ErrorIs(t, err, migrator.ErrUnsupportedGeneration)
	assert.NotErrorIs(t, err, migrator.ErrSourceUnavailable)
	assert.Len(t, mock.ListCalls, 1)
	require.NotNil(t, campaign)
	assert.Equal(t, migrator.CampaignStateAborted, campaign.State())
}

func TestRunCampaign_Cancellation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	runner := executor.NewMockRunner()
	runner.MigrateFunc = func(ctx context.Context, rec migrator.Record, target migrator.NamespaceTag) migrator.Outcome {
		close(started)
		<-release
		return migrator.Outcome{RecordID: rec.ID(), Kind: migrator.OutcomeMigrated}
	}

	draining := make(chan struct{})
	mockStore := store.NewMockCampaignStore()
	mockStore.UpdateCampaignStateFunc = func(ctx context.Context, id string, state migrator.CampaignState) error {
		if state == migrator.CampaignStateDraining {
			close(draining)
		}
		return nil
	}

	records := testRecords(3)
	c := New(Config{
		Source: &scriptedSource{passes: []listPass{{records: records}}},
		Runner: runner,
		Store:  mockStore,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		campaign *migrator.Campaign
		err      error
	}
	done := make(chan result, 1)
	go func() {
		campaign, err := c.RunCampaign(ctx, "machine", "machine-new", 1)
		done <- result{campaign, err}
	}()

	<-started
	cancel()
	<-draining
	close(release)

	var r result
	select {
	case r = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunCampaign did not return after cancellation")
	}

	assert.ErrorIs(t, r.err, context.Canceled)
	assert.Equal(t, migrator.CampaignStateCancelled, r.campaign.State())
	assert.Equal(t, 1, runner.MigrateCount(), "no new steps after cancellation")

	inFlight, ok := r.campaign.Outcome(records[0].ID())
	require.True(t, ok)
	assert.Equal(t, migrator.OutcomeMigrated, inFlight.Kind, "the in-flight step finishes")

	yielded, ok := r.campaign.Outcome(records[1].ID())
	require.True(t, ok)
	assert.Equal(t, migrator.OutcomeFailed, yielded.Kind)
	assert.ErrorIs(t, yielded.Err, migrator.ErrCampaignCancelled)
	assert.ErrorIs(t, yielded.Err, context.Canceled)

	_, ok = r.campaign.Outcome(records[2].ID())
	assert.False(t, ok, "records never listed get no outcome")

	assert.Equal(t, []migrator.CampaignState{
		migrator.CampaignStateRunning,
		migrator.CampaignStateDraining,
		migrator.CampaignStateCancelled,
	}, mockStore.States())
}

func TestRunCampaign_CancelledBeforeStart(t *testing.T) {
	runner := executor.NewMockRunner()
	c := New(Config{
		Source: &scriptedSource{passes: []listPass{{records: testRecords(2)}}},
		Runner: runner,
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	campaign, err := c.RunCampaign(ctx, "machine", "machine-new", 1)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, migrator.CampaignStateCancelled, campaign.State())
	assert.Equal(t, 0, runner.MigrateCount())
}

func TestRunCampaign_PersistsCampaign(t *testing.T) {
	s := memory.New()
	c := New(Config{
		Source: &scriptedSource{passes: []listPass{{records: testRecords(3)}}},
		Runner: executor.NewMockRunner(),
		Store:  s,
	})
	ctx := context.Background()

	campaign, err := c.RunCampaign(ctx, "machine", "machine-new", 2)
	require.NoError(t, err)

	loaded, err := store.Load(ctx, s, campaign.ID())
	require.NoError(t, err)
	assert.Equal(t, campaign.Summary(), loaded.Summary())
	assert.Equal(t, migrator.CampaignStateCompleted, loaded.State())
	assert.Equal(t, migrator.CampaignMigrate, loaded.Info().Kind)
}

func TestRunCampaign_StoreFailuresDoNotFailCampaign(t *testing.T) {
	mockStore := store.NewMockCampaignStore()
	mockStore.AppendOutcomeFunc = func(ctx context.Context, id string, o migrator.Outcome) error {
		return errors.New("db down")
	}
	logger := &mockLogger{}
	c := New(Config{
		Source: &scriptedSource{passes: []listPass{{records: testRecords(2)}}},
		Runner: executor.NewMockRunner(),
		Store:  mockStore,
		Logger: logger,
	})

	campaign, err := c.RunCampaign(context.Background(), "machine", "machine-new", 2)

	require.NoError(t, err)
	assert.Equal(t, 2, campaign.Len())
	assert.Contains(t, logger.messages("error"), "failed to persist outcome")
}

func TestRunCampaign_RegisterFailure(t *testing.T) {
	mockStore := store.NewMockCampaignStore()
	boom := errors.New("db down")
	mockStore.CreateCampaignFunc = func(ctx context.Context, info migrator.CampaignInfo) error {
		return boom
	}
	runner := executor.NewMockRunner()
	c := New(Config{
		Source: &scriptedSource{passes: []listPass{{records: testRecords(2)}}},
		Runner: runner,
		Store:  mockStore,
	})

	campaign, err := c.RunCampaign(context.Background(), "machine", "machine-new", 2)

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, campaign)
	assert.Equal(t, 0, runner.MigrateCount())
}

func TestRunCampaign_Logs(t *testing.T) {
	logger := &mockLogger{}
	c := New(Config{
		Source: &scriptedSource{passes: []listPass{{records: testRecords(1)}}},
		Runner: executor.NewMockRunner(),
		Logger: logger,
	})

	_, err := c.RunCampaign(context.Background(), "machine", "machine-new", 1)

	require.NoError(t, err)
	infos := logger.messages("info")
	assert.Contains(t, infos, "campaign started")
	assert.Contains(t, infos, "campaign finished")
	assert.Empty(t, logger.messages("error"))
}

func TestRunCampaign_NilLoggerAndMetrics(t *testing.T) {
	c := New(Config{
		Source: &scriptedSource{passes: []listPass{{records: testRecords(2)}}},
		Runner: executor.NewMockRunner(),
	})

	assert.NotPanics(t, func() {
		_, _ = c.RunCampaign(context.Background(), "machine", "machine-new", 1)
	})
}

func TestRunRenameCampaign(t *testing.T) {
	f := newLedgerFixture(t, ledgermem.Config{})
	for i := byte(1); i <= 3; i++ {
		_, err := f.ledger.Put("machine-new", testOwner(i), uuidKey(i), nil)
		require.NoError(t, err)
	}

	campaign, err := f.coord.RunRenameCampaign(context.Background(), "machine-new", "machine", 0)

	require.NoError(t, err)
	assert.Equal(t, migrator.CampaignRename, campaign.Info().Kind)
	assert.Equal(t, migrator.Summary{Total: 3, Migrated: 3}, campaign.Summary())
	assert.Empty(t, f.ledger.Records("machine-new"))
	for _, rec := range f.ledger.Records("machine") {
		expected, _, err := address.Derive("machine", rec.Owner, rec.Key, testProgram)
		require.NoError(t, err)
		assert.Equal(t, expected, rec.Address)
	}
}

func TestBackoff(t *testing.T) {
	b := newBackoff(time.Second, 5*time.Second)

	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, 2*time.Second, b.Next())
	assert.Equal(t, 4*time.Second, b.Next())
	assert.Equal(t, 5*time.Second, b.Next())
	assert.Equal(t, 5*time.Second, b.Next())
}

func TestSleep_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleep(ctx, time.Minute)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
