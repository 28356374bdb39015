package migrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getpup/pupsourcing/es"

	rootpkg "github.com/getpup/ledger-migrator"
	"github.com/getpup/ledger-migrator/address"
	"github.com/getpup/ledger-migrator/coordinator"
	"github.com/getpup/ledger-migrator/executor"
	"github.com/getpup/ledger-migrator/ledger"
	"github.com/getpup/ledger-migrator/metrics"
	"github.com/getpup/ledger-migrator/predicate"
	"github.com/getpup/ledger-migrator/source"
	"github.com/getpup/ledger-migrator/store"
	"github.com/getpup/ledger-migrator/store/memory"
)

// Re-export core types from root package
type (
	// NamespaceTag identifies the schema generation of a record.
	NamespaceTag = rootpkg.NamespaceTag

	// Campaign is one run over all records of a generation.
	Campaign = rootpkg.Campaign

	// PlannedStep is one line of a dry run.
	PlannedStep = rootpkg.PlannedStep
)

// Option configures a Migrator.
type Option func(*config)

// config holds the internal configuration for creating a Migrator.
type config struct {
	ledger            ledger.Ledger
	program           rootpkg.Address
	programSet        bool
	signer            rootpkg.Signer
	campaignStore     store.CampaignStore
	runner            executor.Runner
	concurrency       int
	pageSize          int
	maxAttempts       int
	attemptTimeout    time.Duration
	retryDelay        time.Duration
	listAttempts      int
	listBackoff       time.Duration
	heartbeatInterval time.Duration
	logger            es.Logger
	metrics           *metrics.Collector
}

// Migrator wires the record source, step executor and campaign coordinator
// around one ledger and signer.
type Migrator struct {
	coordinator *coordinator.Coordinator
	source      *source.Lister
	deriver     *address.Deriver
	ledger      ledger.Ledger
	store       store.CampaignStore
	logger      es.Logger
}

// Compile-time check that Migrator implements the root Migrator interface.
var _ rootpkg.Migrator = (*Migrator)(nil)

// New creates a new Migrator with the given options.
//
// Required options:
//   - WithLedger: the ledger records are listed from and submitted to
//   - WithProgram: the program identity addresses are derived under
//   - WithSigner: the authority that signs every request
//
// Optional configuration (with defaults):
//   - WithStore: campaign log store (default: in-memory store)
//   - WithConcurrency: steps in flight per campaign (default: 5)
//   - WithPageSize: records per listing page (default: 100)
//   - WithMaxAttempts: submissions per record before it fails (default: 3)
//   - WithAttemptTimeout: bound on one submit-and-confirm attempt (default: 90s)
//   - WithRetryDelay: pause between attempts (default: none)
//   - WithListRetry: listing attempts and initial backoff (default: 3, 1s)
//   - WithHeartbeatInterval: campaign heartbeat interval (default: 5s)
//   - WithLogger: logger for observability (default: nil)
//   - WithMetrics: Prometheus collector (default: nil)
//   - WithRunner: custom step runner (default: executor.New)
//
// Example:
//
//	m, err := migrator.New(
//	    migrator.WithLedger(rpcLedger),
//	    migrator.WithProgram(program),
//	    migrator.WithSigner(keypair),
//	    migrator.WithConcurrency(8),
//	)
//
// Returns an error if any required option is missing.
func New(opts ...Option) (*Migrator, error) {
	cfg := &config{
		concurrency:       5,
		pageSize:          ledger.DefaultPageSize,
		maxAttempts:       3,
		attemptTimeout:    90 * time.Second,
		listAttempts:      3,
		listBackoff:       time.Second,
		heartbeatInterval: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.ledger == nil {
		return nil, fmt.Errorf("ledger is required: use WithLedger option")
	}
	if !cfg.programSet {
		return nil, fmt.Errorf("program is required: use WithProgram option")
	}
	if cfg.signer == nil && cfg.runner == nil {
		return nil, fmt.Errorf("signer is required: use WithSigner option")
	}
	if cfg.concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", cfg.concurrency)
	}

	if cfg.campaignStore == nil {
		cfg.campaignStore = memory.New()
	}

	deriver := address.NewDeriver(cfg.program)

	if cfg.runner == nil {
		cfg.runner = executor.New(executor.Config{
			Ledger:         cfg.ledger,
			Deriver:        deriver,
			Signer:         cfg.signer,
			MaxAttempts:    cfg.maxAttempts,
			AttemptTimeout: cfg.attemptTimeout,
			RetryDelay:     cfg.retryDelay,
			Logger:         cfg.logger,
			Metrics:        cfg.metrics,
		})
	}

	lister := source.New(source.Config{
		Ledger:   cfg.ledger,
		PageSize: cfg.pageSize,
		Logger:   cfg.logger,
	})

	coord := coordinator.New(coordinator.Config{
		Source:            lister,
		Runner:            cfg.runner,
		Store:             cfg.campaignStore,
		Concurrency:       cfg.concurrency,
		ListAttempts:      cfg.listAttempts,
		ListBackoff:       cfg.listBackoff,
		HeartbeatInterval: cfg.heartbeatInterval,
		Logger:            cfg.logger,
		Metrics:           cfg.metrics,
	})

	return &Migrator{
		coordinator: coord,
		source:      lister,
		deriver:     deriver,
		ledger:      cfg.ledger,
		store:       cfg.campaignStore,
		logger:      cfg.logger,
	}, nil
}

// WithLedger sets the ledger records are listed from and requests are submitted to.
func WithLedger(l ledger.Ledger) Option {
	return func(c *config) {
		c.ledger = l
	}
}

// WithProgram sets the program identity addresses are derived under.
func WithProgram(program rootpkg.Address) Option {
	return func(c *config) {
		c.program = program
		c.programSet = true
	}
}

// WithSigner sets the authority that signs relocation and removal requests.
func WithSigner(s rootpkg.Signer) Option {
	return func(c *config) {
		c.signer = s
	}
}

// WithStore sets the campaign log store.
// Use this to persist campaigns, e.g. with sqlstore.
func WithStore(s store.CampaignStore) Option {
	return func(c *config) {
		c.campaignStore = s
	}
}

// WithRunner sets a custom step runner.
// Use this if you want to provide your own implementation of executor.Runner.
func WithRunner(r executor.Runner) Option {
	return func(c *config) {
		c.runner = r
	}
}

// WithConcurrency sets the default number of steps in flight per campaign.
func WithConcurrency(n int) Option {
	return func(c *config) {
		c.concurrency = n
	}
}

// WithPageSize sets the number of records fetched per listing page.
func WithPageSize(n int) Option {
	return func(c *config) {
		c.pageSize = n
	}
}

// WithMaxAttempts sets how many submissions a record gets before it fails.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		c.maxAttempts = n
	}
}

// WithAttemptTimeout bounds one submit-and-confirm attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *config) {
		c.attemptTimeout = d
	}
}

// WithRetryDelay sets the pause between attempts of the same record.
func WithRetryDelay(d time.Duration) Option {
	return func(c *config) {
		c.retryDelay = d
	}
}

// WithListRetry sets how often a failing listing is attempted and the first backoff delay.
func WithListRetry(attempts int, backoff time.Duration) Option {
	return func(c *config) {
		c.listAttempts = attempts
		c.listBackoff = backoff
	}
}

// WithHeartbeatInterval sets the interval between campaign heartbeats.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(c *config) {
		c.heartbeatInterval = interval
	}
}

// WithLogger sets the logger for observability.
func WithLogger(logger es.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetrics enables Prometheus metrics through the given collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *config) {
		c.metrics = collector
	}
}

// Store returns the campaign log store.
func (m *Migrator) Store() store.CampaignStore {
	return m.store
}

// RunCampaign moves every record of sourceGen to its derived address under targetGen.
func (m *Migrator) RunCampaign(ctx context.Context, sourceGen, targetGen NamespaceTag, concurrency int) (*Campaign, error) {
	return m.coordinator.RunCampaign(ctx, sourceGen, targetGen, concurrency)
}

// RunRenameCampaign moves records from the transitional generation back to the canonical one.
func (m *Migrator) RunRenameCampaign(ctx context.Context, transitionalGen, canonicalGen NamespaceTag, concurrency int) (*Campaign, error) {
	return m.coordinator.RunRenameCampaign(ctx, transitionalGen, canonicalGen, concurrency)
}

// Sweep removes every record of tag that matches pred.
func (m *Migrator) Sweep(ctx context.Context, tag NamespaceTag, pred predicate.Predicate, concurrency int) (*Campaign, error) {
	return m.coordinator.Sweep(ctx, tag, pred, concurrency)
}

// Plan lists sourceGen and reports what a campaign to targetGen would do, without submitting.
// A record whose target address already holds it is planned as a skip. A target
// holding a different record is planned as a failure, as the step would be rejected.
func (m *Migrator) Plan(ctx context.Context, sourceGen, targetGen NamespaceTag) ([]PlannedStep, error) {
	if sourceGen == "" || targetGen == "" {
		return nil, rootpkg.ErrInvalidGeneration
	}
	if sourceGen == targetGen {
		return nil, fmt.Errorf("%w: %q", rootpkg.ErrSameGeneration, sourceGen)
	}

	records, err := m.source.ListAll(ctx, sourceGen)
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", sourceGen, err)
	}

	steps := make([]PlannedStep, 0, len(records))
	for _, rec := range records {
		step := PlannedStep{RecordID: rec.ID(), Source: rec.Address, Action: rootpkg.PlanMigrate}

		target, err := m.deriver.Derive(targetGen, rec.Owner, rec.Key)
		if err != nil {
			step.Action = rootpkg.PlanFail
			step.Reason = err.Error()
			steps = append(steps, step)
			continue
		}
		step.Target = target

		existing, err := m.ledger.Get(ctx, target)
		switch {
		case err == nil && (!existing.Owner.Equal(rec.Owner) || !existing.Key.Equal(rec.Key)):
			step.Action = rootpkg.PlanFail
			step.Reason = "destination occupied"
		case err == nil:
			step.Action = rootpkg.PlanSkip
			step.Reason = "target already holds the record"
		case errors.Is(err, rootpkg.ErrRecordNotFound):
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			step.Action = rootpkg.PlanFail
			step.Reason = fmt.Sprintf("failed to read target: %v", err)
		}
		steps = append(steps, step)
	}

	if m.logger != nil {
		m.logger.Info(ctx, "campaign planned", "source", sourceGen, "target", targetGen, "records", len(steps))
	}
	return steps, nil
}

// PlanSweep lists tag and reports which records a sweep with pred would remove.
func (m *Migrator) PlanSweep(ctx context.Context, tag NamespaceTag, pred predicate.Predicate) ([]PlannedStep, error) {
	if tag == "" {
		return nil, rootpkg.ErrInvalidGeneration
	}
	if pred == nil {
		return nil, coordinator.ErrNilPredicate
	}

	records, err := m.source.ListAll(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", tag, err)
	}

	steps := make([]PlannedStep, 0, len(records))
	for _, rec := range records {
		step := PlannedStep{RecordID: rec.ID(), Source: rec.Address}
		match, err := pred.Match(rec)
		switch {
		case err != nil:
			step.Action = rootpkg.PlanFail
			step.Reason = fmt.Sprintf("failed to evaluate predicate: %v", err)
		case match:
			step.Action = rootpkg.PlanRemove
		default:
			step.Action = rootpkg.PlanKeep
			step.Reason = "predicate did not match"
		}
		steps = append(steps, step)
	}

	if m.logger != nil {
		m.logger.Info(ctx, "sweep planned", "tag", tag, "records", len(steps))
	}
	return steps, nil
}
