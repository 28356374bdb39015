package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getpup/pupsourcing/es"

	migrator "github.com/getpup/ledger-migrator"
	"github.com/getpup/ledger-migrator/executor"
	"github.com/getpup/ledger-migrator/lifecycle"
	"github.com/getpup/ledger-migrator/metrics"
	"github.com/getpup/ledger-migrator/source"
	"github.com/getpup/ledger-migrator/store"
	"github.com/getpup/ledger-migrator/store/memory"
)

// Config holds configuration for the Coordinator.
type Config struct {
	// Source lists the records of a generation (required).
	Source source.Source

	// Runner executes one record's transition (required).
	Runner executor.Runner

	// Store persists campaigns and their outcome logs (default: in-memory store).
	Store store.CampaignStore

	// Concurrency is the default number of steps in flight when a campaign
	// is started with a non-positive limit (default: 5).
	Concurrency int

	// ListAttempts is the number of times a failing listing is attempted
	// before the campaign aborts (default: 3).
	ListAttempts int

	// ListBackoff is the delay before the first listing retry (default: 1s).
	ListBackoff time.Duration

	// MaxListBackoff caps the listing retry delay (default: 30s).
	MaxListBackoff time.Duration

	// HeartbeatInterval is the interval between campaign heartbeats (default: 5s).
	HeartbeatInterval time.Duration

	// Logger is for observability (optional).
	Logger es.Logger

	// Metrics is an optional collector. Nil disables metrics.
	Metrics *metrics.Collector
}

// Coordinator runs campaigns: it lists a generation, fans records out to the
// Runner with bounded concurrency and records one outcome per record.
// A Coordinator holds no per-campaign state and may run several campaigns at once.
type Coordinator struct {
	config Config
}

// New creates a new Coordinator with the given configuration.
// Applies default values for concurrency and listing retry settings if zero.
func New(cfg Config) *Coordinator {
	if cfg.Store == nil {
		cfg.Store = memory.New()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.ListAttempts <= 0 {
		cfg.ListAttempts = 3
	}
	if cfg.ListBackoff == 0 {
		cfg.ListBackoff = 1 * time.Second
	}
	if cfg.MaxListBackoff == 0 {
		cfg.MaxListBackoff = 30 * time.Second
	}

	return &Coordinator{
		config: cfg,
	}
}

// stepFunc produces the terminal outcome for one record.
type stepFunc func(ctx context.Context, rec migrator.Record) migrator.Outcome

// RunCampaign migrates every record stored under sourceGen to its derived address under targetGen.
//
// The returned campaign holds exactly one outcome per listed record. Per-record failures
// never fail the call. A non-nil error means the campaign did not complete: the listing
// could not be enumerated (state aborted) or ctx was cancelled (state cancelled); the
// partial campaign is returned alongside it.
func (c *Coordinator) RunCampaign(ctx context.Context, sourceGen, targetGen migrator.NamespaceTag, concurrency int) (*migrator.Campaign, error) {
	if err := validateGenerations(sourceGen, targetGen); err != nil {
		return nil, err
	}

	return c.run(ctx, migrator.CampaignMigrate, sourceGen, targetGen, concurrency, func(ctx context.Context, rec migrator.Record) migrator.Outcome {
		return c.config.Runner.Migrate(ctx, rec, targetGen)
	})
}

// RunRenameCampaign moves records from the transitional generation back to the canonical one.
// It follows the same execution and idempotency rules as RunCampaign.
func (c *Coordinator) RunRenameCampaign(ctx context.Context, transitionalGen, canonicalGen migrator.NamespaceTag, concurrency int) (*migrator.Campaign, error) {
	if err := validateGenerations(transitionalGen, canonicalGen); err != nil {
		return nil, err
	}

	return c.run(ctx, migrator.CampaignRename, transitionalGen, canonicalGen, concurrency, func(ctx context.Context, rec migrator.Record) migrator.Outcome {
		return c.config.Runner.Migrate(ctx, rec, canonicalGen)
	})
}

func validateGenerations(from, to migrator.NamespaceTag) error {
	if from == "" || to == "" {
		return migrator.ErrInvalidGeneration
	}
	if from == to {
		return fmt.Errorf("%w: %q", migrator.ErrSameGeneration, from)
	}
	return nil
}

// run drives one campaign from registration to its terminal state.
func (c *Coordinator) run(ctx context.Context, kind migrator.CampaignKind, sourceGen, targetGen migrator.NamespaceTag, concurrency int, step stepFunc) (*migrator.Campaign, error) {
	if concurrency <= 0 {
		concurrency = c.config.Concurrency
	}

	// Bookkeeping writes must land even after ctx is cancelled.
	bg := context.WithoutCancel(ctx)

	campaign := migrator.NewCampaign(kind, sourceGen, targetGen)
	manager := lifecycle.New(lifecycle.Config{
		Store:             c.config.Store,
		HeartbeatInterval: c.config.HeartbeatInterval,
		Logger:            c.config.Logger,
		Metrics:           c.config.Metrics,
	})
	if err := manager.Register(bg, campaign); err != nil {
		return nil, fmt.Errorf("failed to register campaign: %w", err)
	}

	hbCtx, stopHeartbeat := context.WithCancel(bg)
	var hbDone sync.WaitGroup
	hbDone.Add(1)
	go func() {
		defer hbDone.Done()
		if err := manager.StartHeartbeat(hbCtx); err != nil && c.config.Logger != nil {
			c.config.Logger.Error(ctx, "campaign heartbeat stopped", "campaignID", campaign.ID(), "error", err)
		}
	}()
	defer func() {
		stopHeartbeat()
		hbDone.Wait()
	}()

	c.transition(bg, manager, migrator.CampaignStateRunning)

	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "campaign started",
			"campaignID", campaign.ID(),
			"kind", kind,
			"source", sourceGen,
			"target", targetGen,
			"concurrency", concurrency)
	}

	d := &dispatcher{
		coordinator: c,
		manager:     manager,
		kind:        kind,
		step:        step,
		bg:          bg,
		sem:         make(chan struct{}, concurrency),
		dispatched:  make(map[string]struct{}),
	}

	err := c.dispatchAll(ctx, d, sourceGen)

	final := migrator.CampaignStateCompleted
	switch {
	case err == nil:
	case ctx.Err() != nil:
		final = migrator.CampaignStateCancelled
		err = ctx.Err()
	default:
		final = migrator.CampaignStateAborted
	}

	if final != migrator.CampaignStateCompleted {
		c.transition(bg, manager, migrator.CampaignStateDraining)
	}
	d.wg.Wait()
	c.transition(bg, manager, final)

	if c.config.Logger != nil {
		summary := campaign.Summary()
		args := []interface{}{
			"campaignID", campaign.ID(),
			"state", final,
			"total", summary.Total,
			"migrated", summary.Migrated,
			"removed", summary.Removed,
			"skipped", summary.Skipped,
			"failed", summary.Failed,
		}
		if err != nil {
			c.config.Logger.Error(ctx, "campaign stopped", append(args, "error", err)...)
		} else {
			c.config.Logger.Info(ctx, "campaign finished", args...)
		}
	}

	return campaign, err
}

// dispatchAll lists the generation and dispatches every record, restarting the
// listing with backoff while the source is unavailable.
func (c *Coordinator) dispatchAll(ctx context.Context, d *dispatcher, tag migrator.NamespaceTag) error {
	bo := newBackoff(c.config.ListBackoff, c.config.MaxListBackoff)

	for attempt := 1; ; attempt++ {
		err := d.dispatchListing(ctx, tag)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, migrator.ErrSourceUnavailable) {
			return err
		}
		if attempt >= c.config.ListAttempts {
			return fmt.Errorf("failed to list %q after %d attempts: %w", tag, attempt, err)
		}

		delay := bo.Next()
		if c.config.Metrics != nil {
			c.config.Metrics.IncListRetries(string(d.kind))
		}
		if c.config.Logger != nil {
			c.config.Logger.Error(ctx, "listing failed, retrying",
				"campaignID", d.manager.CampaignID(),
				"tag", tag,
				"attempt", attempt,
				"delay", delay,
				"error", err)
		}

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// transition persists a state change. Store failures are logged, not returned:
// the in-memory campaign remains authoritative for the caller.
func (c *Coordinator) transition(ctx context.Context, manager *lifecycle.Manager, state migrator.CampaignState) {
	if err := manager.UpdateState(ctx, state); err != nil && c.config.Logger != nil {
		c.config.Logger.Error(ctx, "failed to persist campaign state",
			"campaignID", manager.CampaignID(),
			"state", state,
			"error", err)
	}
}

// dispatcher fans records of one campaign out to workers.
type dispatcher struct {
	coordinator *Coordinator
	manager     *lifecycle.Manager
	kind        migrator.CampaignKind
	step        stepFunc
	bg          context.Context

	sem chan struct{}
	wg  sync.WaitGroup

	// dispatched survives listing restarts so no record is processed twice.
	dispatched map[string]struct{}
}

// dispatchListing walks one listing pass. Returns the listing error, or ctx.Err()
// once dispatch stops because of cancellation.
func (d *dispatcher) dispatchListing(ctx context.Context, tag migrator.NamespaceTag) error {
	it := d.coordinator.config.Source.List(tag)
	defer it.Close()

	for it.Next(ctx) {
		rec := it.Record()
		id := rec.ID()
		if _, seen := d.dispatched[id]; seen {
			continue
		}
		d.dispatched[id] = struct{}{}

		if err := ctx.Err(); err != nil {
			d.cancel(rec, err)
			return err
		}

		select {
		case d.sem <- struct{}{}:
		case <-ctx.Done():
			d.cancel(rec, ctx.Err())
			return ctx.Err()
		}

		d.wg.Add(1)
		go d.work(ctx, rec)
	}

	return it.Err()
}

func (d *dispatcher) work(ctx context.Context, rec migrator.Record) {
	defer d.wg.Done()
	defer func() { <-d.sem }()

	m := d.coordinator.config.Metrics
	if m != nil {
		m.IncStepsInFlight(string(d.kind))
		defer m.DecStepsInFlight(string(d.kind))
	}

	d.record(d.step(ctx, rec))
}

// cancel records a Failed outcome for a record that was listed but never dispatched.
func (d *dispatcher) cancel(rec migrator.Record, cause error) {
	err := fmt.Errorf("%w: %w", migrator.ErrCampaignCancelled, cause)
	d.record(migrator.Outcome{
		RecordID: rec.ID(),
		Owner:    rec.Owner,
		Key:      rec.Key,
		Source:   rec.Address,
		Kind:     migrator.OutcomeFailed,
		Reason:   err.Error(),
		Err:      err,
	})
}

func (d *dispatcher) record(o migrator.Outcome) {
	err := d.manager.RecordOutcome(d.bg, o)
	if err == nil {
		return
	}

	logger := d.coordinator.config.Logger
	if logger == nil {
		return
	}
	if errors.Is(err, migrator.ErrOutcomeExists) {
		logger.Error(d.bg, "duplicate outcome ignored", "campaignID", d.manager.CampaignID(), "recordID", o.RecordID, "kind", o.Kind)
		return
	}
	logger.Error(d.bg, "failed to persist outcome", "campaignID", d.manager.CampaignID(), "recordID", o.RecordID, "error", err)
}
