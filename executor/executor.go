package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getpup/pupsourcing/es"

	migrator "github.com/getpup/ledger-migrator"
	"github.com/getpup/ledger-migrator/address"
	"github.com/getpup/ledger-migrator/ledger"
	"github.com/getpup/ledger-migrator/metrics"
)

// Config configures the migration step executor.
type Config struct {
	// Ledger is the ledger requests are submitted to (required).
	Ledger ledger.Ledger

	// Deriver computes target addresses (required).
	Deriver *address.Deriver

	// Signer authorizes submitted requests (required).
	Signer migrator.Signer

	// MaxAttempts is the number of submissions made per record before giving up (default: 3).
	MaxAttempts int

	// AttemptTimeout bounds a single attempt, from the idempotency check to the final status (default: 90s).
	AttemptTimeout time.Duration

	// RetryDelay is the pause between attempts (default: none).
	RetryDelay time.Duration

	// Logger is an optional logger for observability.
	Logger es.Logger

	// Metrics is an optional collector. Nil disables metrics.
	Metrics *metrics.Collector
}

// Executor runs one record's transition with idempotency checks and bounded retries.
type Executor struct {
	config Config
}

// Compile-time check that Executor implements Runner.
var _ Runner = (*Executor)(nil)

// New creates a new Executor with the given configuration.
// It applies default values for MaxAttempts and AttemptTimeout if zero.
func New(cfg Config) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = 90 * time.Second
	}

	return &Executor{
		config: cfg,
	}
}

// step describes one record transition independently of its kind.
type step struct {
	operation ledger.RequestKind
	request   ledger.Request

	// settled reports whether the transition is already in effect on the ledger.
	// A *migrator.RejectedError marks a state no submission can fix.
	settled func(ctx context.Context) (bool, error)

	doneKind migrator.OutcomeKind
	skipKind migrator.OutcomeKind
}

type attemptResult struct {
	// kind is set when the attempt reached a terminal outcome.
	kind      migrator.OutcomeKind
	receipt   string
	submitted bool
	err       error
}

// Migrate derives rec's address under target and relocates it there.
//
// If the target already holds the record, no request is submitted and the outcome is
// SkippedAlreadyMigrated. Expired submissions are retried with a fresh finality
// reference; the idempotency check runs again before every retry.
func (e *Executor) Migrate(ctx context.Context, rec migrator.Record, target migrator.NamespaceTag) migrator.Outcome {
	out := newOutcome(rec)

	dest, err := e.config.Deriver.Derive(target, rec.Owner, rec.Key)
	if err != nil {
		return e.failed(ctx, out, err)
	}
	out.NewAddress = dest

	return e.run(ctx, out, step{
		operation: ledger.RequestRelocate,
		request: ledger.Request{
			Kind:             ledger.RequestRelocate,
			Source:           rec,
			Destination:      dest,
			TargetGeneration: target,
			Signer:           e.config.Signer,
		},
		settled: func(ctx context.Context) (bool, error) {
			existing, err := e.config.Ledger.Get(ctx, dest)
			if errors.Is(err, migrator.ErrRecordNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			if !existing.Owner.Equal(rec.Owner) || !existing.Key.Equal(rec.Key) {
				return false, &migrator.RejectedError{Code: "DestinationOccupied"}
			}
			return true, nil
		},
		doneKind: migrator.OutcomeMigrated,
		skipKind: migrator.OutcomeSkippedAlreadyMigrated,
	})
}

// Remove submits a removal request for rec.
// A record that is already gone yields SkippedAlreadyRemoved.
func (e *Executor) Remove(ctx context.Context, rec migrator.Record) migrator.Outcome {
	return e.run(ctx, newOutcome(rec), step{
		operation: ledger.RequestRemove,
		request: ledger.Request{
			Kind:   ledger.RequestRemove,
			Source: rec,
			Signer: e.config.Signer,
		},
		settled: func(ctx context.Context) (bool, error) {
			_, err := e.config.Ledger.Get(ctx, rec.Address)
			if errors.Is(err, migrator.ErrRecordNotFound) {
				return true, nil
			}
			return false, err
		},
		doneKind: migrator.OutcomeRemoved,
		skipKind: migrator.OutcomeSkippedAlreadyRemoved,
	})
}

func (e *Executor) run(ctx context.Context, out migrator.Outcome, s step) migrator.Outcome {
	start := time.Now()
	defer func() {
		if e.config.Metrics != nil {
			e.config.Metrics.ObserveStepDuration(string(s.operation), time.Since(start).Seconds())
		}
	}()

	// receipt of the latest submission whose fate is unknown
	var pending string
	var lastErr error

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		if err := e.pause(ctx, attempt); err != nil {
			return e.giveUp(ctx, out, s, pending, fmt.Errorf("%w: %w", migrator.ErrCampaignCancelled, err))
		}

		if e.config.Logger != nil {
			e.config.Logger.Debug(ctx, "starting attempt",
				"recordID", out.RecordID, "operation", s.operation, "attempt", attempt)
		}

		res := e.attempt(ctx, s, pending)
		if res.submitted {
			out.Attempts++
		}

		if res.kind == migrator.OutcomeFailed {
			out.Receipt = res.receipt
			return e.failed(ctx, out, res.err)
		}
		if res.kind != "" {
			return e.settle(ctx, out, res.kind, res.receipt)
		}

		if res.receipt != "" {
			pending = res.receipt
		}
		lastErr = res.err

		if e.config.Logger != nil {
			e.config.Logger.Info(ctx, "attempt did not confirm, retrying",
				"recordID", out.RecordID, "attempt", attempt, "error", res.err)
		}
	}

	return e.giveUp(ctx, out, s, pending, exhausted(e.config.MaxAttempts, lastErr))
}

// attempt runs one idempotency check and submission on a context detached from the
// campaign, so an operator interrupt never abandons a request mid-flight.
func (e *Executor) attempt(parent context.Context, s step, pending string) attemptResult {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), e.config.AttemptTimeout)
	defer cancel()

	settled, err := s.settled(ctx)
	if err != nil {
		if errors.Is(err, migrator.ErrRejected) {
			return attemptResult{kind: migrator.OutcomeFailed, err: err}
		}
		return attemptResult{err: fmt.Errorf("failed to check ledger state: %w", err)}
	}
	if settled {
		if pending != "" {
			// An earlier submission reported as expired landed after all.
			return attemptResult{kind: s.doneKind, receipt: pending}
		}
		return attemptResult{kind: s.skipKind}
	}

	ref, err := e.config.Ledger.LatestFinality(ctx)
	if err != nil {
		return attemptResult{err: fmt.Errorf("failed to get finality reference: %w", err)}
	}

	h, err := e.config.Ledger.Submit(ctx, s.request, ref)
	if err != nil {
		if errors.Is(err, migrator.ErrRejected) {
			e.countSubmission(s, ledger.StatusRejected)
			return attemptResult{kind: migrator.OutcomeFailed, submitted: true, err: err}
		}
		e.countSubmission(s, "error")
		return attemptResult{submitted: true, err: fmt.Errorf("failed to submit request: %w", err)}
	}

	status, err := e.config.Ledger.AwaitStatus(ctx, h)
	if err != nil {
		e.countSubmission(s, "error")
		return attemptResult{receipt: h.ID, submitted: true, err: fmt.Errorf("failed to await status of %s: %w", h.ID, err)}
	}
	e.countSubmission(s, status.State)

	switch status.State {
	case ledger.StatusConfirmed:
		return attemptResult{kind: s.doneKind, receipt: h.ID, submitted: true}
	case ledger.StatusRejected:
		return attemptResult{kind: migrator.OutcomeFailed, receipt: h.ID, submitted: true, err: &migrator.RejectedError{Code: status.Code}}
	default:
		return attemptResult{receipt: h.ID, submitted: true, err: fmt.Errorf("%w: %s", migrator.ErrSubmissionExpired, h.ID)}
	}
}

// giveUp reconciles with the ledger once more before reporting failure: a submission
// whose status was lost may still have landed.
func (e *Executor) giveUp(ctx context.Context, out migrator.Outcome, s step, pending string, cause error) migrator.Outcome {
	if pending != "" {
		checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.AttemptTimeout)
		settled, err := s.settled(checkCtx)
		cancel()
		if err == nil && settled {
			return e.settle(ctx, out, s.doneKind, pending)
		}
	}
	out.Receipt = pending
	return e.failed(ctx, out, cause)
}

func (e *Executor) pause(ctx context.Context, attempt int) error {
	if attempt == 1 || e.config.RetryDelay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(e.config.RetryDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Executor) settle(ctx context.Context, out migrator.Outcome, kind migrator.OutcomeKind, receipt string) migrator.Outcome {
	out.Kind = kind
	out.Receipt = receipt
	if kind == migrator.OutcomeRemoved || kind == migrator.OutcomeSkippedAlreadyRemoved {
		out.NewAddress = migrator.Address{}
	}

	if e.config.Logger != nil {
		e.config.Logger.Info(ctx, "record settled",
			"recordID", out.RecordID, "outcome", kind, "receipt", receipt, "attempts", out.Attempts)
	}
	return out
}

func (e *Executor) failed(ctx context.Context, out migrator.Outcome, err error) migrator.Outcome {
	out.Kind = migrator.OutcomeFailed
	out.Reason = err.Error()
	out.Err = err

	if e.config.Logger != nil {
		e.config.Logger.Error(ctx, "record failed",
			"recordID", out.RecordID, "attempts", out.Attempts, "error", err)
	}
	return out
}

func (e *Executor) countSubmission(s step, status ledger.StatusState) {
	if e.config.Metrics != nil {
		e.config.Metrics.IncSubmissions(string(s.operation), string(status))
	}
}

func exhausted(attempts int, last error) error {
	if last == nil || errors.Is(last, migrator.ErrSubmissionExpired) {
		return fmt.Errorf("%w after %d attempts", migrator.ErrSubmissionExpired, attempts)
	}
	return fmt.Errorf("%w after %d attempts: %w", migrator.ErrSubmissionExpired, attempts, last)
}

func newOutcome(rec migrator.Record) migrator.Outcome {
	return migrator.Outcome{
		RecordID: rec.ID(),
		Owner:    rec.Owner,
		Key:      rec.Key,
		Source:   rec.Address,
	}
}
