package coordinator

import (
	"context"
	"errors"
	"fmt"

	migrator "github.com/getpup/ledger-migrator"
	"github.com/getpup/ledger-migrator/predicate"
)

// ErrNilPredicate is returned by Sweep when no predicate is given.
var ErrNilPredicate = errors.New("sweep predicate is required")

// Sweep removes every record under tag that matches pred.
//
// Non-matching records get a skipped_predicate_false outcome and no request is submitted.
// Matching records are removed with the same confirmation and retry discipline as migrations.
// A predicate evaluation error fails only that record.
func (c *Coordinator) Sweep(ctx context.Context, tag migrator.NamespaceTag, pred predicate.Predicate, concurrency int) (*migrator.Campaign, error) {
	if tag == "" {
		return nil, migrator.ErrInvalidGeneration
	}
	if pred == nil {
		return nil, ErrNilPredicate
	}

	return c.run(ctx, migrator.CampaignSweep, tag, "", concurrency, func(ctx context.Context, rec migrator.Record) migrator.Outcome {
		match, err := pred.Match(rec)
		if err != nil {
			err = fmt.Errorf("failed to evaluate predicate: %w", err)
			return migrator.Outcome{
				RecordID: rec.ID(),
				Owner:    rec.Owner,
				Key:      rec.Key,
				Source:   rec.Address,
				Kind:     migrator.OutcomeFailed,
				Reason:   err.Error(),
				Err:      err,
			}
		}

		if !match {
			return migrator.Outcome{
				RecordID: rec.ID(),
				Owner:    rec.Owner,
				Key:      rec.Key,
				Source:   rec.Address,
				Kind:     migrator.OutcomeSkippedPredicateFalse,
			}
		}

		return c.config.Runner.Remove(ctx, rec)
	})
}
