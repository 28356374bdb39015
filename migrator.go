package migrator

import "context"

// Migrator relocates or removes every record of a generation on the ledger.
//
// Campaigns never roll back: migration of one record is independent of any other, so a
// partially completed campaign is a valid resting state. Re-running the same campaign is
// safe because each step checks whether its target already exists before submitting.
type Migrator interface {
	// RunCampaign moves every record listed under sourceGeneration to the address derived
	// for targetGeneration, with at most concurrency steps in flight.
	//
	// The returned campaign holds exactly one outcome per dispatched record. A non-nil
	// error is returned only when the campaign was cancelled or the record source could
	// not be enumerated; the partial campaign is returned alongside it.
	RunCampaign(ctx context.Context, sourceGeneration, targetGeneration NamespaceTag, concurrency int) (*Campaign, error)

	// RunRenameCampaign moves records from the transitional generation to the canonical one.
	// It uses the same executor and idempotency rules as RunCampaign.
	RunRenameCampaign(ctx context.Context, transitionalGeneration, canonicalGeneration NamespaceTag, concurrency int) (*Campaign, error)
}
