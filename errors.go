package migrator

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKeyShape indicates an owner key, record key or tag violates the ledger's
	// length constraints. It fails the single record, never the campaign.
	ErrInvalidKeyShape = errors.New("invalid key shape")

	// ErrSourceUnavailable indicates the ledger listing could not be read.
	// Campaigns retry the listing with backoff and abort once attempts are exhausted.
	ErrSourceUnavailable = errors.New("record source unavailable")

	// ErrSubmissionExpired indicates a request was not confirmed within the validity window
	// of its finality reference.
	ErrSubmissionExpired = errors.New("submission expired")

	// ErrRejected indicates the ledger rejected a request. Rejections are not retried.
	ErrRejected = errors.New("rejected")

	// ErrRecordNotFound indicates no record exists at the requested address.
	ErrRecordNotFound = errors.New("record not found")

	// ErrOutcomeExists indicates an outcome was already recorded for the record.
	// The campaign log is append-only.
	ErrOutcomeExists = errors.New("outcome already recorded")

	// ErrCampaignCancelled indicates a record was not dispatched because the campaign was cancelled.
	ErrCampaignCancelled = errors.New("campaign cancelled")

	// ErrSameGeneration indicates source and target generations are identical.
	ErrSameGeneration = errors.New("source and target generation are identical")

	// ErrInvalidGeneration indicates an empty or malformed namespace tag.
	ErrInvalidGeneration = errors.New("invalid generation")

	// ErrUnsupportedGeneration indicates the ledger cannot list or address records of a tag.
	// Retrying cannot help, so listings fail with it directly instead of ErrSourceUnavailable.
	ErrUnsupportedGeneration = errors.New("unsupported generation")
)

// RejectedError carries the ledger's rejection code.
// It matches ErrRejected with errors.Is.
type RejectedError struct {
	Code string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected: %s", e.Code)
}

// Is reports whether target is ErrRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}
