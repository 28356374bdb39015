// Package ledger defines the contract between the migrator and the external,
// consensus-ordered ledger that stores records.
//
// The ledger is authoritative: requests are confirmed, expired or rejected by it, and
// the migrator never assumes a submission landed until the ledger says so.
package ledger

import (
	"context"

	migrator "github.com/getpup/ledger-migrator"
)

// DefaultPageSize is the number of records requested per listing page.
const DefaultPageSize = 100

// PageRequest asks for one page of a listing.
type PageRequest struct {
	// After is the cursor returned with the previous page. Empty starts from the beginning.
	After string

	// Limit is the maximum number of records to return.
	Limit int
}

// Page is one page of records stored under a namespace tag.
type Page struct {
	Records []migrator.Record

	// Next is the cursor for the following page. Empty means the listing is exhausted.
	Next string
}

// FinalityRef is a recent ledger reference that bounds how long a submission is valid.
type FinalityRef struct {
	// Hash is the reference block hash embedded in the request.
	Hash string

	// LastValidHeight is the last block height at which the request can still land.
	LastValidHeight uint64
}

// RequestKind distinguishes the two state transitions the migrator submits.
type RequestKind string

const (
	// RequestRelocate moves a record from its source address to a destination address.
	RequestRelocate RequestKind = "relocate"

	// RequestRemove removes a record from its address.
	RequestRemove RequestKind = "remove"
)

// Request is a state-transition request submitted to the ledger.
type Request struct {
	Kind RequestKind

	// Source is the record being relocated or removed.
	Source migrator.Record

	// Destination is the derived target address. Unused for removals.
	Destination migrator.Address

	// TargetGeneration is the namespace tag the record moves to. Unused for removals.
	TargetGeneration migrator.NamespaceTag

	// Signer authorizes the request.
	Signer migrator.Signer
}

// Handle identifies a submitted request.
type Handle struct {
	// ID is the ledger receipt (transaction signature).
	ID string

	// Finality is the reference the request was submitted with.
	Finality FinalityRef
}

// StatusState is the final state of a submitted request as reported by the ledger.
type StatusState string

const (
	// StatusConfirmed indicates the transition is final.
	StatusConfirmed StatusState = "confirmed"

	// StatusExpired indicates the finality reference lapsed before the request landed.
	StatusExpired StatusState = "expired"

	// StatusRejected indicates the ledger refused the request. See Status.Code.
	StatusRejected StatusState = "rejected"
)

// Status is the final status of a submitted request.
type Status struct {
	State StatusState

	// Code is the ledger's rejection code. Empty unless State is StatusRejected.
	Code string
}

// Ledger is the migrator's view of the external ledger.
// Implementations must be safe for concurrent use.
type Ledger interface {
	// List returns one page of the records stored under tag.
	List(ctx context.Context, tag migrator.NamespaceTag, page PageRequest) (Page, error)

	// Get returns the record stored at addr.
	// Returns migrator.ErrRecordNotFound if the address holds no record.
	Get(ctx context.Context, addr migrator.Address) (migrator.Record, error)

	// LatestFinality fetches a fresh finality reference.
	LatestFinality(ctx context.Context) (FinalityRef, error)

	// Submit sends req to the ledger, bounded by ref.
	// A *migrator.RejectedError is returned when the ledger refuses the request up front.
	Submit(ctx context.Context, req Request, ref FinalityRef) (Handle, error)

	// AwaitStatus blocks until the submission is confirmed, rejected or expired.
	AwaitStatus(ctx context.Context, h Handle) (Status, error)
}
