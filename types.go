package migrator

import (
	"bytes"
	"encoding/hex"
	"time"

	"github.com/mr-tron/base58"
)

// NamespaceTag identifies the schema generation of a record, e.g. "machine" or "order-new".
// The tag bytes are part of the address derivation and are never normalized.
type NamespaceTag string

// AddressLength is the width of ledger addresses and public keys in bytes.
const AddressLength = 32

// Address is a fixed-width ledger address.
type Address [AddressLength]byte

// String returns the base58 encoding of the address.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether the address is all zeroes.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// OwnerKey is the public identity of a record's owner.
type OwnerKey []byte

// String returns the base58 encoding of the owner key.
func (o OwnerKey) String() string {
	return base58.Encode(o)
}

// Equal reports whether both keys hold the same bytes.
func (o OwnerKey) Equal(other OwnerKey) bool {
	return bytes.Equal(o, other)
}

// MarshalText implements encoding.TextMarshaler.
func (o OwnerKey) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// RecordKey uniquely identifies a record within an owner's namespace.
type RecordKey []byte

// String returns the hex encoding of the record key.
func (k RecordKey) String() string {
	return hex.EncodeToString(k)
}

// Equal reports whether both keys hold the same bytes.
func (k RecordKey) Equal(other RecordKey) bool {
	return bytes.Equal(k, other)
}

// MarshalText implements encoding.TextMarshaler.
func (k RecordKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Payload holds the schema-specific fields of a record, keyed by field name.
type Payload map[string]any

// Record is a single versioned record as stored on the ledger.
type Record struct {
	// Address is where the record is stored.
	Address Address

	// Owner is the owner identity used in the address derivation.
	Owner OwnerKey

	// Key is the record-specific key used in the address derivation.
	Key RecordKey

	// Generation is the namespace tag the record is stored under.
	Generation NamespaceTag

	// Payload carries the decoded record fields.
	Payload Payload
}

// ID returns the campaign log key of the record: "<owner base58>/<key hex>".
func (r Record) ID() string {
	return RecordID(r.Owner, r.Key)
}

// RecordID builds the campaign log key for an owner and record key.
func RecordID(owner OwnerKey, key RecordKey) string {
	return owner.String() + "/" + key.String()
}

// OutcomeKind is the terminal result of one record in a campaign.
type OutcomeKind string

const (
	// OutcomeMigrated indicates the record was relocated and the transition confirmed.
	OutcomeMigrated OutcomeKind = "migrated"

	// OutcomeRemoved indicates a removal request was confirmed.
	OutcomeRemoved OutcomeKind = "removed"

	// OutcomeFailed indicates the record could not be processed. See Outcome.Reason.
	OutcomeFailed OutcomeKind = "failed"

	// OutcomeSkippedAlreadyMigrated indicates the target address already holds the record.
	OutcomeSkippedAlreadyMigrated OutcomeKind = "skipped_already_migrated"

	// OutcomeSkippedAlreadyRemoved indicates the record was gone before removal was submitted.
	OutcomeSkippedAlreadyRemoved OutcomeKind = "skipped_already_removed"

	// OutcomeSkippedPredicateFalse indicates a sweep predicate did not match the record.
	OutcomeSkippedPredicateFalse OutcomeKind = "skipped_predicate_false"
)

// IsSkip reports whether the kind is one of the skip outcomes.
func (k OutcomeKind) IsSkip() bool {
	switch k {
	case OutcomeSkippedAlreadyMigrated, OutcomeSkippedAlreadyRemoved, OutcomeSkippedPredicateFalse:
		return true
	}
	return false
}

// Outcome is the terminal, immutable result recorded for one record.
type Outcome struct {
	// RecordID is the campaign log key, see Record.ID.
	RecordID string `json:"record_id"`

	// Owner and Key identify the record.
	Owner OwnerKey  `json:"owner"`
	Key   RecordKey `json:"key"`

	// Source is the address the record was read from.
	Source Address `json:"source"`

	// Kind is the terminal result.
	Kind OutcomeKind `json:"kind"`

	// NewAddress is set for migrated and skipped_already_migrated outcomes.
	NewAddress Address `json:"new_address"`

	// Receipt is the ledger receipt (transaction signature) of the confirmed request.
	Receipt string `json:"receipt,omitempty"`

	// Reason explains a failed outcome.
	Reason string `json:"reason,omitempty"`

	// Attempts is the number of submissions made for this record.
	Attempts int `json:"attempts"`

	// CompletedAt is when the outcome was decided.
	CompletedAt time.Time `json:"completed_at"`

	// Err classifies a failed outcome for errors.Is checks. It is not persisted.
	Err error `json:"-"`
}

// CampaignKind names the type of campaign.
type CampaignKind string

const (
	// CampaignMigrate introduces a new layout: source generation to target generation.
	CampaignMigrate CampaignKind = "migrate"

	// CampaignRename moves records from the transitional tag back to the canonical tag.
	CampaignRename CampaignKind = "rename"

	// CampaignSweep removes records matching a predicate.
	CampaignSweep CampaignKind = "sweep"
)

// CampaignState represents the lifecycle state of a campaign.
type CampaignState string

const (
	// CampaignStatePending indicates the campaign is registered but not dispatching yet.
	CampaignStatePending CampaignState = "pending"

	// CampaignStateRunning indicates records are being listed and dispatched.
	CampaignStateRunning CampaignState = "running"

	// CampaignStateDraining indicates dispatch stopped and in-flight steps are finishing.
	CampaignStateDraining CampaignState = "draining"

	// CampaignStateCompleted indicates every listed record has an outcome.
	CampaignStateCompleted CampaignState = "completed"

	// CampaignStateCancelled indicates the operator interrupted the campaign.
	CampaignStateCancelled CampaignState = "cancelled"

	// CampaignStateAborted indicates the record source could not be enumerated.
	CampaignStateAborted CampaignState = "aborted"
)

// IsTerminal reports whether no further transitions are expected.
func (s CampaignState) IsTerminal() bool {
	switch s {
	case CampaignStateCompleted, CampaignStateCancelled, CampaignStateAborted:
		return true
	}
	return false
}

// CampaignInfo is the persisted header of a campaign.
type CampaignInfo struct {
	// ID is the unique identifier for this campaign (UUIDv7).
	ID string `json:"id"`

	// Kind is the campaign type.
	Kind CampaignKind `json:"kind"`

	// SourceGeneration is the tag records are listed from.
	SourceGeneration NamespaceTag `json:"source_generation"`

	// TargetGeneration is the tag records are moved to. Empty for sweeps.
	TargetGeneration NamespaceTag `json:"target_generation,omitempty"`

	// State is the current lifecycle state.
	State CampaignState `json:"state"`

	// StartedAt is when the campaign was created.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the campaign reached a terminal state.
	FinishedAt time.Time `json:"finished_at,omitempty"`

	// LastHeartbeat is the last time the running process reported liveness.
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Summary counts the outcomes of a campaign.
type Summary struct {
	Total    int `json:"total"`
	Migrated int `json:"migrated"`
	Removed  int `json:"removed"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Signer authorizes requests submitted to the ledger.
type Signer interface {
	// PublicKey returns the identity that pays for and signs requests.
	PublicKey() Address

	// Sign returns the signature of message.
	Sign(message []byte) ([]byte, error)
}

// PlanAction is what a dry run expects a campaign to do with a record.
type PlanAction string

const (
	PlanMigrate PlanAction = "migrate"
	PlanSkip    PlanAction = "skip"
	PlanRemove  PlanAction = "remove"
	PlanKeep    PlanAction = "keep"
	PlanFail    PlanAction = "fail"
)

// PlannedStep is the dry-run view of one record. Nothing is submitted to produce it.
type PlannedStep struct {
	RecordID string     `json:"record_id"`
	Source   Address    `json:"source"`
	Target   Address    `json:"target"`
	Action   PlanAction `json:"action"`
	Reason   string     `json:"reason,omitempty"`
}
