// Package memory provides an in-process simulated ledger.
//
// It models the parts of the real ledger the migrator depends on: records at derived
// addresses, a block height that advances with every submission, finality references
// that lapse after a fixed window, seed constraints on relocation destinations and
// rejection codes. Fault injection hooks let tests and rehearsals exercise expiries,
// rejections and listing failures.
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	migrator "github.com/getpup/ledger-migrator"
	"github.com/getpup/ledger-migrator/address"
	"github.com/getpup/ledger-migrator/ledger"
)

// DefaultValidityWindow is the number of blocks a finality reference stays valid.
const DefaultValidityWindow = 150

// Rejection codes reported by the simulated ledger.
const (
	CodeAccountInUse          = "AccountAlreadyInUse"
	CodeAccountNotInitialized = "AccountNotInitialized"
	CodeConstraintSeeds       = "ConstraintSeeds"
	CodeUnauthorized          = "ConstraintHasOne"
)

// ErrUnknownHandle indicates AwaitStatus was called with a handle this ledger never issued.
var ErrUnknownHandle = errors.New("unknown submission handle")

// Config configures the simulated ledger.
type Config struct {
	// Program is the program identity addresses are derived under.
	Program migrator.Address

	// ValidityWindow is the number of blocks a finality reference stays valid (default: 150).
	ValidityWindow uint64

	// Authority, when set, is the only signer allowed to submit requests.
	Authority migrator.Address

	// Preflight makes Submit return rejections as *migrator.RejectedError
	// instead of reporting them through AwaitStatus.
	Preflight bool

	// RetainSources leaves relocated source records in place, inert, instead of closing them.
	RetainSources bool
}

// Ledger is a thread-safe in-memory ledger.
//
// The hook fields must be set before the ledger is shared between goroutines.
type Ledger struct {
	// RejectFunc, if set, is consulted for every submission. A non-empty code rejects it.
	RejectFunc func(req ledger.Request) string

	// DropFunc, if set, drops matching submissions: they never land and report expired.
	DropFunc func(req ledger.Request) bool

	// LateFunc, if set, applies matching submissions but reports them expired,
	// as when a request lands after the client gave up on it.
	LateFunc func(req ledger.Request) bool

	// ListErrFunc, if set, can fail a listing call.
	ListErrFunc func(tag migrator.NamespaceTag, page ledger.PageRequest) error

	config  Config
	deriver *address.Deriver

	mu       sync.RWMutex
	records  map[migrator.Address]migrator.Record
	statuses map[string]ledger.Status
	height   uint64
	seq      int
}

// Compile-time check that Ledger implements ledger.Ledger.
var _ ledger.Ledger = (*Ledger)(nil)

// New creates an empty simulated ledger.
func New(cfg Config) *Ledger {
	if cfg.ValidityWindow == 0 {
		cfg.ValidityWindow = DefaultValidityWindow
	}

	return &Ledger{
		config:   cfg,
		deriver:  address.NewDeriver(cfg.Program),
		records:  make(map[migrator.Address]migrator.Record),
		statuses: make(map[string]ledger.Status),
		height:   1,
	}
}

// Put stores a record under tag at its derived address.
// Returns migrator.ErrInvalidKeyShape if the seeds are invalid.
func (l *Ledger) Put(tag migrator.NamespaceTag, owner migrator.OwnerKey, key migrator.RecordKey, payload migrator.Payload) (migrator.Record, error) {
	addr, err := l.deriver.Derive(tag, owner, key)
	if err != nil {
		return migrator.Record{}, err
	}

	rec := migrator.Record{
		Address:    addr,
		Owner:      append(migrator.OwnerKey(nil), owner...),
		Key:        append(migrator.RecordKey(nil), key...),
		Generation: tag,
		Payload:    payload,
	}
	l.Insert(rec)
	return rec, nil
}

// Insert stores rec at rec.Address as-is, without checking the derivation.
func (l *Ledger) Insert(rec migrator.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[rec.Address] = rec
}

// Records returns the records stored under tag, ordered by address.
func (l *Ledger) Records(tag migrator.NamespaceTag) []migrator.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sorted(tag)
}

// Height returns the current block height.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.height
}

// Advance moves the block height forward by n blocks.
func (l *Ledger) Advance(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.height += n
}

// List returns one page of the records stored under tag, ordered by address.
// The cursor is the base58 address of the last record of the previous page.
func (l *Ledger) List(ctx context.Context, tag migrator.NamespaceTag, page ledger.PageRequest) (ledger.Page, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Page{}, err
	}
	if l.ListErrFunc != nil {
		if err := l.ListErrFunc(tag, page); err != nil {
			return ledger.Page{}, err
		}
	}

	var after migrator.Address
	if page.After != "" {
		cursor, err := address.ParseAddress(page.After)
		if err != nil {
			return ledger.Page{}, fmt.Errorf("invalid cursor: %w", err)
		}
		after = cursor
	}

	limit := page.Limit
	if limit <= 0 {
		limit = ledger.DefaultPageSize
	}

	l.mu.RLock()
	all := l.sorted(tag)
	l.mu.RUnlock()

	start := 0
	if page.After != "" {
		start = sort.Search(len(all), func(i int) bool {
			return bytes.Compare(all[i].Address[:], after[:]) > 0
		})
	}

	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	result := ledger.Page{Records: all[start:end]}
	if end < len(all) {
		result.Next = all[end-1].Address.String()
	}
	return result, nil
}

// Get returns the record stored at addr.
func (l *Ledger) Get(ctx context.Context, addr migrator.Address) (migrator.Record, error) {
	if err := ctx.Err(); err != nil {
		return migrator.Record{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[addr]
	if !ok {
		return migrator.Record{}, migrator.ErrRecordNotFound
	}
	return rec, nil
}

// LatestFinality returns a reference valid for the configured window from the current height.
func (l *Ledger) LatestFinality(ctx context.Context) (ledger.FinalityRef, error) {
	if err := ctx.Err(); err != nil {
		return ledger.FinalityRef{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	return ledger.FinalityRef{
		Hash:            fmt.Sprintf("block-%d", l.height),
		LastValidHeight: l.height + l.config.ValidityWindow,
	}, nil
}

// Submit processes req atomically and records its final status.
// Every submission advances the block height by one.
func (l *Ledger) Submit(ctx context.Context, req ledger.Request, ref ledger.FinalityRef) (ledger.Handle, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Handle{}, err
	}
	if req.Signer == nil {
		return ledger.Handle{}, errors.New("request is not signed")
	}

	var code string
	if l.RejectFunc != nil {
		code = l.RejectFunc(req)
	}
	dropped := l.DropFunc != nil && l.DropFunc(req)
	late := l.LateFunc != nil && l.LateFunc(req)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.height++
	if code == "" && !dropped && l.height <= ref.LastValidHeight {
		code = l.validate(req)
	}

	if code != "" && l.config.Preflight {
		return ledger.Handle{}, &migrator.RejectedError{Code: code}
	}

	l.seq++
	h := ledger.Handle{ID: fmt.Sprintf("sig-%06d", l.seq), Finality: ref}

	switch {
	case code != "":
		l.statuses[h.ID] = ledger.Status{State: ledger.StatusRejected, Code: code}
	case dropped || l.height > ref.LastValidHeight:
		l.statuses[h.ID] = ledger.Status{State: ledger.StatusExpired}
	default:
		l.apply(req)
		if late {
			l.statuses[h.ID] = ledger.Status{State: ledger.StatusExpired}
		} else {
			l.statuses[h.ID] = ledger.Status{State: ledger.StatusConfirmed}
		}
	}

	return h, nil
}

// AwaitStatus returns the final status of a submission.
func (l *Ledger) AwaitStatus(ctx context.Context, h ledger.Handle) (ledger.Status, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Status{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	status, ok := l.statuses[h.ID]
	if !ok {
		return ledger.Status{}, fmt.Errorf("%w: %s", ErrUnknownHandle, h.ID)
	}
	return status, nil
}

// validate returns the rejection code for req, or "" if it can be applied.
// Must be called with l.mu held.
func (l *Ledger) validate(req ledger.Request) string {
	if !l.config.Authority.IsZero() && req.Signer.PublicKey() != l.config.Authority {
		return CodeUnauthorized
	}

	src, ok := l.records[req.Source.Address]
	if !ok || src.Generation != req.Source.Generation {
		return CodeAccountNotInitialized
	}

	if req.Kind == ledger.RequestRemove {
		return ""
	}

	expected, err := l.deriver.Derive(req.TargetGeneration, src.Owner, src.Key)
	if err != nil || expected != req.Destination {
		return CodeConstraintSeeds
	}
	if _, taken := l.records[req.Destination]; taken {
		return CodeAccountInUse
	}
	return ""
}

// apply performs a validated transition. Must be called with l.mu held.
func (l *Ledger) apply(req ledger.Request) {
	src := l.records[req.Source.Address]
	if req.Kind == ledger.RequestRemove || !l.config.RetainSources {
		delete(l.records, req.Source.Address)
	}

	if req.Kind == ledger.RequestRemove {
		return
	}

	src.Address = req.Destination
	src.Generation = req.TargetGeneration
	l.records[req.Destination] = src
}

// sorted returns tag's records ordered by address. Must be called with l.mu held.
func (l *Ledger) sorted(tag migrator.NamespaceTag) []migrator.Record {
	var result []migrator.Record
	for _, rec := range l.records {
		if rec.Generation == tag {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].Address[:], result[j].Address[:]) < 0
	})
	return result
}
