// Package rpc implements the ledger interface against a node's JSON-RPC API.
//
// Records are program accounts identified by an 8-byte type discriminator. Listing
// fetches the matching addresses without data, then loads one page at a time with
// getMultipleAccounts. Relocations and removals are sent as single-instruction
// transactions signed by the configured signer, and confirmation follows the
// blockhash validity window: a transaction not seen by the time the block height
// passes lastValidBlockHeight is expired.
package rpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/getpup/pupsourcing/es"

	migrator "github.com/getpup/ledger-migrator"
	"github.com/getpup/ledger-migrator/address"
	"github.com/getpup/ledger-migrator/ledger"
)

// MaxPageSize is the largest number of accounts fetched per getMultipleAccounts call.
const MaxPageSize = 100

// Commitment levels.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// CodeUnsupportedTransition rejects requests no configured instruction can carry out.
const CodeUnsupportedTransition = "UnsupportedTransition"

var (
	// ErrUnknownGeneration indicates a listing for a tag without an account layout.
	// It matches migrator.ErrUnsupportedGeneration.
	ErrUnknownGeneration = fmt.Errorf("%w: no account layout", migrator.ErrUnsupportedGeneration)

	// ErrEndpointRequired indicates the node endpoint is missing.
	ErrEndpointRequired = errors.New("rpc endpoint is required")
)

// Config configures the JSON-RPC ledger.
type Config struct {
	// Endpoint is the node's JSON-RPC URL (required).
	Endpoint string

	// Program is the program that owns the records (required).
	Program migrator.Address

	// HTTPClient is used for all calls (default: a client with a 30s timeout).
	HTTPClient *http.Client

	// Commitment is the commitment level reads and confirmations use (default: confirmed).
	Commitment string

	// PollInterval is the delay between status polls (default: 500ms).
	PollInterval time.Duration

	// Layouts maps generations to account layouts (default: DefaultLayouts()).
	Layouts []Layout

	// Instructions maps requests to program instructions (default: DefaultInstructions()).
	Instructions Instructions

	// Logger is an optional logger for observability.
	Logger es.Logger
}

// Ledger is a ledger.Ledger backed by a JSON-RPC node.
type Ledger struct {
	config  Config
	client  *Client
	byTag   map[migrator.NamespaceTag]Layout
	byDisc  map[[DiscriminatorSize]byte]Layout
	program string
}

// Compile-time check that Ledger implements ledger.Ledger.
var _ ledger.Ledger = (*Ledger)(nil)

// New creates a JSON-RPC ledger, applying defaults for unset fields.
func New(cfg Config) (*Ledger, error) {
	if cfg.Endpoint == "" {
		return nil, ErrEndpointRequired
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Commitment == "" {
		cfg.Commitment = CommitmentConfirmed
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if len(cfg.Layouts) == 0 {
		cfg.Layouts = DefaultLayouts()
	}
	if cfg.Instructions.Relocate == nil && cfg.Instructions.Remove == nil {
		cfg.Instructions = DefaultInstructions()
	}

	l := &Ledger{
		config:  cfg,
		client:  NewClient(cfg.Endpoint, cfg.HTTPClient, cfg.Logger),
		byTag:   make(map[migrator.NamespaceTag]Layout, len(cfg.Layouts)),
		byDisc:  make(map[[DiscriminatorSize]byte]Layout, len(cfg.Layouts)),
		program: cfg.Program.String(),
	}
	for _, layout := range cfg.Layouts {
		if _, dup := l.byTag[layout.Tag]; dup {
			return nil, fmt.Errorf("duplicate account layout for %q", layout.Tag)
		}
		l.byTag[layout.Tag] = layout
		l.byDisc[layout.Discriminator()] = layout
	}
	return l, nil
}

// Client returns the underlying JSON-RPC client.
func (l *Ledger) Client() *Client {
	return l.client
}

// List returns one page of the accounts stored under tag, ordered by address.
// The cursor is the base58 address of the last record of the previous page.
// Accounts that cannot be decoded are logged and left out.
func (l *Ledger) List(ctx context.Context, tag migrator.NamespaceTag, page ledger.PageRequest) (ledger.Page, error) {
	layout, ok := l.byTag[tag]
	if !ok {
		return ledger.Page{}, fmt.Errorf("%w: %q", ErrUnknownGeneration, tag)
	}

	disc := layout.Discriminator()
	keys, err := l.client.ProgramAccountKeys(ctx, l.config.Program, disc[:], l.config.Commitment)
	if err != nil {
		return ledger.Page{}, err
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})

	start := 0
	if page.After != "" {
		after, err := address.ParseAddress(page.After)
		if err != nil {
			return ledger.Page{}, fmt.Errorf("invalid cursor: %w", err)
		}
		start = sort.Search(len(keys), func(i int) bool {
			return bytes.Compare(keys[i][:], after[:]) > 0
		})
	}

	limit := page.Limit
	if limit <= 0 {
		limit = ledger.DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	end := start + limit
	if end > len(keys) {
		end = len(keys)
	}

	batch := keys[start:end]
	var result ledger.Page
	if end < len(keys) {
		result.Next = batch[len(batch)-1].String()
	}
	if len(batch) == 0 {
		return result, nil
	}

	accounts, err := l.client.MultipleAccounts(ctx, batch, l.config.Commitment)
	if err != nil {
		return ledger.Page{}, err
	}

	for i, acc := range accounts {
		// closed between the two calls
		if acc == nil {
			continue
		}
		data, err := acc.Bytes()
		if err == nil {
			var rec migrator.Record
			rec, err = layout.Decode(batch[i], data)
			if err == nil {
				result.Records = append(result.Records, rec)
				continue
			}
		}
		if l.config.Logger != nil {
			l.config.Logger.Error(ctx, "skipping undecodable account",
				"address", batch[i].String(), "generation", tag, "error", err)
		}
	}
	return result, nil
}

// Get loads and decodes the account at addr.
func (l *Ledger) Get(ctx context.Context, addr migrator.Address) (migrator.Record, error) {
	acc, err := l.client.AccountInfo(ctx, addr, l.config.Commitment)
	if err != nil {
		return migrator.Record{}, err
	}
	if acc == nil {
		return migrator.Record{}, migrator.ErrRecordNotFound
	}

	data, err := acc.Bytes()
	if err != nil {
		return migrator.Record{}, fmt.Errorf("account %s: failed to decode data: %w", addr, err)
	}
	if len(data) == 0 {
		return migrator.Record{}, migrator.ErrRecordNotFound
	}
	if acc.Owner != l.program {
		return migrator.Record{}, fmt.Errorf("account %s is owned by %s, not by the program", addr, acc.Owner)
	}
	if len(data) < DiscriminatorSize {
		return migrator.Record{}, fmt.Errorf("account %s: %w", addr, ErrUnknownAccount)
	}

	layout, ok := l.byDisc[[DiscriminatorSize]byte(data[:DiscriminatorSize])]
	if !ok {
		return migrator.Record{}, fmt.Errorf("account %s: %w", addr, ErrUnknownAccount)
	}
	return layout.Decode(addr, data)
}

// LatestFinality fetches the latest blockhash and its last valid block height.
func (l *Ledger) LatestFinality(ctx context.Context) (ledger.FinalityRef, error) {
	hash, lastValid, err := l.client.LatestBlockhash(ctx, l.config.Commitment)
	if err != nil {
		return ledger.FinalityRef{}, err
	}
	return ledger.FinalityRef{Hash: hash, LastValidHeight: lastValid}, nil
}

// Submit signs and sends the transaction carrying req.
// Preflight failures are returned as *migrator.RejectedError, except an unknown
// blockhash, which is reported as an expired submission.
func (l *Ledger) Submit(ctx context.Context, req ledger.Request, ref ledger.FinalityRef) (ledger.Handle, error) {
	if req.Signer == nil {
		return ledger.Handle{}, errors.New("request is not signed")
	}

	ix, ok := l.config.Instructions.Build(l.config.Program, req)
	if !ok {
		return ledger.Handle{}, &migrator.RejectedError{Code: CodeUnsupportedTransition}
	}

	tx, sig, err := signTransaction(req.Signer, ix, ref.Hash)
	if err != nil {
		return ledger.Handle{}, err
	}

	sent, err := l.client.SendTransaction(ctx, tx, l.config.Commitment)
	if err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) && rpcErr.Code == CodePreflightFailure {
			code := preflightCode(rpcErr)
			if code == "BlockhashNotFound" {
				return ledger.Handle{}, fmt.Errorf("%w: blockhash %s not found", migrator.ErrSubmissionExpired, ref.Hash)
			}
			return ledger.Handle{}, &migrator.RejectedError{Code: code}
		}
		return ledger.Handle{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	if sent != sig && l.config.Logger != nil {
		l.config.Logger.Info(ctx, "node returned unexpected signature", "expected", sig, "got", sent)
	}

	if l.config.Logger != nil {
		l.config.Logger.Debug(ctx, "transaction sent",
			"signature", sent, "kind", req.Kind, "recordID", req.Source.ID(), "lastValidHeight", ref.LastValidHeight)
	}
	return ledger.Handle{ID: sent, Finality: ref}, nil
}

// AwaitStatus polls the transaction status until it reaches the configured commitment,
// fails, or the block height passes the handle's last valid height.
func (l *Ledger) AwaitStatus(ctx context.Context, h ledger.Handle) (ledger.Status, error) {
	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		status, done, err := l.checkStatus(ctx, h.ID)
		if err != nil || done {
			return status, err
		}

		height, err := l.client.BlockHeight(ctx, l.config.Commitment)
		if err != nil {
			return ledger.Status{}, err
		}
		if height > h.Finality.LastValidHeight {
			// The transaction may have landed between the two calls.
			status, done, err := l.checkStatus(ctx, h.ID)
			if err != nil || done {
				return status, err
			}
			return ledger.Status{State: ledger.StatusExpired}, nil
		}

		select {
		case <-ctx.Done():
			return ledger.Status{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Ledger) checkStatus(ctx context.Context, sig string) (ledger.Status, bool, error) {
	st, err := l.client.SignatureStatus(ctx, sig)
	if err != nil {
		return ledger.Status{}, false, err
	}
	if st == nil {
		return ledger.Status{}, false, nil
	}
	if st.Failed() {
		return ledger.Status{State: ledger.StatusRejected, Code: rejectionCode(st.Err)}, true, nil
	}
	if reached(st.ConfirmationStatus, l.config.Commitment) {
		return ledger.Status{State: ledger.StatusConfirmed}, true, nil
	}
	return ledger.Status{}, false, nil
}

// reached reports whether a transaction at status satisfies the commitment level.
func reached(status, commitment string) bool {
	rank := map[string]int{CommitmentProcessed: 1, CommitmentConfirmed: 2, CommitmentFinalized: 3}
	return rank[status] > 0 && rank[status] >= rank[commitment]
}
