// Package source enumerates the records stored under a namespace tag.
//
// Listing is lazy and paged: records are fetched a page at a time as the iterator
// advances, so campaigns never hold a whole generation in memory. Calling List again
// restarts the enumeration from the beginning.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/getpup/pupsourcing/es"

	migrator "github.com/getpup/ledger-migrator"
	"github.com/getpup/ledger-migrator/ledger"
)

// Iterator yields records one at a time.
//
//	it := src.List("machine")
//	defer it.Close()
//	for it.Next(ctx) {
//		rec := it.Record()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator interface {
	// Next advances to the next record. Returns false when the listing is
	// exhausted or failed; check Err to tell them apart.
	Next(ctx context.Context) bool

	// Record returns the current record.
	Record() migrator.Record

	// Err returns the error that stopped the iteration, if any.
	Err() error

	// Close releases the iterator. Next returns false afterwards.
	Close() error
}

// Source lists the records of a generation.
type Source interface {
	List(tag migrator.NamespaceTag) Iterator
}

// Config configures the ledger-backed record source.
type Config struct {
	// Ledger is the ledger to list from (required).
	Ledger ledger.Ledger

	// PageSize is the number of records fetched per page (default: 100).
	PageSize int

	// Logger is an optional logger for observability.
	Logger es.Logger
}

// Lister lists records from a ledger.
type Lister struct {
	config Config
}

// Compile-time check that Lister implements Source.
var _ Source = (*Lister)(nil)

// New creates a Lister with the given configuration.
func New(cfg Config) *Lister {
	if cfg.PageSize <= 0 {
		cfg.PageSize = ledger.DefaultPageSize
	}
	return &Lister{config: cfg}
}

// List starts a new enumeration of the records stored under tag.
func (l *Lister) List(tag migrator.NamespaceTag) Iterator {
	return &pageIterator{
		ledger:   l.config.Ledger,
		tag:      tag,
		pageSize: l.config.PageSize,
		logger:   l.config.Logger,
	}
}

// ListAll drains a full enumeration of tag into memory.
// Intended for dry runs and small generations.
func (l *Lister) ListAll(ctx context.Context, tag migrator.NamespaceTag) ([]migrator.Record, error) {
	it := l.List(tag)
	defer func() { _ = it.Close() }()

	var records []migrator.Record
	for it.Next(ctx) {
		records = append(records, it.Record())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

type pageIterator struct {
	ledger   ledger.Ledger
	tag      migrator.NamespaceTag
	pageSize int
	logger   es.Logger

	buf     []migrator.Record
	current migrator.Record
	cursor  string
	pages   int
	done    bool
	closed  bool
	err     error
}

func (it *pageIterator) Next(ctx context.Context) bool {
	if it.closed || it.err != nil {
		return false
	}

	for len(it.buf) == 0 {
		if it.done {
			return false
		}
		if err := it.fetch(ctx); err != nil {
			it.err = err
			return false
		}
	}

	it.current = it.buf[0]
	it.buf = it.buf[1:]
	return true
}

func (it *pageIterator) fetch(ctx context.Context) error {
	page, err := it.ledger.List(ctx, it.tag, ledger.PageRequest{After: it.cursor, Limit: it.pageSize})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if errors.Is(err, migrator.ErrUnsupportedGeneration) {
			return fmt.Errorf("failed to list %q: %w", it.tag, err)
		}
		if it.logger != nil {
			it.logger.Error(ctx, "record listing failed", "tag", it.tag, "page", it.pages, "error", err)
		}
		return fmt.Errorf("%w: failed to list %q: %w", migrator.ErrSourceUnavailable, it.tag, err)
	}

	it.pages++
	it.buf = page.Records
	it.cursor = page.Next
	it.done = page.Next == ""

	if it.logger != nil {
		it.logger.Debug(ctx, "fetched record page", "tag", it.tag, "page", it.pages, "records", len(page.Records))
	}
	return nil
}

func (it *pageIterator) Record() migrator.Record {
	return it.current
}

func (it *pageIterator) Err() error {
	return it.err
}

func (it *pageIterator) Close() error {
	it.closed = true
	it.buf = nil
	return nil
}
