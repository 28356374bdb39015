package executor

import (
	"context"

	migrator "github.com/getpup/ledger-migrator"
)

// Runner executes the ledger transition for a single record.
// This interface allows for mock implementations in tests.
//
// Runners never return errors: every result, including failures, is a terminal Outcome.
type Runner interface {
	// Migrate relocates rec to its derived address under target.
	Migrate(ctx context.Context, rec migrator.Record, target migrator.NamespaceTag) migrator.Outcome

	// Remove removes rec from the ledger.
	Remove(ctx context.Context, rec migrator.Record) migrator.Outcome
}
