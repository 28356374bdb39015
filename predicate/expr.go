package predicate

import (
	"errors"
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	migrator "github.com/getpup/ledger-migrator"
)

type exprPredicate struct {
	src     string
	program *vm.Program
	now     func() time.Time
}

// Expr compiles an expr-lang expression into a Predicate.
// The expression must evaluate to a boolean.
func Expr(src string) (Predicate, error) {
	if src == "" {
		return nil, errors.New("expression must not be empty")
	}

	program, err := expr.Compile(src,
		expr.Env(environment(migrator.Record{}, time.Time{})),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expr predicate %q: %w", src, err)
	}

	return &exprPredicate{src: src, program: program, now: time.Now}, nil
}

func (p *exprPredicate) Match(rec migrator.Record) (bool, error) {
	out, err := expr.Run(p.program, environment(rec, p.now()))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate %q: %w", p.src, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q returned %T", ErrNotBoolean, p.src, out)
	}
	return b, nil
}

func (p *exprPredicate) String() string {
	return "expr(" + p.src + ")"
}
