package predicate

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	migrator "github.com/getpup/ledger-migrator"
)

type celPredicate struct {
	src     string
	program cel.Program
	now     func() time.Time
}

// CEL compiles a Common Expression Language expression into a Predicate.
// The expression is type-checked and must have a boolean result.
func CEL(src string) (Predicate, error) {
	if src == "" {
		return nil, errors.New("expression must not be empty")
	}

	env, err := cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("owner", cel.StringType),
		cel.Variable("key", cel.StringType),
		cel.Variable("address", cel.StringType),
		cel.Variable("generation", cel.StringType),
		cel.Variable("now", cel.IntType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build cel environment: %w", err)
	}

	ast, issues := env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile cel predicate %q: %w", src, issues.Err())
	}
	if out := ast.OutputType().String(); out != "bool" && out != "dyn" {
		return nil, fmt.Errorf("%w: %q has type %s", ErrNotBoolean, src, out)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to plan cel predicate %q: %w", src, err)
	}

	return &celPredicate{src: src, program: program, now: time.Now}, nil
}

func (p *celPredicate) Match(rec migrator.Record) (bool, error) {
	out, _, err := p.program.Eval(environment(rec, p.now()))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate %q: %w", p.src, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q returned %T", ErrNotBoolean, p.src, out.Value())
	}
	return b, nil
}

func (p *celPredicate) String() string {
	return "cel(" + p.src + ")"
}
