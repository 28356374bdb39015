package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	rootpkg "github.com/getpup/ledger-migrator"
	"github.com/getpup/ledger-migrator/predicate"
	"github.com/getpup/ledger-migrator/report"
)

// DefaultCutoffField is the payload field compared against --before.
const DefaultCutoffField = "orderTime"

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions
	Before      string
	Field       string
	Where       string
	Engine      string
	Concurrency int
	DryRun      bool
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep <generation>",
		Short: "Remove records older than a cutoff",
		Long: `Remove every record of a generation whose cutoff field is earlier than --before.
An optional --where expression narrows the selection further; it sees the decoded
payload as "record" and the current unix time as "now".

Records that do not match are reported as skipped and never touched.

Example:
  ledger-migrate sweep order --before 2024-01-01T00:00:00Z --config migrator.yaml
  ledger-migrate sweep order --before 1704067200 --where 'record.status == "completed"'
  ledger-migrate sweep order --before 1704067200 --engine cel --where 'record.price > 0' --dry-run`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, opts, rootpkg.NamespaceTag(args[0]))
		},
	}

	cmd.Flags().StringVar(&opts.Before, "before", "", "cutoff as RFC 3339 or unix seconds (required)")
	cmd.Flags().StringVar(&opts.Field, "field", DefaultCutoffField, "payload field holding the record's timestamp")
	cmd.Flags().StringVar(&opts.Where, "where", "", "additional predicate expression")
	cmd.Flags().StringVar(&opts.Engine, "engine", string(predicate.EngineExpr), "expression engine for --where (expr|cel)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "steps in flight (default: campaign.concurrency from the config)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "list the records that would be removed without submitting")
	_ = cmd.MarkFlagRequired("before")

	return cmd
}

// ParseCutoff reads an RFC 3339 timestamp or unix seconds.
func ParseCutoff(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cutoff %q: must be RFC 3339 or unix seconds", s)
	}
	return time.Unix(n, 0).UTC(), nil
}

// buildPredicate combines the cutoff with the optional --where expression.
func buildPredicate(opts *SweepOptions) (predicate.Predicate, error) {
	cutoff, err := ParseCutoff(opts.Before)
	if err != nil {
		return nil, err
	}
	if opts.Field == "" {
		return nil, fmt.Errorf("--field must not be empty")
	}

	pred := predicate.Before(opts.Field, cutoff)
	if opts.Where == "" {
		return pred, nil
	}

	where, err := predicate.Compile(predicate.Engine(opts.Engine), opts.Where)
	if err != nil {
		return nil, err
	}
	return predicate.All(pred, where), nil
}

func runSweep(cmd *cobra.Command, opts *SweepOptions, tag rootpkg.NamespaceTag) error {
	if opts.Concurrency < 0 {
		return NewExitError(ExitCommandError, "--concurrency must not be negative")
	}

	pred, err := buildPredicate(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid sweep predicate", err)
	}

	env, err := setup(commandContext(cmd), cmd, opts.RootOptions, true)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd, env.logger)
	defer cancel()
	defer env.close(ctx)

	m, err := env.migrator(opts.Concurrency)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create migrator", err)
	}

	format := report.Format(opts.Format)

	if opts.DryRun {
		steps, err := m.PlanSweep(ctx, tag, pred)
		if err != nil {
			return planError(err)
		}
		return report.WritePlan(cmd.OutOrStdout(), format, rootpkg.CampaignSweep, tag, "", steps)
	}

	c, runErr := m.Sweep(ctx, tag, pred, opts.Concurrency)
	if c == nil {
		return WrapExitError(ExitCommandError, "failed to start sweep", runErr)
	}
	if err := report.WriteCampaign(cmd.OutOrStdout(), format, c); err != nil {
		return WrapExitError(ExitCommandError, "failed to write report", err)
	}
	return campaignResult(c, runErr)
}
