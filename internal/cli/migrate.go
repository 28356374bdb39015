package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	rootpkg "github.com/getpup/ledger-migrator"
	"github.com/getpup/ledger-migrator/pkg/migrator"
	"github.com/getpup/ledger-migrator/report"
)

// MigrateOptions holds flags for the migrate and rename commands.
type MigrateOptions struct {
	*RootOptions
	Concurrency int
	DryRun      bool
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate <source-generation> <target-generation>",
		Short: "Move every record of a generation to the new layout",
		Long: `Move every record stored under the source generation to the address derived for
the target generation.

Records whose target already exists are skipped, so an interrupted campaign can
simply be run again.

Example:
  ledger-migrate migrate order order-new --config migrator.yaml
  ledger-migrate migrate machine machine-new --concurrency 16 --dry-run`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(cmd, opts, rootpkg.CampaignMigrate, args[0], args[1])
		},
	}

	addMigrateFlags(cmd, opts)
	return cmd
}

// NewRenameCommand creates the rename command.
func NewRenameCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rename <transitional-generation> <canonical-generation>",
		Short: "Move records from the transitional tag back to the canonical tag",
		Long: `Move records from the transitional generation back to the canonical one once
the old layout has been retired. Uses the same idempotency rules as migrate.

Example:
  ledger-migrate rename order-new order --config migrator.yaml`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(cmd, opts, rootpkg.CampaignRename, args[0], args[1])
		},
	}

	addMigrateFlags(cmd, opts)
	return cmd
}

func addMigrateFlags(cmd *cobra.Command, opts *MigrateOptions) {
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "steps in flight (default: campaign.concurrency from the config)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "list the records and their target addresses without submitting")
}

func runMigration(cmd *cobra.Command, opts *MigrateOptions, kind rootpkg.CampaignKind, from, to string) error {
	if opts.Concurrency < 0 {
		return NewExitError(ExitCommandError, "--concurrency must not be negative")
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

	source, target := rootpkg.NamespaceTag(from), rootpkg.NamespaceTag(to)
	format := report.Format(opts.Format)

	if opts.DryRun {
		steps, err := m.Plan(ctx, source, target)
		if err != nil {
			return planError(err)
		}
		return report.WritePlan(cmd.OutOrStdout(), format, kind, source, target, steps)
	}

	c, runErr := run(ctx, m, kind, source, target, opts.Concurrency)
	if c == nil {
		return WrapExitError(ExitCommandError, "failed to start campaign", runErr)
	}
	if err := report.WriteCampaign(cmd.OutOrStdout(), format, c); err != nil {
		return WrapExitError(ExitCommandError, "failed to write report", err)
	}
	return campaignResult(c, runErr)
}

func run(ctx context.Context, m *migrator.Migrator, kind rootpkg.CampaignKind, source, target rootpkg.NamespaceTag, concurrency int) (*rootpkg.Campaign, error) {
	if kind == rootpkg.CampaignRename {
		return m.RunRenameCampaign(ctx, source, target, concurrency)
	}
	return m.RunCampaign(ctx, source, target, concurrency)
}

// planError classifies a dry-run failure: bad arguments are command errors,
// an unreadable ledger is a failure.
func planError(err error) error {
	if isArgumentError(err) {
		return WrapExitError(ExitCommandError, "invalid generations", err)
	}
	return WrapExitError(ExitFailure, "dry run failed", err)
}

func isArgumentError(err error) bool {
	return errors.Is(err, rootpkg.ErrSameGeneration) ||
		errors.Is(err, rootpkg.ErrInvalidGeneration) ||
		errors.Is(err, rootpkg.ErrUnsupportedGeneration)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
