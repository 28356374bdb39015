package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/getpup/ledger-migrator/report"
	"github.com/getpup/ledger-migrator/store"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [campaign-id]",
		Short: "Show recorded campaigns or one campaign's outcomes",
		Long: `Without arguments, list the campaigns in the configured store, most recent first.
With a campaign id, print that campaign's outcome log and its failed records.

The memory store only lives for one command, so status needs a database store.

Example:
  ledger-migrate status --config migrator.yaml
  ledger-migrate status 0190f1d2-7a3b-7c4d-8e5f-0123456789ab --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, rootOpts, args)
		},
	}

	return cmd
}

func runStatus(cmd *cobra.Command, opts *RootOptions, args []string) error {
	ctx := commandContext(cmd)
	env, err := setup(ctx, cmd, opts, false)
	if err != nil {
		return err
	}
	defer env.close(ctx)

	format := report.Format(opts.Format)

	if len(args) == 0 {
		campaigns, err := env.store.ListCampaigns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list campaigns", err)
		}
		return report.WriteCampaigns(cmd.OutOrStdout(), format, campaigns)
	}

	c, err := store.Load(ctx, env.store, args[0])
	if errors.Is(err, store.ErrCampaignNotFound) {
		return WrapExitError(ExitCommandError, "unknown campaign", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load campaign", err)
	}

	if err := report.WriteCampaign(cmd.OutOrStdout(), format, c); err != nil {
		return WrapExitError(ExitCommandError, "failed to write report", err)
	}
	if !c.Succeeded() {
		return NewExitError(ExitFailure, "campaign did not succeed")
	}
	return nil
}
