package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rootpkg "github.com/getpup/ledger-migrator"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "ledger-migrate", cmd.Use)
	assert.Contains(t, cmd.Long, "idempotent")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"migrate", "rename", "sweep", "status"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestMigrateCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"migrate", "rename"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)

		concurrency := sub.Flags().Lookup("concurrency")
		require.NotNil(t, concurrency)
		assert.Equal(t, "0", concurrency.DefValue)

		dryRun := sub.Flags().Lookup("dry-run")
		require.NotNil(t, dryRun)
		assert.Equal(t, "false", dryRun.DefValue)
	}
}

func TestSweepCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	sweepCmd, _, err := cmd.Find([]string{"sweep"})
	require.NoError(t, err)

	before := sweepCmd.Flags().Lookup("before")
	require.NotNil(t, before)
	assert.Equal(t, "", before.DefValue)

	field := sweepCmd.Flags().Lookup("field")
	require.NotNil(t, field)
	assert.Equal(t, "orderTime", field.DefValue)

	engine := sweepCmd.Flags().Lookup("engine")
	require.NotNil(t, engine)
	assert.Equal(t, "expr", engine.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"status", "--format", "yaml"})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "failed")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad", errors.New("cause"))))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("unknown flag: --nope")))
}

func TestExitError(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapExitError(ExitCommandError, "failed to open campaign store", cause)

	assert.Equal(t, "failed to open campaign store: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "plain", NewExitError(ExitFailure, "plain").Error())
}

func TestCampaignResult(t *testing.T) {
	failed := rootpkg.NewCampaign(rootpkg.CampaignMigrate, "order", "order-new")
	require.NoError(t, failed.Record(rootpkg.Outcome{RecordID: "a/01", Kind: rootpkg.OutcomeFailed}))

	tests := []struct {
		name     string
		campaign *rootpkg.Campaign
		err      error
		want     int
	}{
		{name: "success", campaign: rootpkg.NewCampaign(rootpkg.CampaignMigrate, "order", "order-new"), want: ExitSuccess},
		{name: "failed records", campaign: failed, want: ExitFailure},
		{name: "cancelled", err: context.Canceled, want: ExitFailure},
		{name: "source unavailable", err: fmt.Errorf("failed to list: %w", rootpkg.ErrSourceUnavailable), want: ExitFailure},
		{name: "unsupported generation", err: fmt.Errorf("failed to list: %w", rootpkg.ErrUnsupportedGeneration), want: ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(campaignResult(tt.campaign, tt.err)))
		})
	}
}

func TestPlanError(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(planError(rootpkg.ErrSameGeneration)))
	assert.Equal(t, ExitCommandError, GetExitCode(planError(fmt.Errorf("x: %w", rootpkg.ErrUnsupportedGeneration))))
	assert.Equal(t, ExitFailure, GetExitCode(planError(rootpkg.ErrSourceUnavailable)))
}
