// Command ledger-migrate runs migration, rename and sweep campaigns over ledger records.
package main

import (
	"fmt"
	"os"

	"github.com/getpup/ledger-migrator/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
