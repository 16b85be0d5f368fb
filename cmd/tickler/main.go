// Command tickler is the tickler CLI. It keeps a local cache of the user's
// tasks, applies edits to it immediately and syncs them with the server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/tickler/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts globalOptions
	rootCmd := &cobra.Command{
		Use:           "tickler",
		Short:         "tickler - local-first reminders",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(rootCmd)

	rootCmd.AddCommand(
		lsCmd(&opts),
		showCmd(&opts),
		addCmd(&opts),
		editCmd(&opts),
		doneCmd(&opts),
		reopenCmd(&opts),
		flagCmd(&opts),
		pauseCmd(&opts),
		rmCmd(&opts),
		restoreCmd(&opts),
		purgeCmd(&opts),
		mvCmd(&opts),
		listsCmd(&opts),
		templatesCmd(&opts),
		suggestCmd(&opts),
		actCmd(&opts),
		syncCmd(&opts),
		watchCmd(&opts),
		loginCmd(&opts),
		statusCmd(&opts),
	)
	return rootCmd
}
