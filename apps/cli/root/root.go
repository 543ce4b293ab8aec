package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the TourDesk admin CLI. Subcommands (auth, bootstrap, tenant) are attached here.
var rootCmd = &cobra.Command{
	Use:           "tourdesk",
	Short:         "TourDesk admin CLI",
	Long:          "Administrative utilities for TourDesk (dev tokens, schema bootstrap, tenant configuration).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
