package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dbops",
	Short: "Database snapshot and restore workflows for SQL Server managed instances",
	Long: `dbops moves developer copies of the production database around:
it takes compressed copy-only snapshots to blob storage, restores them on a
developer workstation, and drives cross-instance point-in-time restores.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}
