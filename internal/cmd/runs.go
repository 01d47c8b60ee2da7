package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/frobelworks/dbops/internal/config"
	"github.com/frobelworks/dbops/internal/state"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded restore runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := state.Open(cfg.State.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		if len(runs) == 0 {
			fmt.Println("No runs found.")
			return nil
		}

		fmt.Printf("%-36s  %-20s  %-25s  %-16s  %s\n", "ID", "Started", "Target DB", "Phase", "Detail")
		fmt.Println(strings.Repeat("-", 110))

		for _, r := range runs {
			fmt.Printf("%-36s  %-20s  %-25s  %-16s  %s\n",
				r.ID,
				r.CreatedAt.Format("2006-01-02 15:04:05"),
				r.TargetDB,
				r.Phase,
				r.Detail,
			)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
}
