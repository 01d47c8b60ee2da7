package cmd

import (
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/spf13/cobra"

	"github.com/frobelworks/dbops/internal/config"
	"github.com/frobelworks/dbops/internal/mi"
	"github.com/frobelworks/dbops/internal/mssql"
	"github.com/frobelworks/dbops/internal/pitr"
	"github.com/frobelworks/dbops/internal/state"
)

var restorePITRCmd = &cobra.Command{
	Use:   "restore-pitr",
	Short: "Point-in-time restore of the production database onto the target instance",
	Long: `Drives a cross-instance point-in-time restore: deletes a pre-existing
copy on the target instance after confirmation, waits out the platform's
deletion and storage-accounting lag, validates that the target has room for
the source database, submits the restore, and polls until the new database
is online.

Progress is recorded durably. If a run is interrupted, the next invocation
resumes it from the phase it reached; 'dbops runs' lists recorded runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := cfg.ValidatePITR(); err != nil {
			return err
		}
		fmt.Println("✓ Configuration loaded.")

		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return fmt.Errorf("failed to acquire platform credentials: %w", err)
		}

		manager, err := mi.NewManager(cfg.Source, cfg.Target, cred)
		if err != nil {
			return err
		}
		metrics, err := mi.NewMetricsReader(cfg.Target, cfg.PITR.MetricWindow, cred)
		if err != nil {
			return err
		}

		sizer, err := mssql.NewTokenClient(cfg.Source.Host, cfg.Database.Name, cred)
		if err != nil {
			return err
		}
		if err := sizer.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to %s: %w", cfg.Source.Host, err)
		}
		defer sizer.Close()

		runs, err := state.Open(cfg.State.Path)
		if err != nil {
			return err
		}
		defer runs.Close()

		o := &pitr.Orchestrator{
			Manager:  manager,
			Metrics:  metrics,
			Sizer:    sizer,
			Prompt:   pitr.SurveyPrompter{},
			Runs:     runs,
			Sleeper:  pitr.ContextSleeper{},
			Cfg:      cfg.PITR,
			SourceDB: cfg.Database.Name,
			TargetDB: cfg.Database.Name,
			Out:      os.Stdout,
		}

		outcome, err := o.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("\nRun finished: %s\n", outcome)
		if outcome.ExitCode() != 0 {
			return fmt.Errorf("restore aborted: %s", outcome)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(restorePITRCmd)
}
