package cmd

import (
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/spf13/cobra"

	"github.com/frobelworks/dbops/internal/config"
	"github.com/frobelworks/dbops/internal/mssql"
	"github.com/frobelworks/dbops/internal/snapshot"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the production database to blob storage",
	Long: `Issues a full, compressed, copy-only backup of the production database,
written by the engine directly to the configured storage container. The
artifact is named after the database, the developer, and today's date, so a
second run on the same day overwrites the first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := cfg.ValidateBackup(); err != nil {
			return err
		}
		fmt.Println("✓ Configuration loaded.")

		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return fmt.Errorf("failed to acquire platform credentials: %w", err)
		}

		engine, err := mssql.NewTokenClient(cfg.Source.Host, "master", cred)
		if err != nil {
			return err
		}
		if err := engine.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to %s: %w", cfg.Source.Host, err)
		}
		defer engine.Close()
		fmt.Printf("✓ Connected to %s.\n", cfg.Source.Host)

		producer := &snapshot.Producer{
			Engine:     engine,
			Database:   cfg.Database.Name,
			Developer:  cfg.Database.Developer,
			AccountURL: cfg.Storage.AccountURL,
			Container:  cfg.Storage.Container,
			Out:        os.Stdout,
		}

		name, err := producer.Run(ctx)
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("\nSnapshot completed. Artifact: %s\n", name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
}
