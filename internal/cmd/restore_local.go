package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/spf13/cobra"

	"github.com/frobelworks/dbops/internal/blob"
	"github.com/frobelworks/dbops/internal/config"
	"github.com/frobelworks/dbops/internal/mssql"
	"github.com/frobelworks/dbops/internal/restore"
)

var restoreLocalCmd = &cobra.Command{
	Use:   "restore-local",
	Short: "Restore today's snapshot onto the local SQL Server",
	Long: `Downloads today's snapshot artifact from blob storage and restores it
into the developer database on the local SQL Server instance, relocating
every database file into the configured working directory. On success both
the remote and the downloaded copy of the artifact are removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := cfg.ValidateLocalRestore(); err != nil {
			return err
		}
		fmt.Println("✓ Configuration loaded.")

		password := os.Getenv(cfg.Local.PasswordEnv)
		if password == "" {
			return fmt.Errorf("local SQL Server password not set; export %s", cfg.Local.PasswordEnv)
		}

		engine, err := mssql.NewClient(mssql.ClientOptions{
			Server:   cfg.Local.Server,
			Port:     cfg.Local.Port,
			User:     cfg.Local.User,
			Password: password,
			Timeout:  30 * time.Second,
		})
		if err != nil {
			return err
		}
		if err := engine.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to local SQL Server: %w", err)
		}
		defer engine.Close()
		fmt.Printf("✓ Connected to %s:%d.\n", cfg.Local.Server, cfg.Local.Port)

		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return fmt.Errorf("failed to acquire platform credentials: %w", err)
		}
		store, err := blob.NewAzureStore(&cfg.Storage, cred)
		if err != nil {
			return err
		}

		o := &restore.Orchestrator{
			Blobs:     store,
			Engine:    engine,
			Database:  cfg.Database.Name,
			Developer: cfg.Database.Developer,
			WorkDir:   cfg.Local.WorkDir,
			Timeout:   cfg.Local.RestoreTimeout,
			Out:       os.Stdout,
		}

		if err := o.Run(ctx); err != nil {
			return err
		}

		fmt.Println("\nLocal restore completed.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(restoreLocalCmd)
}
