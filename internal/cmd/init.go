package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/frobelworks/dbops/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the dbops configuration",
	Long: `Creates a '.dbops' directory in your home directory with a default
'config.yaml'. It will prompt for the database name, your developer suffix,
and the storage container; everything else gets workable defaults you can
edit afterwards. Secrets are never written to the file, only the names of
the environment variables that hold them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Bootstrapping dbops configuration...")

		baseDir, err := config.DefaultDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(baseDir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", baseDir, err)
		}

		configPath := filepath.Join(baseDir, "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("a config file already exists at %s", configPath)
		}

		reader := bufio.NewReader(os.Stdin)

		dbName, err := promptWithDefault(reader, "Production database name", "frobelworkscheduler")
		if err != nil {
			return err
		}
		developer, err := promptString(reader, "Developer suffix (e.g. your initials)")
		if err != nil {
			return err
		}
		accountURL, err := promptString(reader, "Storage account URL (https://<account>.blob.core.windows.net)")
		if err != nil {
			return err
		}
		container, err := promptWithDefault(reader, "Storage container", "db-snapshots")
		if err != nil {
			return err
		}
		workDir, err := promptWithDefault(reader, "Local restore working directory", `C:\dbops`)
		if err != nil {
			return err
		}

		cfg := config.Config{
			Database: config.DatabaseConfig{
				Name:      dbName,
				Developer: developer,
			},
			Storage: config.StorageConfig{
				AccountURL: accountURL,
				Container:  container,
			},
			Local: config.LocalConfig{
				Server:      "localhost",
				Port:        1433,
				User:        "sa",
				PasswordEnv: "DBOPS_LOCAL_PASSWORD",
				WorkDir:     workDir,
			},
			State: config.StateConfig{
				Path: filepath.Join(baseDir, "state.db"),
			},
		}

		yamlData, err := yaml.Marshal(&cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		if err := os.WriteFile(configPath, yamlData, 0644); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}

		fmt.Printf("✓ Wrote config to %s\n", configPath)
		fmt.Println("\nFill in the source/target instance sections before running restore-pitr,")
		fmt.Println("and provide the local SQL Server password via the configured environment variable.")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

// promptString asks the user for input without a default value.
func promptString(reader *bufio.Reader, label string) (string, error) {
	fmt.Printf("%s: ", label)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// promptWithDefault asks the user for input, providing a default if input is empty.
func promptWithDefault(reader *bufio.Reader, label, defaultValue string) (string, error) {
	fmt.Printf("%s (%s): ", label, defaultValue)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue, nil
	}
	return input, nil
}
