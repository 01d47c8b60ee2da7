// Package config loads and validates the dbops configuration. Values come
// from a YAML file at ~/.dbops/config.yaml with environment-variable
// overrides; secrets are never stored in the file, only the names of the
// environment variables that hold them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config matches the structure of the config.yaml file.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Local    LocalConfig    `yaml:"local"`
	Source   InstanceConfig `yaml:"source"`
	Target   InstanceConfig `yaml:"target"`
	PITR     PITRConfig     `yaml:"pitr"`
	State    StateConfig    `yaml:"state"`
}

// DatabaseConfig names the production database and the developer whose
// suffix goes into every artifact and target-database name.
type DatabaseConfig struct {
	Name      string `yaml:"name" env:"DBOPS_DATABASE_NAME"`
	Developer string `yaml:"developer" env:"DBOPS_DEVELOPER"`
}

// StorageConfig points at the blob container used as the hand-off point
// between the snapshot producer and the local restore.
type StorageConfig struct {
	AccountURL string `yaml:"account_url" env:"DBOPS_STORAGE_ACCOUNT_URL"`
	Container  string `yaml:"container" env:"DBOPS_STORAGE_CONTAINER"`
}

// LocalConfig describes the developer-workstation SQL Server instance the
// local restore targets, plus the working directory that receives the
// downloaded artifact and the relocated database files.
type LocalConfig struct {
	Server         string        `yaml:"server" env:"DBOPS_LOCAL_SERVER" env-default:"localhost"`
	Port           int           `yaml:"port" env:"DBOPS_LOCAL_PORT" env-default:"1433"`
	User           string        `yaml:"user" env:"DBOPS_LOCAL_USER"`
	PasswordEnv    string        `yaml:"password_env" env:"DBOPS_LOCAL_PASSWORD_ENV" env-default:"DBOPS_LOCAL_PASSWORD"`
	WorkDir        string        `yaml:"work_dir" env:"DBOPS_LOCAL_WORK_DIR"`
	RestoreTimeout time.Duration `yaml:"restore_timeout" env:"DBOPS_LOCAL_RESTORE_TIMEOUT" env-default:"20m"`
}

// InstanceConfig identifies a managed instance. Host is the instance FQDN
// for direct engine queries; Location is required only on the restore
// target, where the platform needs it to place the new database.
type InstanceConfig struct {
	SubscriptionID string `yaml:"subscription_id"`
	ResourceGroup  string `yaml:"resource_group"`
	Name           string `yaml:"name"`
	Host           string `yaml:"host"`
	Location       string `yaml:"location"`
}

// PITRConfig carries the cross-instance restore tunables. The defaults are
// the operational values this workflow has always used.
type PITRConfig struct {
	DeleteWaitTimeout  time.Duration `yaml:"delete_wait_timeout" env:"DBOPS_PITR_DELETE_WAIT_TIMEOUT" env-default:"10m"`
	DeletePollInterval time.Duration `yaml:"delete_poll_interval" env:"DBOPS_PITR_DELETE_POLL_INTERVAL" env-default:"15s"`
	Cooldown           time.Duration `yaml:"cooldown" env:"DBOPS_PITR_COOLDOWN" env-default:"3m"`
	RestoreLag         time.Duration `yaml:"restore_lag" env:"DBOPS_PITR_RESTORE_LAG" env-default:"15m"`
	PollInterval       time.Duration `yaml:"poll_interval" env:"DBOPS_PITR_POLL_INTERVAL" env-default:"15s"`
	PollBudget         time.Duration `yaml:"poll_budget" env:"DBOPS_PITR_POLL_BUDGET" env-default:"5m"`
	MetricWindow       time.Duration `yaml:"metric_window" env:"DBOPS_PITR_METRIC_WINDOW" env-default:"2m"`
}

// StateConfig locates the run-state database.
type StateConfig struct {
	Path string `yaml:"path" env:"DBOPS_STATE_PATH"`
}

// DefaultDir returns the dbops configuration directory.
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".dbops"), nil
}

// Load finds, reads, and parses the configuration file, applying
// environment overrides on top.
func Load() (*Config, error) {
	dir, err := DefaultDir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(filepath.Join(dir, "config.yaml"))
}

// LoadFrom reads the configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found at %s. Please run 'dbops init'", path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if cfg.State.Path == "" {
		dir := filepath.Dir(path)
		cfg.State.Path = filepath.Join(dir, "state.db")
	}

	return &cfg, nil
}

// missing collects the names of required fields that are empty so one error
// reports everything at once.
type missing []string

func (m *missing) check(value, name string) {
	if value == "" {
		*m = append(*m, name)
	}
}

func (m missing) err() error {
	if len(m) == 0 {
		return nil
	}
	return fmt.Errorf("missing required configuration: %s", strings.Join(m, ", "))
}

// ValidateBackup checks the fields the snapshot producer needs.
func (c *Config) ValidateBackup() error {
	var m missing
	m.check(c.Database.Name, "database.name")
	m.check(c.Database.Developer, "database.developer")
	m.check(c.Storage.AccountURL, "storage.account_url")
	m.check(c.Storage.Container, "storage.container")
	m.check(c.Source.Host, "source.host")
	return m.err()
}

// ValidateLocalRestore checks the fields the local restore needs.
func (c *Config) ValidateLocalRestore() error {
	var m missing
	m.check(c.Database.Name, "database.name")
	m.check(c.Database.Developer, "database.developer")
	m.check(c.Storage.AccountURL, "storage.account_url")
	m.check(c.Storage.Container, "storage.container")
	m.check(c.Local.User, "local.user")
	m.check(c.Local.WorkDir, "local.work_dir")
	return m.err()
}

// ValidatePITR checks the fields the cross-instance restore needs.
func (c *Config) ValidatePITR() error {
	var m missing
	m.check(c.Database.Name, "database.name")
	m.check(c.Source.SubscriptionID, "source.subscription_id")
	m.check(c.Source.ResourceGroup, "source.resource_group")
	m.check(c.Source.Name, "source.name")
	m.check(c.Source.Host, "source.host")
	m.check(c.Target.SubscriptionID, "target.subscription_id")
	m.check(c.Target.ResourceGroup, "target.resource_group")
	m.check(c.Target.Name, "target.name")
	m.check(c.Target.Location, "target.location")
	return m.err()
}
