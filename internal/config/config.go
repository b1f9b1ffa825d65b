package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sydlexius/plexrenamer/internal/filesystem"
	"github.com/sydlexius/plexrenamer/internal/logging"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Scan     ScanConfig     `yaml:"scan"`
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// ServerConfig holds the renamer backend connection settings.
type ServerConfig struct {
	URL               string        `yaml:"url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// ScanConfig holds the defaults used when starting a scan.
type ScanConfig struct {
	MediaType    string        `yaml:"media_type"`
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"`
	FilePath       string `yaml:"file_path"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxFiles   int    `yaml:"file_max_files"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`
}

// DatabaseConfig holds the SQLite history settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`

	// HistoryDays is how long the daemon keeps session history. Zero keeps
	// it forever.
	HistoryDays int `yaml:"history_days"`

	// BackupDir holds the daemon's daily snapshots; empty means "backups"
	// next to Path. BackupRetention is how many are kept; zero disables
	// snapshots.
	BackupDir       string `yaml:"backup_dir"`
	BackupRetention int    `yaml:"backup_retention"`
}

// BackupPath returns the snapshot directory.
func (d DatabaseConfig) BackupPath() string {
	if d.BackupDir != "" {
		return d.BackupDir
	}
	return filepath.Join(filepath.Dir(d.Path), "backups")
}

// ScheduleConfig holds the daemon's scan schedule.
type ScheduleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Cron      string `yaml:"cron"`
	AutoApply bool   `yaml:"auto_apply"`
	DryRun    bool   `yaml:"dry_run"`
}

// NotifyConfig holds the outbound notification sinks.
type NotifyConfig struct {
	Webhooks    []WebhookConfig `yaml:"webhooks"`
	NATSURL     string          `yaml:"nats_url"`
	NATSSubject string          `yaml:"nats_subject"`
}

// WebhookConfig is one webhook target.
type WebhookConfig struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Type   string   `yaml:"type"`
	Events []string `yaml:"events,omitempty"`
}

var validWebhookTypes = map[string]bool{
	"generic": true,
	"discord": true,
	"slack":   true,
	"gotify":  true,
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:     "http://localhost:5000",
			Timeout: 30 * time.Second,
		},
		Scan: ScanConfig{
			MediaType:    "movies",
			PollInterval: time.Second,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			FileMaxSizeMB:  100,
			FileMaxFiles:   5,
			FileMaxAgeDays: 30,
		},
		Database: DatabaseConfig{
			Path:            filepath.Join(dataDir(), "history.db"),
			HistoryDays:     90,
			BackupRetention: 7,
		},
		Schedule: ScheduleConfig{
			Cron:   "0 3 * * *",
			DryRun: true,
		},
		Notify: NotifyConfig{
			NATSSubject: "plexrenamer",
		},
	}
}

// LoggingManagerConfig converts the logging section for logging.NewManager.
func (c *Config) LoggingManagerConfig() logging.Config {
	return logging.Config{
		Level:          c.Logging.Level,
		Format:         c.Logging.Format,
		FilePath:       c.Logging.FilePath,
		FileMaxSizeMB:  c.Logging.FileMaxSizeMB,
		FileMaxFiles:   c.Logging.FileMaxFiles,
		FileMaxAgeDays: c.Logging.FileMaxAgeDays,
	}
}

// DefaultPath returns $PR_CONFIG_PATH, or config.yaml under the user's
// config directory.
func DefaultPath() string {
	if v := os.Getenv("PR_CONFIG_PATH"); v != "" {
		return v
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "plexrenamer", "config.yaml")
}

func dataDir() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return filepath.Join(v, "plexrenamer")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "plexrenamer")
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := filesystem.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the operator
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("PR_SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("PR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Server.Timeout = d
		}
	}
	if v := os.Getenv("PR_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Server.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("PR_MEDIA_TYPE"); v != "" {
		c.Scan.MediaType = v
	}
	if v := os.Getenv("PR_SCAN_PATH"); v != "" {
		c.Scan.Path = v
	}
	if v := os.Getenv("PR_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Scan.PollInterval = d
		}
	}
	if v := os.Getenv("PR_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PR_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("PR_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("PR_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("PR_SCHEDULE"); v != "" {
		c.Schedule.Cron = v
		c.Schedule.Enabled = true
	}
	if v := os.Getenv("PR_NATS_URL"); v != "" {
		c.Notify.NATSURL = v
	}
}

func (c *Config) validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server url: %q", c.Server.URL)
	}
	c.Server.URL = strings.TrimRight(c.Server.URL, "/")
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("invalid server timeout: %s", c.Server.Timeout)
	}
	if c.Server.RequestsPerSecond < 0 {
		return fmt.Errorf("invalid requests_per_second: %v", c.Server.RequestsPerSecond)
	}
	if c.Scan.MediaType != "movies" && c.Scan.MediaType != "tv_shows" {
		return fmt.Errorf("invalid media type: %q", c.Scan.MediaType)
	}
	if c.Scan.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("poll interval too short: %s", c.Scan.PollInterval)
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	if !logging.ValidFormat(c.Logging.Format) {
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Database.HistoryDays < 0 {
		return fmt.Errorf("invalid history_days: %d", c.Database.HistoryDays)
	}
	if c.Database.BackupRetention < 0 {
		return fmt.Errorf("invalid backup_retention: %d", c.Database.BackupRetention)
	}
	if c.Schedule.Enabled {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", c.Schedule.Cron, err)
		}
	}
	for i, w := range c.Notify.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("webhook %d: url is required", i)
		}
		if w.Type == "" {
			c.Notify.Webhooks[i].Type = "generic"
		} else if !validWebhookTypes[w.Type] {
			return fmt.Errorf("webhook %d: invalid type %q", i, w.Type)
		}
	}
	return nil
}
