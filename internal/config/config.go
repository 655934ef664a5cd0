package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains state and log directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Server contains producer settings: bind address, intake directory, and
// upload limits.
type Server struct {
	Bind        string `toml:"bind"`
	UploadDir   string `toml:"upload_dir"`
	StabilityMS int    `toml:"stability_ms"`
	MaxFileMB   int    `toml:"max_file_mb"`
	MaxFiles    int    `toml:"max_files"`
}

// Queue selects and configures the queue store backend.
type Queue struct {
	Backend       string `toml:"backend"`
	KeyPrefix     string `toml:"key_prefix"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
}

// Auth contains the shared API key check.
type Auth struct {
	Enabled bool   `toml:"enabled"`
	APIKey  string `toml:"api_key"`
}

// Cleanup contains producer retention settings.
type Cleanup struct {
	DeleteAfterDownload bool `toml:"delete_after_download"`
	KeepDays            int  `toml:"keep_days"`
	SweepIntervalHours  int  `toml:"sweep_interval_hours"`
}

// Endpoint describes one producer the collector polls.
type Endpoint struct {
	Name           string `toml:"name"`
	URL            string `toml:"url"`
	DownloadDir    string `toml:"download_dir"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
	MaxRetries     int    `toml:"max_retries"`
	Priority       int    `toml:"priority"`
	Enabled        *bool  `toml:"enabled"`
	APIKey         string `toml:"api_key"`
}

// IsEnabled reports whether the endpoint participates in polling. Endpoints
// are enabled unless explicitly disabled.
func (e Endpoint) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// PollInterval returns the configured poll interval as a duration.
func (e Endpoint) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalMS) * time.Millisecond
}

// Collector contains consumer-side scheduling settings and endpoints.
type Collector struct {
	DownloadDir          string     `toml:"download_dir"`
	ClientID             string     `toml:"client_id"`
	PollBatch            int        `toml:"poll_batch"`
	InterEndpointDelayMS int        `toml:"inter_endpoint_delay_ms"`
	ActiveIntervalMS     int        `toml:"active_interval_ms"`
	IdleFallbackMS       int        `toml:"idle_fallback_ms"`
	ErrorCooldownMS      int        `toml:"error_cooldown_ms"`
	RetryBaseDelayMS     int        `toml:"retry_base_delay_ms"`
	Endpoints            []Endpoint `toml:"endpoints"`
}

// Notifications configures ntfy event publishing. An empty topic disables it.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	FailureThreshold      int    `toml:"failure_threshold"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for FileDrop.
//
// Configuration sections by subsystem:
//   - Paths: state (queue database, lock file) and log directories
//   - Server: producer bind address, intake directory, upload limits
//   - Queue: queue store backend (sqlite or redis)
//   - Auth: shared API key
//   - Cleanup: delete-after-download and retention sweep
//   - Collector: consumer scheduling and the endpoint list
//   - Notifications: ntfy topic and alert threshold
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Queue         Queue         `toml:"queue"`
	Auth          Auth          `toml:"auth"`
	Cleanup       Cleanup       `toml:"cleanup"`
	Collector     Collector     `toml:"collector"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("filedrop.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories. The upload and
// download roots belong to the producer and collector respectively and are
// created by them.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath is the SQLite queue database location.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// LockPath is the single-instance lock for the producer daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "filedrop.lock")
}

// PendingKey and CompletedKey name the two queue lists.
func (c *Config) PendingKey() string { return c.Queue.KeyPrefix + ":pending" }

func (c *Config) CompletedKey() string { return c.Queue.KeyPrefix + ":completed" }

// Stability is the quiescence window a file must pass before it is enqueued.
func (c *Config) Stability() time.Duration {
	return time.Duration(c.Server.StabilityMS) * time.Millisecond
}

// MaxUploadBytes is the per-file upload cap.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxFileMB) << 20
}

// KeepFor is the retention age for files in the upload directory. Zero
// disables the sweep.
func (c *Config) KeepFor() time.Duration {
	return time.Duration(c.Cleanup.KeepDays) * 24 * time.Hour
}

// SweepInterval is how often the retention sweep runs.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Cleanup.SweepIntervalHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
