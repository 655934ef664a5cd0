package testsupport

import (
	"path/filepath"
	"testing"

	"filedrop/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Server.UploadDir = filepath.Join(base, "uploads")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Server.StabilityMS = 50
	cfgVal.Collector.DownloadDir = filepath.Join(base, "downloads")
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithAPIKey enables shared-key auth on the test config.
func WithAPIKey(key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Auth.Enabled = true
		b.cfg.Auth.APIKey = key
	}
}

// WithDeleteAfterDownload toggles removal of served files on completion.
func WithDeleteAfterDownload() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cleanup.DeleteAfterDownload = true
	}
}

// WithUploadLimits overrides the per-file size limit (MB) and files per request.
func WithUploadLimits(maxFileMB, maxFiles int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.MaxFileMB = maxFileMB
		b.cfg.Server.MaxFiles = maxFiles
	}
}

// WithEndpoint appends a collector endpoint.
func WithEndpoint(ep config.Endpoint) ConfigOption {
	return func(b *configBuilder) {
		if ep.PollIntervalMS == 0 {
			ep.PollIntervalMS = 30000
		}
		if ep.MaxRetries == 0 {
			ep.MaxRetries = 3
		}
		if ep.Priority == 0 {
			ep.Priority = 1
		}
		b.cfg.Collector.Endpoints = append(b.cfg.Collector.Endpoints, ep)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// WithNtfyTopic points notifications at topic, typically an httptest server.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
		b.cfg.Notifications.RequestTimeoutSeconds = 5
	}
}
