package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateCleanup(); err != nil {
		return err
	}
	if err := c.validateCollector(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	parsed, err := url.Parse(topic)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateServer() error {
	if strings.TrimSpace(c.Server.UploadDir) == "" {
		return errors.New("server.upload_dir must be set")
	}
	return ensurePositiveMap(map[string]int{
		"server.stability_ms": c.Server.StabilityMS,
		"server.max_file_mb":  c.Server.MaxFileMB,
		"server.max_files":    c.Server.MaxFiles,
	})
}

func (c *Config) validateQueue() error {
	switch c.Queue.Backend {
	case "sqlite":
	case "redis":
		if strings.TrimSpace(c.Queue.RedisAddr) == "" {
			return errors.New("queue.redis_addr must be set when queue.backend is redis")
		}
		if c.Queue.RedisDB < 0 {
			return errors.New("queue.redis_db must not be negative")
		}
	default:
		return fmt.Errorf("queue.backend: unsupported value %q (want sqlite or redis)", c.Queue.Backend)
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.APIKey) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("auth.api_key is required when auth.enabled is true. Set FILEDROP_API_KEY env var or edit %s", defaultPath)
	}
	return nil
}

func (c *Config) validateCleanup() error {
	if c.Cleanup.KeepDays < 0 {
		return errors.New("cleanup.keep_days must not be negative")
	}
	if c.Cleanup.SweepIntervalHours <= 0 {
		return errors.New("cleanup.sweep_interval_hours must be positive")
	}
	return nil
}

func (c *Config) validateCollector() error {
	if err := ensurePositiveMap(map[string]int{
		"collector.poll_batch":          c.Collector.PollBatch,
		"collector.active_interval_ms":  c.Collector.ActiveIntervalMS,
		"collector.idle_fallback_ms":    c.Collector.IdleFallbackMS,
		"collector.error_cooldown_ms":   c.Collector.ErrorCooldownMS,
		"collector.retry_base_delay_ms": c.Collector.RetryBaseDelayMS,
	}); err != nil {
		return err
	}
	if c.Collector.InterEndpointDelayMS < 0 {
		return errors.New("collector.inter_endpoint_delay_ms must not be negative")
	}
	seen := make(map[string]struct{}, len(c.Collector.Endpoints))
	for i, ep := range c.Collector.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("collector.endpoints[%d].name must be set", i)
		}
		key := strings.ToLower(ep.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("collector.endpoints[%d].name %q is duplicated", i, ep.Name)
		}
		seen[key] = struct{}{}
		if ep.URL == "" {
			return fmt.Errorf("collector.endpoints[%d].url must be set", i)
		}
		parsed, err := url.Parse(ep.URL)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return fmt.Errorf("collector.endpoints[%d].url %q must be an http(s) URL", i, ep.URL)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
