package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeQueue()
	c.normalizeAuth()
	if err := c.normalizeCollector(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNotifyTimeoutSeconds
	}
	if c.Notifications.FailureThreshold <= 0 {
		c.Notifications.FailureThreshold = defaultFailureThreshold
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Server.UploadDir) == "" {
		c.Server.UploadDir = defaultUploadDir
	}
	if c.Server.UploadDir, err = expandPath(c.Server.UploadDir); err != nil {
		return fmt.Errorf("server.upload_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
}

func (c *Config) normalizeQueue() {
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	if c.Queue.Backend == "" {
		c.Queue.Backend = defaultQueueBackend
	}
	c.Queue.KeyPrefix = strings.TrimSpace(c.Queue.KeyPrefix)
	if c.Queue.KeyPrefix == "" {
		c.Queue.KeyPrefix = defaultKeyPrefix
	}
	if value, ok := os.LookupEnv("FILEDROP_REDIS_ADDR"); ok && strings.TrimSpace(value) != "" {
		c.Queue.RedisAddr = strings.TrimSpace(value)
	}
	c.Queue.RedisAddr = strings.TrimSpace(c.Queue.RedisAddr)
	if c.Queue.RedisAddr == "" {
		c.Queue.RedisAddr = defaultRedisAddr
	}
	if c.Queue.RedisPassword == "" {
		if value, ok := os.LookupEnv("FILEDROP_REDIS_PASSWORD"); ok {
			c.Queue.RedisPassword = value
		}
	}
}

func (c *Config) normalizeAuth() {
	c.Auth.APIKey = strings.TrimSpace(c.Auth.APIKey)
	if c.Auth.APIKey == "" {
		if value, ok := os.LookupEnv("FILEDROP_API_KEY"); ok {
			c.Auth.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeCollector() error {
	var err error
	if strings.TrimSpace(c.Collector.DownloadDir) == "" {
		c.Collector.DownloadDir = defaultDownloadDir
	}
	if c.Collector.DownloadDir, err = expandPath(c.Collector.DownloadDir); err != nil {
		return fmt.Errorf("collector.download_dir: %w", err)
	}
	c.Collector.ClientID = strings.TrimSpace(c.Collector.ClientID)
	if c.Collector.PollBatch <= 0 {
		c.Collector.PollBatch = defaultPollBatch
	}
	if c.Collector.RetryBaseDelayMS <= 0 {
		c.Collector.RetryBaseDelayMS = defaultRetryBaseDelayMS
	}
	for i := range c.Collector.Endpoints {
		ep := &c.Collector.Endpoints[i]
		ep.Name = strings.TrimSpace(ep.Name)
		ep.URL = strings.TrimRight(strings.TrimSpace(ep.URL), "/")
		ep.APIKey = strings.TrimSpace(ep.APIKey)
		if ep.PollIntervalMS <= 0 {
			ep.PollIntervalMS = defaultPollIntervalMS
		}
		if ep.MaxRetries <= 0 {
			ep.MaxRetries = defaultMaxRetries
		}
		if ep.Priority == 0 {
			ep.Priority = defaultPriority
		}
		if strings.TrimSpace(ep.DownloadDir) != "" {
			if ep.DownloadDir, err = expandPath(ep.DownloadDir); err != nil {
				return fmt.Errorf("collector.endpoints[%d].download_dir: %w", i, err)
			}
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
