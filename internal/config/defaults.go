package config

const (
	defaultConfigPath           = "~/.config/filedrop/config.toml"
	defaultStateDir             = "~/.local/share/filedrop"
	defaultLogDir               = "~/.local/share/filedrop/logs"
	defaultLogRetentionDays     = 30
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultBind                 = "0.0.0.0:3000"
	defaultUploadDir            = "./uploads"
	defaultStabilityMS          = 1000
	defaultMaxFileMB            = 500
	defaultMaxFiles             = 20
	defaultQueueBackend         = "sqlite"
	defaultKeyPrefix            = "filedrop"
	defaultRedisAddr            = "localhost:6379"
	defaultKeepDays             = 7
	defaultSweepIntervalHours   = 24
	defaultDownloadDir          = "./downloads"
	defaultPollBatch            = 5
	defaultInterEndpointDelayMS = 1000
	defaultActiveIntervalMS     = 5000
	defaultIdleFallbackMS       = 30000
	defaultErrorCooldownMS      = 30000
	defaultRetryBaseDelayMS     = 2000
	defaultPollIntervalMS       = 30000
	defaultMaxRetries           = 3
	defaultPriority             = 1
	defaultNotifyTimeoutSeconds = 10
	defaultFailureThreshold     = 5
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Server: Server{
			Bind:        defaultBind,
			UploadDir:   defaultUploadDir,
			StabilityMS: defaultStabilityMS,
			MaxFileMB:   defaultMaxFileMB,
			MaxFiles:    defaultMaxFiles,
		},
		Queue: Queue{
			Backend:   defaultQueueBackend,
			KeyPrefix: defaultKeyPrefix,
			RedisAddr: defaultRedisAddr,
		},
		Cleanup: Cleanup{
			KeepDays:           defaultKeepDays,
			SweepIntervalHours: defaultSweepIntervalHours,
		},
		Collector: Collector{
			DownloadDir:          defaultDownloadDir,
			PollBatch:            defaultPollBatch,
			InterEndpointDelayMS: defaultInterEndpointDelayMS,
			ActiveIntervalMS:     defaultActiveIntervalMS,
			IdleFallbackMS:       defaultIdleFallbackMS,
			ErrorCooldownMS:      defaultErrorCooldownMS,
			RetryBaseDelayMS:     defaultRetryBaseDelayMS,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
			FailureThreshold:      defaultFailureThreshold,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
