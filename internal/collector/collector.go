package collector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"filedrop/internal/config"
	"filedrop/internal/logging"
	"filedrop/internal/notifications"
)

// Service bundles the registry, client, executor and scheduler built from a
// configuration.
type Service struct {
	Registry  *Registry
	Client    *HTTPClient
	Executor  *Executor
	Scheduler *Scheduler
	logger    *slog.Logger
}

// New wires a collector from cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("collector requires config")
	}
	clientID := cfg.Collector.ClientID
	if clientID == "" {
		clientID = DefaultClientID()
	}
	registry := NewRegistry(cfg.Collector, logger)
	client := NewHTTPClient(clientID, nil)
	clock := RealClock()
	backoff := LinearBackoff{Base: time.Duration(cfg.Collector.RetryBaseDelayMS) * time.Millisecond}
	executor := NewExecutor(client, clock, backoff, logger)
	scheduler := NewScheduler(registry, client, executor, clock, TimingsFromConfig(cfg.Collector), logger)
	scheduler.SetNotifier(notifications.NewService(cfg.Notifications), cfg.Notifications.FailureThreshold)
	return &Service{
		Registry:  registry,
		Client:    client,
		Executor:  executor,
		Scheduler: scheduler,
		logger:    logging.NewComponentLogger(logger, "collector"),
	}, nil
}

// Run logs the endpoint plan and runs the scheduler until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	enabled := Order(s.Registry.All())
	s.logger.Info("collector started",
		logging.String(logging.FieldEventType, "collector_started"),
		logging.String(logging.FieldClientID, s.Client.ClientID()),
		logging.String("download_dir", s.Registry.Root()),
		logging.Int("endpoints", len(s.Registry.All())),
		logging.Int("enabled", len(enabled)),
	)
	for _, ep := range enabled {
		s.logger.Info("endpoint configured",
			logging.String(logging.FieldEndpoint, ep.Name),
			logging.String("url", ep.URL),
			logging.String("dir", ep.Root),
			logging.Int("priority", ep.Priority),
			logging.Duration("poll_interval", ep.PollInterval),
		)
	}
	return s.Scheduler.Run(ctx)
}
