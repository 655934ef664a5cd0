package collector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"filedrop/internal/config"
	"filedrop/internal/logging"
	"filedrop/internal/notifications"
)

// State is the scheduler's current phase.
type State string

const (
	StateIdle    State = "idle"
	StatePolling State = "polling"
	StateWaiting State = "waiting"
)

// Timings holds the scheduler's pacing parameters.
type Timings struct {
	PollBatch          int
	InterEndpointDelay time.Duration
	ActiveInterval     time.Duration
	IdleFallback       time.Duration
	ErrorCooldown      time.Duration
}

// TimingsFromConfig converts collector settings to Timings.
func TimingsFromConfig(cfg config.Collector) Timings {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return Timings{
		PollBatch:          cfg.PollBatch,
		InterEndpointDelay: ms(cfg.InterEndpointDelayMS),
		ActiveInterval:     ms(cfg.ActiveIntervalMS),
		IdleFallback:       ms(cfg.IdleFallbackMS),
		ErrorCooldown:      ms(cfg.ErrorCooldownMS),
	}
}

// Scheduler polls endpoints in priority order and hands jobs to the executor.
type Scheduler struct {
	registry *Registry
	client   Producer
	executor *Executor
	clock    Clock
	timings  Timings
	logger   *slog.Logger

	notifier   notifications.Service
	alertAfter int

	mu    sync.Mutex
	state State
}

// NewScheduler constructs a scheduler. A nil clock uses the wall clock.
func NewScheduler(registry *Registry, client Producer, executor *Executor, clock Clock, timings Timings, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{
		registry: registry,
		client:   client,
		executor: executor,
		clock:    clock,
		timings:  timings,
		logger:   logging.NewComponentLogger(logger, "scheduler"),
		notifier: notifications.Noop(),
		state:    StateIdle,
	}
}

// SetNotifier publishes batch completions, and an alert once an endpoint's
// poll failure streak reaches alertAfter. alertAfter <= 0 disables alerts.
func (s *Scheduler) SetNotifier(n notifications.Service, alertAfter int) {
	if n == nil {
		n = notifications.Noop()
	}
	s.notifier = n
	s.alertAfter = alertAfter
}

func (s *Scheduler) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := s.notifier.Publish(ctx, event, payload); err != nil {
		logger.Warn("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
		)
	}
}

// State reports the current phase.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Order returns the enabled endpoints sorted by priority, highest first.
// Equal priorities keep configuration order.
func Order(endpoints []*Endpoint) []*Endpoint {
	out := make([]*Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep.Enabled() {
			out = append(out, ep)
		}
	}
	slices.SortStableFunc(out, func(a, b *Endpoint) int { return b.Priority - a.Priority })
	return out
}

// NextWait decides the pause before the next cycle.
func NextWait(jobsFound bool, enabled []*Endpoint, t Timings) time.Duration {
	if jobsFound {
		return t.ActiveInterval
	}
	if len(enabled) == 0 {
		return t.IdleFallback
	}
	wait := enabled[0].PollInterval
	for _, ep := range enabled[1:] {
		wait = min(wait, ep.PollInterval)
	}
	return wait
}

// Run probes every enabled endpoint once, then cycles until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.probe(ctx)
	for {
		if ctx.Err() != nil {
			break
		}
		found, err := s.safeCycle(ctx)
		wait := NextWait(found, Order(s.registry.All()), s.timings)
		if err != nil {
			logging.ErrorWithContext(s.logger, "sync cycle failed; cooling down", "cycle_failed",
				logging.Error(err),
				logging.Duration("cooldown", s.timings.ErrorCooldown),
				logging.String(logging.FieldErrorHint, "check the collector download directory"),
			)
			wait = s.timings.ErrorCooldown
		}
		s.setState(StateWaiting)
		if err := s.clock.Sleep(ctx, wait); err != nil {
			break
		}
	}
	s.setState(StateIdle)
	s.logger.Info("collector stopped", logging.String(logging.FieldEventType, "collector_stopped"))
	return nil
}

func (s *Scheduler) probe(ctx context.Context) {
	for _, ep := range Order(s.registry.All()) {
		if ctx.Err() != nil {
			return
		}
		logger := s.logger.With(logging.String(logging.FieldEndpoint, ep.Name))
		if err := s.client.Health(ctx, ep); err != nil {
			logging.WarnWithContext(logger, "endpoint health check failed", "endpoint_unhealthy",
				logging.String("url", ep.URL),
				logging.Error(err),
				logging.String(logging.FieldImpact, "endpoint stays enabled and is retried each cycle"),
			)
			continue
		}
		logger.Info("endpoint reachable", logging.String("url", ep.URL), logging.Int("priority", ep.Priority))
	}
}

func (s *Scheduler) safeCycle(ctx context.Context) (found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return s.RunCycle(ctx)
}

// RunCycle polls every enabled endpoint once and reports whether any job was
// found.
func (s *Scheduler) RunCycle(ctx context.Context) (bool, error) {
	if root := s.registry.Root(); root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return false, fmt.Errorf("download root %s: %w", root, err)
		}
	}
	s.setState(StatePolling)
	found := false
	for i, ep := range Order(s.registry.All()) {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			if err := s.clock.Sleep(ctx, s.timings.InterEndpointDelay); err != nil {
				break
			}
		}
		if s.pollEndpoint(ctx, ep) > 0 {
			found = true
		}
	}
	return found, nil
}

// pollEndpoint fetches one batch and downloads it sequentially. Transfers run
// on a context detached from cancellation so a stop request lets the current
// file finish within its own timeout.
func (s *Scheduler) pollEndpoint(ctx context.Context, ep *Endpoint) int {
	logger := s.logger.With(logging.String(logging.FieldEndpoint, ep.Name))
	batch, err := s.client.ListPending(ctx, ep, s.timings.PollBatch)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		streak := ep.recordPollFailure()
		logging.WarnWithContext(logger, "poll failed", "poll_failed",
			logging.Error(err),
			logging.Int("consecutive_errors", streak),
			logging.String(logging.FieldImpact, "endpoint is retried next cycle"),
		)
		if s.alertAfter > 0 && streak == s.alertAfter {
			s.publish(ctx, logger, notifications.EventEndpointFailing, notifications.Payload{
				"endpoint":           ep.Name,
				"consecutive_errors": streak,
				"error":              err.Error(),
			})
		}
		return 0
	}
	ep.recordPollSuccess(s.clock.Now())
	if len(batch) == 0 {
		logger.Debug("no pending jobs")
		return 0
	}
	logger.Info("pending jobs found", logging.Int("count", len(batch)))

	before := ep.Snapshot()
	transferCtx := context.WithoutCancel(ctx)
	for _, job := range batch {
		if ctx.Err() != nil {
			break
		}
		_, _ = s.executor.Download(transferCtx, ep, job)
	}
	after := ep.Snapshot()
	if files := after.FilesTransferred - before.FilesTransferred; files > 0 {
		s.publish(transferCtx, logger, notifications.EventBatchDownloaded, notifications.Payload{
			"endpoint": ep.Name,
			"files":    files,
			"bytes":    after.BytesTransferred - before.BytesTransferred,
		})
	}
	return len(batch)
}
