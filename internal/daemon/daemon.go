package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"filedrop/internal/api"
	"filedrop/internal/config"
	"filedrop/internal/intake"
	"filedrop/internal/logging"
	"filedrop/internal/queue"
	"filedrop/internal/retention"
)

// ErrAlreadyRunning is returned when another producer holds the state lock.
var ErrAlreadyRunning = errors.New("another filedrop producer is already running for this state directory")

// Daemon runs the producer: HTTP API, intake watcher and retention sweeper,
// guarded by a lock file so only one instance serves a state directory.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	queue   *queue.Queue
	jobs    *api.JobService
	watcher *intake.Watcher
	sweeper *retention.Sweeper
	server  *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Address      string
	QueueBackend string
	LockFilePath string
}

// New constructs a daemon around an open queue.
func New(cfg *config.Config, q *queue.Queue, logger *slog.Logger, version string) (*Daemon, error) {
	if cfg == nil || q == nil {
		return nil, errors.New("daemon requires config and queue")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	jobSvc := api.NewJobService(cfg, q, logger, version)
	sweeper := retention.New(cfg.Server.UploadDir, cfg.KeepFor(), cfg.SweepInterval(), logger)
	sweeper.OnSweep = func(ctx context.Context, _ retention.Result) {
		if _, err := jobSvc.EvictStale(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(logger, "stale job eviction failed", "stale_eviction_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "collectors may see jobs whose files were swept"),
			)
		}
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		queue:    q,
		jobs:     jobSvc,
		watcher:  intake.New(cfg.Server.UploadDir, cfg.Stability(), q, logger),
		sweeper:  sweeper,
		server:   newAPIServer(cfg, jobSvc, logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the lock, binds the listener and launches the background
// services. It returns once the API is accepting connections.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.cfg.Server.UploadDir, 0o755); err != nil {
		return fmt.Errorf("ensure upload dir: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	if err := d.server.listen(); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	d.cancel = cancel
	d.group = group

	if n, err := d.jobs.EvictStale(groupCtx); err != nil {
		logging.WarnWithContext(d.logger, "startup stale job check failed", "stale_eviction_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale jobs are evicted on first download instead"),
		)
	} else if n > 0 {
		d.logger.Info("startup evicted stale jobs", logging.Int("count", n))
	}

	group.Go(func() error { return d.server.serve(groupCtx) })
	group.Go(func() error { return d.watcher.Run(groupCtx) })
	group.Go(func() error { return d.sweeper.Run(groupCtx) })

	d.running.Store(true)
	d.logger.Info("filedrop producer started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("address", d.server.addr()),
		logging.String("upload_dir", d.cfg.Server.UploadDir),
		logging.String("queue_backend", d.cfg.Queue.Backend),
		logging.Bool("auth", d.cfg.Auth.Enabled),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Wait blocks until every service has exited, then releases the lock. It
// returns the first service error.
func (d *Daemon) Wait() error {
	if d.group == nil {
		return nil
	}
	err := d.group.Wait()
	d.release()
	return err
}

// Stop cancels all services and waits for them to exit.
func (d *Daemon) Stop() error {
	if d.cancel != nil {
		d.cancel()
	}
	return d.Wait()
}

// Run starts the daemon and blocks until ctx is cancelled or a service fails.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	return d.Wait()
}

func (d *Daemon) release() {
	if !d.running.Swap(false) {
		return
	}
	if d.cancel != nil {
		d.cancel()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("filedrop producer stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		Address:      d.server.addr(),
		QueueBackend: d.cfg.Queue.Backend,
		LockFilePath: d.lockPath,
	}
}
