package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"filedrop/internal/daemon"
	"filedrop/internal/logging"
	"filedrop/internal/queue"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the producer: watch the upload directory and serve jobs over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(cmdCtx context.Context, ctx *commandContext) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg, "serve")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, cfg.Paths.LogDir, "filedrop-*.log",
		logging.LogFilePath(cfg.Paths.LogDir, "serve"))

	store, err := queue.OpenStore(signalCtx, cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open queue store", "queue_open_failed",
			logging.String("backend", cfg.Queue.Backend),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue settings and that the state directory is writable"),
		)
		return fmt.Errorf("open queue store: %w", err)
	}
	defer store.Close()

	q := queue.New(store, cfg.PendingKey(), cfg.CompletedKey(), logger)
	d, err := daemon.New(cfg, q, logger, version)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Run(signalCtx); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			return fmt.Errorf("%w (lock %s)", err, d.Status().LockFilePath)
		}
		return err
	}
	return nil
}
