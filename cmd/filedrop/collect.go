package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"filedrop/internal/collector"
	"filedrop/internal/logging"
)

func newCollectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run the collector: poll configured producers and download their jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := cmd.Context()
			if cmdCtx == nil {
				cmdCtx = context.Background()
			}
			signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg, "collect")
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, cfg.Paths.LogDir, "filedrop-*.log",
				logging.LogFilePath(cfg.Paths.LogDir, "collect"))

			svc, err := collector.New(cfg, logger)
			if err != nil {
				return err
			}
			runErr := svc.Run(signalCtx)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Transfer statistics")
			fmt.Fprintln(out, renderEndpointStats(svc.Registry.All(), shouldColorize(out)))
			return runErr
		},
	}
}

func renderEndpointStats(endpoints []*collector.Endpoint, colorize bool) string {
	rows := make([][]string, 0, len(endpoints))
	var files, errs int64
	var bytes uint64
	for _, ep := range endpoints {
		stats := ep.Snapshot()
		lastSync := "never"
		if !stats.LastSyncAt.IsZero() {
			lastSync = humanize.Time(stats.LastSyncAt)
		}
		files += int64(stats.FilesTransferred)
		errs += int64(stats.ErrorCount)
		bytes += uint64(max(stats.BytesTransferred, 0))
		rows = append(rows, []string{
			ep.Name,
			yesNo(ep.Enabled()),
			strconv.Itoa(ep.Priority),
			humanize.Comma(int64(stats.FilesTransferred)),
			humanize.IBytes(uint64(max(stats.BytesTransferred, 0))),
			humanize.Comma(int64(stats.ErrorCount)),
			strconv.Itoa(stats.ConsecutiveErrors),
			lastSync,
		})
	}
	var footer []string
	if len(endpoints) > 1 {
		footer = []string{"Total", "", "", humanize.Comma(files), humanize.IBytes(bytes), humanize.Comma(errs)}
	}
	return renderTable(endpointColumns, rows, footer, colorize)
}
