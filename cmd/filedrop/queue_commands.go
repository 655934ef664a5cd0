package main

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"filedrop/internal/jobs"
	"filedrop/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueClearCompletedCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var completed bool
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending (or completed) jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(commandCtx(cmd), func(q *queue.Queue) error {
				var (
					list  []jobs.Job
					total int64
					err   error
				)
				if completed {
					list, total, err = q.Completed(commandCtx(cmd), limit)
				} else {
					list, total, err = q.Pending(commandCtx(cmd), limit)
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				label := "pending"
				if completed {
					label = "completed"
				}
				if len(list) == 0 {
					fmt.Fprintf(out, "No %s jobs\n", label)
					return nil
				}
				fmt.Fprintln(out, renderJobTable(list, completed, time.Now(), shouldColorize(out)))
				fmt.Fprintf(out, "Showing %d of %d %s jobs\n", len(list), total, label)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&completed, "completed", false, "List completed jobs instead of pending ones")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of jobs to show (0 for all)")
	return cmd
}

func newQueueClearCompletedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Remove completed job history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(commandCtx(cmd), func(q *queue.Queue) error {
				removed, err := q.ClearCompleted(commandCtx(cmd))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d completed jobs\n", removed)
				return nil
			})
		},
	}
}

func renderJobTable(list []jobs.Job, completed bool, now time.Time, colorize bool) string {
	columns := jobColumns
	if completed {
		columns = append(slices.Clone(jobColumns), column{title: "Completed"})
	}
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		row := []string{
			job.ID,
			job.OriginalName,
			humanize.IBytes(uint64(max(job.Size, 0))),
			humanize.RelTime(job.CreatedAt, now, "ago", "from now"),
		}
		if completed {
			done := ""
			if job.CompletedAt != nil {
				done = humanize.RelTime(*job.CompletedAt, now, "ago", "from now")
			}
			row = append(row, done)
		}
		rows = append(rows, row)
	}
	return renderTable(columns, rows, nil, colorize)
}

func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
