package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"filedrop/internal/api"
	"filedrop/internal/collector"
)

func newRemoteStatusCommand() *cobra.Command {
	var url string
	var apiKey string

	cmd := &cobra.Command{
		Use:         "remote-status",
		Short:       "Show the status of a running producer",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			url = strings.TrimSpace(url)
			if url == "" {
				return fmt.Errorf("--url is required")
			}
			ep := collector.NewEndpoint("remote", url, "", 1)
			ep.APIKey = apiKey
			client := collector.NewHTTPClient(collector.DefaultClientID(), nil)
			status, err := client.Status(commandCtx(cmd), ep)
			if err != nil {
				return fmt.Errorf("fetch status from %s: %w", url, err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderRemoteStatus(url, status, shouldColorize(out)))
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Producer base URL (e.g. http://host:3000)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key sent as X-API-Key")
	return cmd
}

func renderRemoteStatus(url string, status api.StatusResponse, colorize bool) string {
	uptime := time.Duration(status.UptimeSeconds) * time.Second
	maxFile := "unlimited"
	if status.Limits.MaxFileBytes > 0 {
		maxFile = humanize.IBytes(uint64(status.Limits.MaxFileBytes))
	}
	rows := [][]string{
		{"Producer", url},
		{"Status", status.Status},
		{"Version", status.Version},
		{"Uptime", uptime.String()},
		{"Pending jobs", humanize.Comma(status.Queue.Pending)},
		{"Completed jobs", humanize.Comma(status.Queue.Completed)},
		{"Upload dir", status.UploadDir},
		{"Free space", humanize.IBytes(status.FreeBytes)},
		{"Auth enabled", yesNo(status.AuthEnabled)},
		{"Delete after download", yesNo(status.DeleteOnFinish)},
		{"Max file size", maxFile},
		{"Max files per upload", fmt.Sprint(status.Limits.MaxFiles)},
	}
	return renderTable(fieldColumns, rows, nil, colorize)
}
