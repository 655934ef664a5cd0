package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"filedrop/internal/collector"
	"filedrop/internal/logging"
	"filedrop/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var producerOnly bool
	var collectorOnly bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, the queue store, and configured endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			var results []preflight.Result
			if !collectorOnly {
				producer := preflight.RunProducer(commandCtx(cmd), cfg)
				writeSection(out, "Producer", producer, colorize)
				results = append(results, producer...)
			}
			if !producerOnly {
				clientID := cfg.Collector.ClientID
				if clientID == "" {
					clientID = collector.DefaultClientID()
				}
				registry := collector.NewRegistry(cfg.Collector, logging.NewNop())
				consumer := preflight.RunCollector(commandCtx(cmd), registry, collector.NewHTTPClient(clientID, nil))
				writeSection(out, "Collector", consumer, colorize)
				results = append(results, consumer...)
			}

			if failed := preflight.Failed(results); failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(results))
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&producerOnly, "producer", false, "Only run producer checks")
	cmd.Flags().BoolVar(&collectorOnly, "collector", false, "Only run collector checks")
	cmd.MarkFlagsMutuallyExclusive("producer", "collector")
	return cmd
}

func writeSection(out io.Writer, title string, results []preflight.Result, colorize bool) {
	for _, line := range renderCheckSection(title, results, "no endpoints configured", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)
}
