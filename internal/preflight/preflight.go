package preflight

import (
	"context"

	"filedrop/internal/collector"
	"filedrop/internal/config"
)

// Result reports the outcome of a single preflight check.
// Skipped results count as passed.
type Result struct {
	Name    string
	Passed  bool
	Skipped bool
	Detail  string
}

// RunProducer checks what "serve" needs: writable state, log and upload
// directories plus a reachable queue store.
func RunProducer(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Upload directory", cfg.Server.UploadDir),
		CheckQueueStore(ctx, cfg),
	}
}

// RunCollector checks what "collect" needs: a writable root and a reachable
// producer for each enabled endpoint. Disabled endpoints are listed as such.
func RunCollector(ctx context.Context, registry *collector.Registry, client collector.Producer) []Result {
	if registry == nil {
		return nil
	}
	endpoints := registry.All()
	results := make([]Result, 0, 2*len(endpoints))
	for _, ep := range endpoints {
		if ep.Enabled() {
			results = append(results, CheckDirectoryAccess("Download dir "+ep.Name, ep.Root))
		}
		results = append(results, CheckEndpoint(ctx, client, ep))
	}
	return results
}

// Failed counts results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed {
			n++
		}
	}
	return n
}
