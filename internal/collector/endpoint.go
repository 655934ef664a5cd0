package collector

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"filedrop/internal/config"
	"filedrop/internal/fileutil"
	"filedrop/internal/logging"
)

// Stats is the runtime record of one endpoint's transfers.
type Stats struct {
	BytesTransferred  int64
	FilesTransferred  int
	ErrorCount        int
	ConsecutiveErrors int
	LastSyncAt        time.Time
}

// Endpoint is a producer the collector polls, plus its running stats.
type Endpoint struct {
	Name         string
	URL          string
	Root         string
	PollInterval time.Duration
	MaxRetries   int
	Priority     int
	APIKey       string

	mu      sync.Mutex
	enabled bool
	stats   Stats
}

// NewEndpoint builds an enabled endpoint. Mostly useful in tests; production
// endpoints come from NewRegistry.
func NewEndpoint(name, url, root string, priority int) *Endpoint {
	return &Endpoint{
		Name:         name,
		URL:          url,
		Root:         root,
		PollInterval: 30 * time.Second,
		MaxRetries:   3,
		Priority:     priority,
		enabled:      true,
	}
}

// Enabled reports whether the endpoint takes part in polling.
func (e *Endpoint) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// SetEnabled toggles polling for the endpoint.
func (e *Endpoint) SetEnabled(enabled bool) {
	e.mu.Lock()
	e.enabled = enabled
	e.mu.Unlock()
}

// Snapshot returns a copy of the endpoint's stats.
func (e *Endpoint) Snapshot() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Endpoint) recordTransfer(size int64) {
	e.mu.Lock()
	e.stats.BytesTransferred += size
	e.stats.FilesTransferred++
	e.mu.Unlock()
}

func (e *Endpoint) recordTransferFailure() {
	e.mu.Lock()
	e.stats.ErrorCount++
	e.mu.Unlock()
}

func (e *Endpoint) recordPollSuccess(at time.Time) {
	e.mu.Lock()
	e.stats.ConsecutiveErrors = 0
	e.stats.LastSyncAt = at
	e.mu.Unlock()
}

func (e *Endpoint) recordPollFailure() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.ErrorCount++
	e.stats.ConsecutiveErrors++
	return e.stats.ConsecutiveErrors
}

// Registry holds the configured endpoints in configuration order.
type Registry struct {
	root      string
	endpoints []*Endpoint
}

// NewRegistry builds endpoints from cfg and creates their local roots. An
// endpoint whose root cannot be created is disabled.
func NewRegistry(cfg config.Collector, logger *slog.Logger) *Registry {
	logger = logging.NewComponentLogger(logger, "collector")
	reg := &Registry{root: cfg.DownloadDir}
	for _, ec := range cfg.Endpoints {
		ep := &Endpoint{
			Name:         ec.Name,
			URL:          ec.URL,
			Root:         endpointRoot(cfg.DownloadDir, ec),
			PollInterval: ec.PollInterval(),
			MaxRetries:   ec.MaxRetries,
			Priority:     ec.Priority,
			APIKey:       ec.APIKey,
			enabled:      ec.IsEnabled(),
		}
		if ep.enabled {
			if err := os.MkdirAll(ep.Root, 0o755); err != nil {
				ep.enabled = false
				logging.WarnWithContext(logger, "endpoint disabled; download directory unavailable", "endpoint_disabled",
					logging.String(logging.FieldEndpoint, ep.Name),
					logging.String("dir", ep.Root),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check collector.download_dir permissions"),
					logging.String(logging.FieldImpact, "files from this endpoint are not collected"),
				)
			}
		}
		reg.endpoints = append(reg.endpoints, ep)
	}
	return reg
}

// NewStaticRegistry wraps prebuilt endpoints.
func NewStaticRegistry(root string, endpoints ...*Endpoint) *Registry {
	return &Registry{root: root, endpoints: endpoints}
}

// Root returns the global download directory.
func (r *Registry) Root() string { return r.root }

// All returns every endpoint in configuration order.
func (r *Registry) All() []*Endpoint {
	return append([]*Endpoint(nil), r.endpoints...)
}

// Enabled returns the enabled endpoints in configuration order.
func (r *Registry) Enabled() []*Endpoint {
	out := make([]*Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		if ep.Enabled() {
			out = append(out, ep)
		}
	}
	return out
}

func endpointRoot(global string, ec config.Endpoint) string {
	if ec.DownloadDir != "" && filepath.Clean(ec.DownloadDir) != filepath.Clean(global) {
		return ec.DownloadDir
	}
	return filepath.Join(global, fileutil.SanitizeName(ec.Name))
}
