// Package retention removes aged files from the producer's upload directory.
package retention

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filedrop/internal/logging"
)

// Result summarizes one sweep.
type Result struct {
	Scanned int
	Deleted int
	Failed  int
}

// Sweeper deletes regular files older than MaxAge, regardless of queue state.
// Jobs whose files it removes are evicted later by the stale-job pass.
type Sweeper struct {
	Dir      string
	MaxAge   time.Duration
	Interval time.Duration
	// OnSweep runs after every sweep that deleted at least one file.
	OnSweep func(ctx context.Context, res Result)

	logger *slog.Logger
	now    func() time.Time
}

// New constructs a sweeper. maxAge <= 0 disables sweeping.
func New(dir string, maxAge, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		Dir:      dir,
		MaxAge:   maxAge,
		Interval: interval,
		logger:   logging.NewComponentLogger(logger, "retention"),
		now:      time.Now,
	}
}

// SetClock overrides the time source used to compute the cutoff.
func (s *Sweeper) SetClock(now func() time.Time) { s.now = now }

// SweepOnce deletes every aged regular file once. Per-file failures are
// counted and logged, never returned.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	var res Result
	if s.MaxAge <= 0 {
		return res, nil
	}
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return res, err
	}
	cutoff := s.now().Add(-s.MaxAge)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := entry.Name()
		if entry.IsDir() || !sweepable(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		res.Scanned++
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.Dir, name)
		if err := os.Remove(path); err != nil {
			res.Failed++
			logging.WarnWithContext(s.logger, "retention delete failed; file remains", "retention_delete_failed",
				logging.String("file", name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on the upload directory"),
				logging.String(logging.FieldImpact, "aged file stays on disk until the next sweep"),
			)
			continue
		}
		res.Deleted++
		s.logger.Debug("aged file removed", logging.String("file", name), logging.Time("modified", info.ModTime()))
	}

	s.logger.Info("retention sweep finished",
		logging.String(logging.FieldEventType, "retention_sweep"),
		logging.Int("scanned", res.Scanned),
		logging.Int("deleted", res.Deleted),
		logging.Int("failed", res.Failed),
	)
	return res, nil
}

// Run sweeps immediately and then every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.MaxAge <= 0 {
		s.logger.Info("retention sweep disabled", logging.String(logging.FieldEventType, "retention_disabled"))
		return nil
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	res, err := s.SweepOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logging.WarnWithContext(s.logger, "retention sweep failed", "retention_sweep_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "aged files were not removed this cycle"),
			)
		}
		return
	}
	if res.Deleted > 0 && s.OnSweep != nil {
		s.OnSweep(ctx, res)
	}
}

// sweepable reports whether name is subject to retention. Hidden files are
// left alone except abandoned upload temp files.
func sweepable(name string) bool {
	return !strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".part")
}
