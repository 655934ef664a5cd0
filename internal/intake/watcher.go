package intake

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/text/unicode/norm"

	"filedrop/internal/fileutil"
	"filedrop/internal/jobs"
	"filedrop/internal/logging"
)

// DefaultPollInterval is how often pending files are re-checked for stability.
const DefaultPollInterval = 100 * time.Millisecond

// Enqueuer receives jobs for stable files.
type Enqueuer interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

type candidate struct {
	size    int64
	modTime time.Time
	since   time.Time
}

// Watcher turns files that appear in a directory into queued jobs. A file is
// picked up once its size and modification time have been unchanged for the
// stability window. Files present when the watcher starts are ignored.
type Watcher struct {
	dir          string
	stability    time.Duration
	pollInterval time.Duration
	queue        Enqueuer
	logger       *slog.Logger
	now          func() time.Time

	initial map[string]struct{}
	pending map[string]*candidate
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// New constructs a watcher for dir.
func New(dir string, stability time.Duration, queue Enqueuer, logger *slog.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		dir:          dir,
		stability:    stability,
		pollInterval: DefaultPollInterval,
		queue:        queue,
		logger:       logging.NewComponentLogger(logger, "intake"),
		now:          time.Now,
		initial:      make(map[string]struct{}),
		pending:      make(map[string]*candidate),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches the directory until ctx is cancelled. Only failure to start
// watching is returned; per-file problems are logged.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("ensure upload dir: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.snapshotInitial()

	w.logger.Info("intake watcher started",
		logging.String(logging.FieldEventType, "intake_started"),
		logging.String("dir", w.dir),
		logging.Duration("stability", w.stability),
		logging.Int("ignored_existing", len(w.initial)),
	)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("intake watcher stopped", logging.String(logging.FieldEventType, "intake_stopped"))
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.observe(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "intake watcher error", "intake_watch_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check inotify limits (fs.inotify.max_user_watches)"),
				logging.String(logging.FieldImpact, "some dropped files may not be picked up"),
			)
		case <-ticker.C:
			w.checkStable(ctx)
		}
	}
}

func (w *Watcher) snapshotInitial() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		w.initial[entry.Name()] = struct{}{}
	}
}

func (w *Watcher) observe(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		delete(w.pending, name)
		delete(w.initial, name)
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if ev.Has(fsnotify.Create) {
		delete(w.initial, name)
	} else if _, existing := w.initial[name]; existing {
		return
	}
	if skip, reason := shouldSkip(name); skip {
		if reason != "" {
			w.logger.Debug("ignoring file", logging.String("file", name), logging.String("reason", reason))
		}
		return
	}
	w.track(name)
}

// shouldSkip filters names that never become jobs. Names carrying the stored
// name separator are treated as already processed.
func shouldSkip(name string) (bool, string) {
	switch {
	case strings.HasPrefix(name, "."):
		return true, ""
	case jobs.HasSeparator(name):
		return true, "name contains " + jobs.Separator
	default:
		return false, ""
	}
}

func (w *Watcher) track(name string) {
	info, err := os.Stat(filepath.Join(w.dir, name))
	if err != nil || !info.Mode().IsRegular() {
		delete(w.pending, name)
		return
	}
	c, ok := w.pending[name]
	if !ok {
		w.pending[name] = &candidate{size: info.Size(), modTime: info.ModTime(), since: w.now()}
		return
	}
	if c.size != info.Size() || !c.modTime.Equal(info.ModTime()) {
		c.size, c.modTime, c.since = info.Size(), info.ModTime(), w.now()
	}
}

func (w *Watcher) checkStable(ctx context.Context) {
	now := w.now()
	for name, c := range w.pending {
		info, err := os.Stat(filepath.Join(w.dir, name))
		if err != nil || !info.Mode().IsRegular() {
			delete(w.pending, name)
			continue
		}
		if info.Size() != c.size || !info.ModTime().Equal(c.modTime) {
			c.size, c.modTime, c.since = info.Size(), info.ModTime(), now
			continue
		}
		if now.Sub(c.since) < w.stability {
			continue
		}
		delete(w.pending, name)
		w.process(ctx, name, info.Size())
	}
}

// process moves a stable file to a free stored name and enqueues the job. The
// move happens first so a job never references a file that is not yet in
// place; if enqueue fails the move is undone and the file is picked up again.
// Stored files already in the directory are never replaced.
func (w *Watcher) process(ctx context.Context, name string, size int64) {
	original := norm.NFC.String(name)
	src := filepath.Join(w.dir, name)

	job, err := jobs.Place(src, w.dir, original, size, w.now())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		logging.WarnWithContext(w.logger, "intake rename failed", "intake_rename_failed",
			logging.String("file", name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the upload directory"),
			logging.String(logging.FieldImpact, "file was not queued"),
		)
		return
	}
	dst := filepath.Join(w.dir, job.StoredName)

	if err := w.queue.Enqueue(ctx, job); err != nil {
		logging.ErrorWithContext(w.logger, "enqueue failed; file will be retried", "intake_enqueue_failed",
			logging.String("file", name),
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue store connectivity"),
		)
		if _, rerr := fileutil.PlaceUnique(dst, w.dir, name); rerr != nil {
			w.logger.Error("restore original name failed",
				logging.String("file", name),
				logging.Error(rerr),
			)
		}
		return
	}

	w.logger.Info("file queued",
		logging.String(logging.FieldEventType, "job_enqueued"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String("file", original),
		logging.Int64("size", size),
	)
}
