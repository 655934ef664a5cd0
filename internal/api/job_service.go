package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/unicode/norm"

	"filedrop/internal/config"
	"filedrop/internal/faults"
	"filedrop/internal/fileutil"
	"filedrop/internal/jobs"
	"filedrop/internal/logging"
	"filedrop/internal/queue"
)

const (
	// DefaultPendingLimit applies when a caller asks for limit <= 0.
	DefaultPendingLimit = 10
	// MaxPendingLimit caps a single pending listing.
	MaxPendingLimit = 100
)

var (
	// ErrJobNotFound is returned for ids absent from the pending list.
	ErrJobNotFound = queue.ErrJobNotFound
	// ErrFileMissing is returned when a pending job's stored file is gone.
	ErrFileMissing = fmt.Errorf("%w: stored file", faults.ErrNotFound)
	// ErrTooLarge is returned when an upload exceeds the per-file limit.
	ErrTooLarge = errors.New("file exceeds upload limit")
)

// JobQueue abstracts the queue operations the service needs.
type JobQueue interface {
	Enqueue(ctx context.Context, job jobs.Job) error
	Pending(ctx context.Context, limit int) ([]jobs.Job, int64, error)
	Find(ctx context.Context, id string) (jobs.Job, error)
	Evict(ctx context.Context, id string) (jobs.Job, error)
	Complete(ctx context.Context, id string, at time.Time) (jobs.Job, error)
	Counts(ctx context.Context) (pending, completed int64, err error)
}

// Download is an open stored file ready to stream. Callers close File.
type Download struct {
	Job     jobs.Job
	File    *os.File
	Size    int64
	ModTime time.Time
}

// JobService implements the producer's job operations over a queue and the
// upload directory.
type JobService struct {
	queue   JobQueue
	logger  *slog.Logger
	version string
	now     func() time.Time
	started time.Time

	uploadDir           string
	deleteAfterDownload bool
	authEnabled         bool
	maxFileBytes        int64
	maxFiles            int
}

// NewJobService constructs a JobService for cfg.
func NewJobService(cfg *config.Config, q JobQueue, logger *slog.Logger, version string) *JobService {
	if q == nil || cfg == nil {
		return nil
	}
	if version == "" {
		version = "dev"
	}
	return &JobService{
		queue:               q,
		logger:              logging.NewComponentLogger(logger, "jobs"),
		version:             version,
		now:                 time.Now,
		started:             time.Now(),
		uploadDir:           cfg.Server.UploadDir,
		deleteAfterDownload: cfg.Cleanup.DeleteAfterDownload,
		authEnabled:         cfg.Auth.Enabled,
		maxFileBytes:        cfg.MaxUploadBytes(),
		maxFiles:            cfg.Server.MaxFiles,
	}
}

// SetClock overrides the time source used for timestamps and uptime.
func (s *JobService) SetClock(now func() time.Time) {
	s.now = now
	s.started = now()
}

// UploadDir returns the directory holding stored files.
func (s *JobService) UploadDir() string { return s.uploadDir }

// MaxFiles returns the per-request upload file limit.
func (s *JobService) MaxFiles() int { return s.maxFiles }

// MaxFileBytes returns the per-file upload limit in bytes.
func (s *JobService) MaxFileBytes() int64 { return s.maxFileBytes }

// ListPending returns up to limit jobs from the head of the queue plus the
// total pending count.
func (s *JobService) ListPending(ctx context.Context, limit int) ([]jobs.Job, int64, error) {
	switch {
	case limit <= 0:
		limit = DefaultPendingLimit
	case limit > MaxPendingLimit:
		limit = MaxPendingLimit
	}
	return s.queue.Pending(ctx, limit)
}

// OpenDownload opens the stored file of a pending job. When the file has
// vanished the job is evicted and ErrFileMissing is returned.
func (s *JobService) OpenDownload(ctx context.Context, id string) (*Download, error) {
	job, err := s.queue.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	path := s.storedPath(job)
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.evictMissing(ctx, job)
			return nil, ErrFileMissing
		}
		return nil, fmt.Errorf("open %s: %w", job.StoredName, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat %s: %w", job.StoredName, err)
	}
	return &Download{Job: job, File: file, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// CompleteJob marks a pending job completed and removes its file when
// delete-after-download is enabled.
func (s *JobService) CompleteJob(ctx context.Context, id string) (jobs.Job, error) {
	job, err := s.queue.Complete(ctx, id, s.now())
	if err != nil {
		return jobs.Job{}, err
	}
	logger := s.logger.With(logging.String(logging.FieldJobID, job.ID))
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_completed"),
		logging.String("file", job.OriginalName),
		logging.Int64("size", job.Size),
	)
	if s.deleteAfterDownload {
		if err := os.Remove(s.storedPath(job)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.WarnWithContext(logger, "delete after download failed", "cleanup_delete_failed",
				logging.String("file", job.StoredName),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on the upload directory"),
				logging.String(logging.FieldImpact, "file stays until the retention sweep"),
			)
		}
	}
	return job, nil
}

// EvictStale removes every pending job whose stored file no longer exists and
// returns how many were evicted.
func (s *JobService) EvictStale(ctx context.Context) (int, error) {
	total, _, err := s.queue.Counts(ctx)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	pending, _, err := s.queue.Pending(ctx, int(total))
	if err != nil {
		return 0, err
	}
	evicted := 0
	for _, job := range pending {
		if err := ctx.Err(); err != nil {
			return evicted, err
		}
		if _, err := os.Stat(s.storedPath(job)); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if s.evictMissing(ctx, job) {
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Info("stale jobs evicted",
			logging.String(logging.FieldEventType, "stale_jobs_evicted"),
			logging.Int("count", evicted),
		)
	}
	return evicted, nil
}

// Health reports liveness.
func (s *JobService) Health() HealthResponse {
	return HealthResponse{Status: "ok", Timestamp: FormatTime(s.now())}
}

// Status reports queue depth, runtime and limits.
func (s *JobService) Status(ctx context.Context) (StatusResponse, error) {
	pending, completed, err := s.queue.Counts(ctx)
	if err != nil {
		return StatusResponse{}, err
	}
	free, err := fileutil.FreeBytes(s.uploadDir)
	if err != nil {
		s.logger.Debug("free space unavailable", logging.Error(err))
	}
	now := s.now()
	return StatusResponse{
		Status:         "ok",
		Version:        s.version,
		StartedAt:      FormatTime(s.started),
		UptimeSeconds:  int64(now.Sub(s.started) / time.Second),
		Queue:          QueueCounts{Pending: pending, Completed: completed},
		UploadDir:      s.uploadDir,
		FreeBytes:      free,
		AuthEnabled:    s.authEnabled,
		DeleteOnFinish: s.deleteAfterDownload,
		Limits:         Limits{MaxFileBytes: s.maxFileBytes, MaxFiles: s.maxFiles},
	}, nil
}

// Accept stores r under a fresh stored name and enqueues the job. The body is
// written to a hidden temp file first so the intake watcher never sees a
// partial upload.
func (s *JobService) Accept(ctx context.Context, originalName string, r io.Reader) (jobs.Job, error) {
	name := norm.NFC.String(fileutil.BaseName(originalName))
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return jobs.Job{}, fmt.Errorf("ensure upload dir: %w", err)
	}
	if s.maxFileBytes > 0 {
		r = io.LimitReader(r, s.maxFileBytes+1)
	}
	tmp, n, err := fileutil.StreamToTemp(s.uploadDir, r, nil)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("receive %s: %w", name, err)
	}
	if s.maxFileBytes > 0 && n > s.maxFileBytes {
		_ = os.Remove(tmp)
		return jobs.Job{}, fmt.Errorf("%s: %w", name, ErrTooLarge)
	}

	job, err := s.placeStored(tmp, name, n)
	if err != nil {
		_ = os.Remove(tmp)
		return jobs.Job{}, err
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		_ = os.Remove(s.storedPath(job))
		return jobs.Job{}, err
	}
	s.logger.Info("upload queued",
		logging.String(logging.FieldEventType, "job_enqueued"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String("file", job.OriginalName),
		logging.Int64("size", job.Size),
	)
	return job, nil
}

// placeStored links tmp to a free stored name. Two uploads of the same name in
// the same millisecond get distinct stored names.
func (s *JobService) placeStored(tmp, name string, size int64) (jobs.Job, error) {
	job, err := jobs.Place(tmp, s.uploadDir, name, size, s.now())
	if err != nil {
		return jobs.Job{}, fmt.Errorf("store %s: %w", name, err)
	}
	return job, nil
}

func (s *JobService) storedPath(job jobs.Job) string {
	return filepath.Join(s.uploadDir, filepath.Base(job.StoredName))
}

func (s *JobService) evictMissing(ctx context.Context, job jobs.Job) bool {
	_, err := s.queue.Evict(ctx, job.ID)
	if err != nil && !errors.Is(err, ErrJobNotFound) {
		s.logger.Error("evict stale job failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
		)
		return false
	}
	logging.WarnWithContext(s.logger, "stale job evicted; stored file missing", "stale_job",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("file", job.StoredName),
		logging.String(logging.FieldErrorHint, "file was removed by retention or by hand"),
		logging.String(logging.FieldImpact, "job will not be delivered"),
	)
	return err == nil
}
