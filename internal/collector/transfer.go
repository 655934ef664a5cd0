package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"filedrop/internal/faults"
	"filedrop/internal/fileutil"
	"filedrop/internal/jobs"
	"filedrop/internal/logging"
)

// Executor downloads single jobs with retries and stores them without ever
// overwriting an existing file.
type Executor struct {
	client  Producer
	clock   Clock
	backoff Backoff
	logger  *slog.Logger
}

// NewExecutor constructs an executor. A nil clock uses the wall clock.
func NewExecutor(client Producer, clock Clock, backoff Backoff, logger *slog.Logger) *Executor {
	if clock == nil {
		clock = RealClock()
	}
	return &Executor{
		client:  client,
		clock:   clock,
		backoff: backoff,
		logger:  logging.NewComponentLogger(logger, "transfer"),
	}
}

// Download fetches job from ep into ep.Root and acknowledges it. It returns
// the placed path, or the last attempt's error once retries are exhausted.
func (e *Executor) Download(ctx context.Context, ep *Endpoint, job jobs.Job) (string, error) {
	logger := e.logger.With(
		logging.String(logging.FieldEndpoint, ep.Name),
		logging.String(logging.FieldJobID, job.ID),
	)
	attempts := max(ep.MaxRetries, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		path, err := e.attempt(ctx, ep, job, logger)
		if err == nil {
			ep.recordTransfer(job.Size)
			logger.Info("file downloaded",
				logging.String(logging.FieldEventType, "download_completed"),
				logging.String("file", filepath.Base(path)),
				logging.String("size", humanize.IBytes(uint64(max(job.Size, 0)))),
				logging.Int("attempt", attempt),
			)
			e.acknowledge(ctx, ep, job, logger)
			return path, nil
		}
		lastErr = err

		retry := faults.Retryable(err) && attempt < attempts && ctx.Err() == nil
		logging.WarnWithContext(logger, "download attempt failed", "download_attempt_failed",
			logging.String("file", job.OriginalName),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
			logging.Bool("will_retry", retry),
			logging.Error(err),
			logging.String(logging.FieldImpact, "file stays pending on the producer"),
		)
		if !retry {
			break
		}
		if err := e.clock.Sleep(ctx, e.backoff.Delay(attempt)); err != nil {
			break
		}
	}

	ep.recordTransferFailure()
	logging.ErrorWithContext(logger, "download abandoned for this cycle", "download_failed",
		logging.String("file", job.OriginalName),
		logging.Error(lastErr),
		logging.String(logging.FieldErrorHint, "the job is retried on the next poll"),
	)
	return "", lastErr
}

func (e *Executor) attempt(ctx context.Context, ep *Endpoint, job jobs.Job, logger *slog.Logger) (string, error) {
	body, err := e.client.Download(ctx, ep, job.ID)
	if err != nil {
		return "", err
	}
	defer body.Close()

	progress := &progressWriter{total: job.Size, sampler: logging.NewProgressSampler(10), logger: logger}
	tmp, n, err := fileutil.StreamToTemp(ep.Root, body, progress)
	if err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return "", faults.Wrap(faults.ErrStorage, ep.Name, "download", "write temp file", err)
		}
		return "", err
	}
	if n != job.Size {
		_ = os.Remove(tmp)
		return "", faults.Wrap(faults.ErrSizeMismatch, ep.Name, "download",
			fmt.Sprintf("%s: got %d bytes, expected %d", job.OriginalName, n, job.Size), nil)
	}

	path, err := fileutil.PlaceUnique(tmp, ep.Root, fileutil.BaseName(job.OriginalName))
	if err != nil {
		_ = os.Remove(tmp)
		return "", faults.Wrap(faults.ErrStorage, ep.Name, "download", "place file", err)
	}
	return path, nil
}

// acknowledge marks the job completed on the producer. Failures are logged
// only; the producer will offer the job again and it is stored with a suffix.
func (e *Executor) acknowledge(ctx context.Context, ep *Endpoint, job jobs.Job, logger *slog.Logger) {
	if err := e.client.Complete(ctx, ep, job.ID); err != nil {
		logging.WarnWithContext(logger, "completion acknowledgement failed", "complete_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check producer reachability"),
			logging.String(logging.FieldImpact, "the file may be downloaded again as a duplicate"),
		)
	}
}

type progressWriter struct {
	total   int64
	written int64
	sampler *logging.ProgressSampler
	logger  *slog.Logger
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.total > 0 {
		percent := float64(p.written) * 100 / float64(p.total)
		if p.sampler.ShouldLog(percent) {
			p.logger.Debug("download progress",
				logging.String("received", humanize.IBytes(uint64(p.written))),
				logging.String("total", humanize.IBytes(uint64(p.total))),
				logging.Int("percent", int(percent)),
			)
		}
	}
	return len(b), nil
}
