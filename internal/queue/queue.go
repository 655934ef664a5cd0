package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"filedrop/internal/faults"
	"filedrop/internal/jobs"
	"filedrop/internal/logging"
)

// ErrJobNotFound is returned when an id is absent from the pending list.
var ErrJobNotFound = fmt.Errorf("%w: job", faults.ErrNotFound)

const scanPageSize = 100

// Queue owns the pending and completed lists. All compound operations run
// under mu; each store call is atomic on its own.
type Queue struct {
	store        ListStore
	pendingKey   string
	completedKey string
	logger       *slog.Logger

	mu    sync.Mutex
	index map[string]string
}

// New wraps store with the job lifecycle. A nil logger discards output.
func New(store ListStore, pendingKey, completedKey string, logger *slog.Logger) *Queue {
	return &Queue{
		store:        store,
		pendingKey:   pendingKey,
		completedKey: completedKey,
		logger:       logging.NewComponentLogger(logger, "queue"),
		index:        make(map[string]string),
	}
}

// Enqueue appends job to the tail of the pending list.
func (q *Queue) Enqueue(ctx context.Context, job jobs.Job) error {
	raw, err := jobs.Encode(job)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.store.Push(ctx, q.pendingKey, raw); err != nil {
		return faults.Wrap(faults.ErrStorage, "queue", "enqueue", job.ID, err)
	}
	q.index[job.ID] = raw
	return nil
}

// Pending returns up to limit jobs from the head of the pending list plus the
// total pending count; limit <= 0 returns all. It never mutates the queue.
func (q *Queue) Pending(ctx context.Context, limit int) ([]jobs.Job, int64, error) {
	stop := int64(limit) - 1
	if limit <= 0 {
		stop = -1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.readList(ctx, q.pendingKey, 0, stop, true)
}

// Completed returns up to limit of the most recently completed jobs, oldest
// first, plus the total completed count; limit <= 0 returns all.
func (q *Queue) Completed(ctx context.Context, limit int) ([]jobs.Job, int64, error) {
	start := -int64(limit)
	if limit <= 0 {
		start = 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.readList(ctx, q.completedKey, start, -1, false)
}

func (q *Queue) readList(ctx context.Context, key string, start, stop int64, indexed bool) ([]jobs.Job, int64, error) {
	total, err := q.store.Len(ctx, key)
	if err != nil {
		return nil, 0, faults.Wrap(faults.ErrStorage, "queue", "length", key, err)
	}
	// A read of the whole pending list replaces the index, dropping ids that
	// other producers completed or evicted.
	if indexed && start == 0 && (stop < 0 || stop+1 >= total) {
		q.index = make(map[string]string, total)
	}
	if total == 0 {
		return []jobs.Job{}, total, nil
	}
	values, err := q.store.Range(ctx, key, start, stop)
	if err != nil {
		return nil, 0, faults.Wrap(faults.ErrStorage, "queue", "range", key, err)
	}
	out := make([]jobs.Job, 0, len(values))
	for _, raw := range values {
		job, err := jobs.Decode(raw)
		if err != nil {
			logging.WarnWithContext(q.logger, "skipping undecodable queue entry", "queue_entry_invalid",
				logging.String("list", key),
				logging.Error(err),
				logging.String(logging.FieldImpact, "entry is not served to collectors"),
			)
			continue
		}
		if indexed {
			q.index[job.ID] = raw
		}
		out = append(out, job)
	}
	return out, total, nil
}

// Counts returns the pending and completed list lengths.
func (q *Queue) Counts(ctx context.Context) (pending, completed int64, err error) {
	if pending, err = q.store.Len(ctx, q.pendingKey); err != nil {
		return 0, 0, faults.Wrap(faults.ErrStorage, "queue", "length", q.pendingKey, err)
	}
	if completed, err = q.store.Len(ctx, q.completedKey); err != nil {
		return 0, 0, faults.Wrap(faults.ErrStorage, "queue", "length", q.completedKey, err)
	}
	return pending, completed, nil
}

// Find returns the pending job with id.
func (q *Queue) Find(ctx context.Context, id string) (jobs.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	raw, err := q.lookup(ctx, id, true)
	if err != nil {
		return jobs.Job{}, err
	}
	return jobs.Decode(raw)
}

// Evict removes a pending job without recording it as completed.
func (q *Queue) Evict(ctx context.Context, id string) (jobs.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	useIndex := true
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := q.lookup(ctx, id, useIndex)
		if err != nil {
			return jobs.Job{}, err
		}
		n, err := q.store.Remove(ctx, q.pendingKey, raw)
		if err != nil {
			return jobs.Job{}, faults.Wrap(faults.ErrStorage, "queue", "evict", id, err)
		}
		delete(q.index, id)
		if n > 0 {
			return jobs.Decode(raw)
		}
		useIndex = false
	}
	return jobs.Job{}, ErrJobNotFound
}

// Complete atomically moves a pending job to the completed list, stamping
// completedAt. A second completion of the same id returns ErrJobNotFound.
func (q *Queue) Complete(ctx context.Context, id string, at time.Time) (jobs.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	useIndex := true
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := q.lookup(ctx, id, useIndex)
		if err != nil {
			return jobs.Job{}, err
		}
		job, err := jobs.Decode(raw)
		if err != nil {
			return jobs.Job{}, err
		}
		done := job.Completed(at)
		doneRaw, err := jobs.Encode(done)
		if err != nil {
			return jobs.Job{}, err
		}
		moved, err := q.store.Move(ctx, q.pendingKey, raw, q.completedKey, doneRaw)
		if err != nil {
			return jobs.Job{}, faults.Wrap(faults.ErrStorage, "queue", "complete", id, err)
		}
		delete(q.index, id)
		if moved {
			return done, nil
		}
		// The index was stale (another producer removed the entry); rescan once.
		useIndex = false
	}
	return jobs.Job{}, ErrJobNotFound
}

// ClearCompleted drops the completed audit list.
func (q *Queue) ClearCompleted(ctx context.Context) (int64, error) {
	n, err := q.store.Clear(ctx, q.completedKey)
	if err != nil {
		return 0, faults.Wrap(faults.ErrStorage, "queue", "clear completed", q.completedKey, err)
	}
	return n, nil
}

// lookup resolves id to its encoded pending entry, consulting the index first
// and falling back to a paged scan of the pending list. Callers hold mu.
func (q *Queue) lookup(ctx context.Context, id string, useIndex bool) (string, error) {
	if useIndex {
		if raw, ok := q.index[id]; ok {
			return raw, nil
		}
	}
	seen := make(map[string]string)
	for start := int64(0); ; start += scanPageSize {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		values, err := q.store.Range(ctx, q.pendingKey, start, start+scanPageSize-1)
		if err != nil {
			return "", faults.Wrap(faults.ErrStorage, "queue", "scan", q.pendingKey, err)
		}
		for _, raw := range values {
			job, err := jobs.Decode(raw)
			if err != nil {
				continue
			}
			q.index[job.ID] = raw
			seen[job.ID] = raw
			if job.ID == id {
				return raw, nil
			}
		}
		if len(values) < scanPageSize {
			q.index = seen
			return "", ErrJobNotFound
		}
	}
}
