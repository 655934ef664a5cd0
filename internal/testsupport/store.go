package testsupport

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"filedrop/internal/config"
	"filedrop/internal/jobs"
	"filedrop/internal/logging"
	"filedrop/internal/queue"
)

// MustOpenStore opens the SQLite list store under the config's state dir and
// registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.SQLiteStore {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store, err := queue.OpenSQLite(context.Background(), cfg.QueueDBPath())
	if err != nil {
		t.Fatalf("queue.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenQueue returns a Queue over a fresh SQLite store.
func MustOpenQueue(t testing.TB, cfg *config.Config) *queue.Queue {
	t.Helper()
	return queue.New(MustOpenStore(t, cfg), cfg.PendingKey(), cfg.CompletedKey(), logging.NewNop())
}

// EnqueueFile writes a stored file of size bytes into dir and enqueues the
// matching job, returning the job and the payload.
func EnqueueFile(t testing.TB, q *queue.Queue, dir, name string, size int) (jobs.Job, []byte) {
	t.Helper()

	job := jobs.New(name, int64(size), time.Now())
	data := WriteFile(t, filepath.Join(dir, job.StoredName), size)
	if err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue %s: %v", name, err)
	}
	return job, data
}
