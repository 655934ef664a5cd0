package collector

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"filedrop/internal/faults"
	"filedrop/internal/jobs"
	"filedrop/internal/logging"
	"filedrop/internal/testsupport"
)

func newTestExecutor(t *testing.T, p Producer) (*Executor, *fakeClock, *Endpoint) {
	t.Helper()
	clock := newFakeClock()
	ep := NewEndpoint("primary", "http://unused", t.TempDir(), 1)
	return NewExecutor(p, clock, LinearBackoff{Base: 2 * time.Second}, logging.NewNop()), clock, ep
}

func TestLinearBackoff(t *testing.T) {
	b := LinearBackoff{Base: 2 * time.Second}
	for attempt, want := range map[int]time.Duration{0: 2 * time.Second, 1: 2 * time.Second, 2: 4 * time.Second, 3: 6 * time.Second} {
		if got := b.Delay(attempt); got != want {
			t.Fatalf("Delay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestDownloadStoresFileAndAcknowledges(t *testing.T) {
	p := newFakeProducer()
	exec, clock, ep := newTestExecutor(t, p)
	job := jobs.New("a.txt", 10, time.Now())
	data := testsupport.Payload(10)
	p.add(ep.Name, job, data)

	path, err := exec.Download(context.Background(), ep, job)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if path != filepath.Join(ep.Root, "a.txt") {
		t.Fatalf("placed at %s", path)
	}
	testsupport.AssertFileContent(t, path, data)
	stats := ep.Snapshot()
	if stats.FilesTransferred != 1 || stats.BytesTransferred != 10 || stats.ErrorCount != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !slices.Equal(p.completed, []string{job.ID}) {
		t.Fatalf("expected completion for %s, got %v", job.ID, p.completed)
	}
	if len(clock.Sleeps()) != 0 {
		t.Fatalf("unexpected sleeps %v", clock.Sleeps())
	}
}

func TestDuplicateNameGetsSuffix(t *testing.T) {
	p := newFakeProducer()
	exec, _, ep := newTestExecutor(t, p)
	first := jobs.New("a.txt", 3, time.Now())
	second := jobs.New("a.txt", 4, time.Now())
	p.add(ep.Name, first, []byte("one"))
	p.add(ep.Name, second, []byte("four"))

	if _, err := exec.Download(context.Background(), ep, first); err != nil {
		t.Fatal(err)
	}
	path, err := exec.Download(context.Background(), ep, second)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "a (1).txt" {
		t.Fatalf("second copy placed as %s", filepath.Base(path))
	}
	testsupport.AssertFileContent(t, filepath.Join(ep.Root, "a.txt"), []byte("one"))
	testsupport.AssertFileContent(t, path, []byte("four"))
}

func TestRetriesSleepLinearlyAndStopAfterLastAttempt(t *testing.T) {
	p := newFakeProducer()
	exec, clock, ep := newTestExecutor(t, p)
	unreachable := faults.Wrap(faults.ErrUnreachable, ep.Name, "download", "", errors.New("connection refused"))
	p.downloadErrs = []error{unreachable, unreachable, unreachable}
	job := jobs.New("a.txt", 1, time.Now())

	_, err := exec.Download(context.Background(), ep, job)
	if !errors.Is(err, faults.ErrUnreachable) {
		t.Fatalf("expected unreachable, got %v", err)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if got := clock.Sleeps(); !slices.Equal(got, want) {
		t.Fatalf("sleeps = %v, want %v", got, want)
	}
	if p.downloads != 3 {
		t.Fatalf("attempts = %d, want 3", p.downloads)
	}
	if stats := ep.Snapshot(); stats.ErrorCount != 1 || stats.FilesTransferred != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(p.completed) != 0 {
		t.Fatal("failed job must not be acknowledged")
	}
}

func TestUnauthorizedAbortsRetries(t *testing.T) {
	p := newFakeProducer()
	exec, clock, ep := newTestExecutor(t, p)
	p.downloadErrs = []error{faults.Wrap(faults.ErrUnauthorized, ep.Name, "download", "http 401", nil)}
	job := jobs.New("a.txt", 1, time.Now())

	if _, err := exec.Download(context.Background(), ep, job); !errors.Is(err, faults.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if p.downloads != 1 || len(clock.Sleeps()) != 0 {
		t.Fatalf("expected single attempt without sleeping, got %d attempts, sleeps %v", p.downloads, clock.Sleeps())
	}
}

func TestTruncatedBodyIsRetriedThenAbandoned(t *testing.T) {
	p := newFakeProducer()
	exec, clock, ep := newTestExecutor(t, p)
	job := jobs.New("short.bin", 10, time.Now())
	p.add(ep.Name, job, []byte("12345"))

	_, err := exec.Download(context.Background(), ep, job)
	if !errors.Is(err, faults.ErrSizeMismatch) {
		t.Fatalf("expected size mismatch, got %v", err)
	}
	if p.downloads != 3 || len(clock.Sleeps()) != 2 {
		t.Fatalf("attempts=%d sleeps=%v", p.downloads, clock.Sleeps())
	}
	if names := testsupport.ListDir(t, ep.Root); len(names) != 0 {
		t.Fatalf("partial files left behind: %v", names)
	}
}

func TestZeroRetriesStillAttemptsOnce(t *testing.T) {
	p := newFakeProducer()
	exec, _, ep := newTestExecutor(t, p)
	ep.MaxRetries = 0
	job := jobs.New("a.txt", 1, time.Now())
	p.add(ep.Name, job, []byte("x"))

	if _, err := exec.Download(context.Background(), ep, job); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if p.downloads != 1 {
		t.Fatalf("attempts = %d, want 1", p.downloads)
	}
}

func TestAcknowledgementFailureKeepsFile(t *testing.T) {
	p := newFakeProducer()
	exec, _, ep := newTestExecutor(t, p)
	p.completeErr = faults.Wrap(faults.ErrTimeout, ep.Name, "complete", "", nil)
	job := jobs.New("a.txt", 2, time.Now())
	p.add(ep.Name, job, []byte("ok"))

	path, err := exec.Download(context.Background(), ep, job)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	testsupport.AssertFileContent(t, path, []byte("ok"))
	if ep.Snapshot().FilesTransferred != 1 {
		t.Fatal("transfer should count even when acknowledgement fails")
	}
}
