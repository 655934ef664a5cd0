package collector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"filedrop/internal/config"
	"filedrop/internal/faults"
	"filedrop/internal/jobs"
	"filedrop/internal/logging"
	"filedrop/internal/notifications"
)

func testTimings() Timings {
	return Timings{
		PollBatch:          5,
		InterEndpointDelay: time.Second,
		ActiveInterval:     5 * time.Second,
		IdleFallback:       30 * time.Second,
		ErrorCooldown:      30 * time.Second,
	}
}

func names(eps []*Endpoint) []string {
	out := make([]string, 0, len(eps))
	for _, ep := range eps {
		out = append(out, ep.Name)
	}
	return out
}

func TestOrderSortsByPriorityDescending(t *testing.T) {
	// Named by priority; configured in priority order [3, 1, 2].
	p3 := NewEndpoint("p3", "", "", 3)
	p1 := NewEndpoint("p1", "", "", 1)
	p2 := NewEndpoint("p2", "", "", 2)
	if got := names(Order([]*Endpoint{p3, p1, p2})); !slices.Equal(got, []string{"p3", "p2", "p1"}) {
		t.Fatalf("Order = %v", got)
	}

	a := NewEndpoint("a", "", "", 1)
	b := NewEndpoint("b", "", "", 1)
	c := NewEndpoint("c", "", "", 1)
	b.SetEnabled(false)
	if got := names(Order([]*Endpoint{a, b, c})); !slices.Equal(got, []string{"a", "c"}) {
		t.Fatalf("equal priority should keep config order without disabled endpoints, got %v", got)
	}
}

func TestNextWait(t *testing.T) {
	timings := testTimings()
	fast := NewEndpoint("fast", "", "", 1)
	fast.PollInterval = 10 * time.Second
	slow := NewEndpoint("slow", "", "", 1)
	slow.PollInterval = 60 * time.Second

	tests := []struct {
		name    string
		found   bool
		enabled []*Endpoint
		want    time.Duration
	}{
		{"jobs found", true, []*Endpoint{slow}, 5 * time.Second},
		{"min poll interval", false, []*Endpoint{slow, fast}, 10 * time.Second},
		{"none enabled", false, nil, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextWait(tt.found, tt.enabled, timings); got != tt.want {
				t.Fatalf("NextWait = %v, want %v", got, tt.want)
			}
		})
	}
}

func newTestScheduler(t *testing.T, p *fakeProducer, eps ...*Endpoint) (*Scheduler, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	exec := NewExecutor(p, clock, LinearBackoff{Base: time.Second}, logging.NewNop())
	reg := NewStaticRegistry(t.TempDir(), eps...)
	return NewScheduler(reg, p, exec, clock, testTimings(), logging.NewNop()), clock
}

func TestRunCycleVisitsByPriorityWithDelaysBetween(t *testing.T) {
	p := newFakeProducer()
	eps := []*Endpoint{
		NewEndpoint("p3", "", t.TempDir(), 3),
		NewEndpoint("p1", "", t.TempDir(), 1),
		NewEndpoint("p2", "", t.TempDir(), 2),
	}
	s, clock := newTestScheduler(t, p, eps...)

	found, err := s.RunCycle(context.Background())
	if err != nil || found {
		t.Fatalf("RunCycle = %v, %v", found, err)
	}
	if !slices.Equal(p.polls, []string{"p3", "p2", "p1"}) {
		t.Fatalf("poll order = %v", p.polls)
	}
	if got := clock.Sleeps(); !slices.Equal(got, []time.Duration{time.Second, time.Second}) {
		t.Fatalf("inter-endpoint sleeps = %v", got)
	}
}

func TestRunCycleDownloadsBatch(t *testing.T) {
	p := newFakeProducer()
	ep := NewEndpoint("primary", "", t.TempDir(), 1)
	s, _ := newTestScheduler(t, p, ep)
	for i := 0; i < 7; i++ {
		p.add(ep.Name, jobs.New("f.txt", 1, time.Now()), []byte("x"))
	}

	found, err := s.RunCycle(context.Background())
	if err != nil || !found {
		t.Fatalf("RunCycle = %v, %v", found, err)
	}
	if len(p.completed) != 5 {
		t.Fatalf("expected one batch of 5, got %d", len(p.completed))
	}
	entries, _ := os.ReadDir(ep.Root)
	if len(entries) != 5 {
		t.Fatalf("expected 5 files, got %d", len(entries))
	}
	if stats := ep.Snapshot(); stats.FilesTransferred != 5 || stats.LastSyncAt.IsZero() {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestPollFailuresTrackConsecutiveErrors(t *testing.T) {
	p := newFakeProducer()
	ep := NewEndpoint("flaky", "", t.TempDir(), 1)
	s, _ := newTestScheduler(t, p, ep)
	p.pollErr[ep.Name] = faults.Wrap(faults.ErrUnreachable, ep.Name, "poll", "", errors.New("refused"))

	for i := 0; i < 3; i++ {
		if _, err := s.RunCycle(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	stats := ep.Snapshot()
	if stats.ConsecutiveErrors != 3 || stats.ErrorCount != 3 || !ep.Enabled() {
		t.Fatalf("unexpected stats %+v enabled=%v", stats, ep.Enabled())
	}

	delete(p.pollErr, ep.Name)
	if _, err := s.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if stats := ep.Snapshot(); stats.ConsecutiveErrors != 0 || stats.ErrorCount != 3 {
		t.Fatalf("success should reset the streak only, got %+v", stats)
	}
}

func TestNotifierReceivesBatchAndFailureAlerts(t *testing.T) {
	p := newFakeProducer()
	ep := NewEndpoint("primary", "", t.TempDir(), 1)
	s, _ := newTestScheduler(t, p, ep)
	n := &recordingNotifier{}
	s.SetNotifier(n, 2)

	p.add(ep.Name, jobs.New("a.txt", 3, time.Now()), []byte("abc"))
	if _, err := s.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(n.events, []notifications.Event{notifications.EventBatchDownloaded}) {
		t.Fatalf("events = %v", n.events)
	}
	if n.last["files"] != 1 || n.last["bytes"] != int64(3) {
		t.Fatalf("unexpected batch payload %v", n.last)
	}

	p.pollErr[ep.Name] = faults.Wrap(faults.ErrUnreachable, ep.Name, "poll", "", nil)
	for i := 0; i < 4; i++ {
		if _, err := s.RunCycle(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	want := []notifications.Event{notifications.EventBatchDownloaded, notifications.EventEndpointFailing}
	if !slices.Equal(n.events, want) {
		t.Fatalf("expected a single alert when the streak reaches the threshold, got %v", n.events)
	}
}

func TestRunWaitsActiveIntervalAfterJobs(t *testing.T) {
	p := newFakeProducer()
	ep := NewEndpoint("primary", "", t.TempDir(), 1)
	ep.PollInterval = 20 * time.Second
	s, clock := newTestScheduler(t, p, ep)
	p.add(ep.Name, jobs.New("a.txt", 1, time.Now()), []byte("x"))

	ctx, cancel := context.WithCancel(context.Background())
	clock.onSleep = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []time.Duration{5 * time.Second, 20 * time.Second}
	if got := clock.Sleeps(); !slices.Equal(got, want) {
		t.Fatalf("waits = %v, want %v", got, want)
	}
	if s.State() != StateIdle {
		t.Fatalf("state after stop = %s", s.State())
	}
}

func TestRunProbesOnceAndKeepsUnhealthyEndpointsEnabled(t *testing.T) {
	p := newFakeProducer()
	p.healthErr = faults.Wrap(faults.ErrUnreachable, "p", "health", "", errors.New("refused"))
	p2 := NewEndpoint("p2", "", t.TempDir(), 2)
	p1 := NewEndpoint("p1", "", t.TempDir(), 1)
	off := NewEndpoint("off", "", t.TempDir(), 3)
	off.SetEnabled(false)
	s, clock := newTestScheduler(t, p, p1, off, p2)

	ctx, cancel := context.WithCancel(context.Background())
	// Sleep 1 is the inter-endpoint delay, sleep 2 the wait after the cycle.
	clock.onSleep = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"health:p2", "health:p1", "poll:p2", "poll:p1"}
	if !slices.Equal(p.calls, want) {
		t.Fatalf("calls = %v, want %v", p.calls, want)
	}
	if !p1.Enabled() || !p2.Enabled() {
		t.Fatal("failed health probe must not disable endpoints")
	}
}

func TestRunCycleStopsBetweenEndpoints(t *testing.T) {
	p := newFakeProducer()
	eps := []*Endpoint{
		NewEndpoint("p3", "", t.TempDir(), 3),
		NewEndpoint("p2", "", t.TempDir(), 2),
		NewEndpoint("p1", "", t.TempDir(), 1),
	}
	s, clock := newTestScheduler(t, p, eps...)

	ctx, cancel := context.WithCancel(context.Background())
	clock.onSleep = func(int) { cancel() }
	if _, err := s.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !slices.Equal(p.polls, []string{"p3"}) {
		t.Fatalf("expected stop after the first endpoint, polled %v", p.polls)
	}
}

func TestRunCoolsDownAfterCyclePanic(t *testing.T) {
	p := newFakeProducer()
	p.pollPanic = true
	ep := NewEndpoint("primary", "", t.TempDir(), 1)
	s, clock := newTestScheduler(t, p, ep)

	ctx, cancel := context.WithCancel(context.Background())
	clock.onSleep = func(int) { cancel() }
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := clock.Sleeps(); !slices.Equal(got, []time.Duration{30 * time.Second}) {
		t.Fatalf("expected error cooldown, got %v", got)
	}
}

func TestRunCycleFailsWhenRootUnavailable(t *testing.T) {
	p := newFakeProducer()
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	clock := newFakeClock()
	reg := NewStaticRegistry(filepath.Join(blocker, "downloads"), NewEndpoint("p", "", t.TempDir(), 1))
	s := NewScheduler(reg, p, NewExecutor(p, clock, LinearBackoff{}, nil), clock, testTimings(), nil)
	if _, err := s.RunCycle(context.Background()); err == nil {
		t.Fatal("expected error when the download root cannot be created")
	}
}

func TestNewRegistryResolvesRoots(t *testing.T) {
	base := t.TempDir()
	custom := filepath.Join(base, "custom")
	disabled := false
	cfg := config.Collector{
		DownloadDir: filepath.Join(base, "downloads"),
		Endpoints: []config.Endpoint{
			{Name: "Primary Server", URL: "http://a", PollIntervalMS: 1000, MaxRetries: 3, Priority: 2},
			{Name: "Backup", URL: "http://b", DownloadDir: custom, PollIntervalMS: 1000, MaxRetries: 3, Priority: 1},
			{Name: "Off", URL: "http://c", PollIntervalMS: 1000, MaxRetries: 3, Priority: 1, Enabled: &disabled},
		},
	}
	reg := NewRegistry(cfg, logging.NewNop())
	all := reg.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 endpoints, got %d", len(all))
	}
	if all[0].Root != filepath.Join(base, "downloads", "Primary_Server") {
		t.Fatalf("unexpected root %s", all[0].Root)
	}
	if all[1].Root != custom {
		t.Fatalf("unexpected custom root %s", all[1].Root)
	}
	for _, ep := range all[:2] {
		if info, err := os.Stat(ep.Root); err != nil || !info.IsDir() {
			t.Fatalf("root %s not created: %v", ep.Root, err)
		}
	}
	if got := names(reg.Enabled()); !slices.Equal(got, []string{"Primary Server", "Backup"}) {
		t.Fatalf("enabled = %v", got)
	}
}
