package collector_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"filedrop/internal/collector"
	"filedrop/internal/config"
	"filedrop/internal/daemon"
	"filedrop/internal/logging"
	"filedrop/internal/testsupport"
)

type instantClock struct{}

func (instantClock) Now() time.Time { return time.Now() }

func (instantClock) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func startProducer(t *testing.T, opts ...testsupport.ConfigOption) (*config.Config, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	q := testsupport.MustOpenQueue(t, cfg)
	d, err := daemon.New(cfg, q, logging.NewNop(), "test")
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start producer: %v", err)
	}
	t.Cleanup(func() { _ = d.Stop() })
	return cfg, "http://" + d.Status().Address
}

func TestDroppedFileReachesCollector(t *testing.T) {
	producerCfg, url := startProducer(t, testsupport.WithAPIKey("shared"))

	consumerCfg := testsupport.NewConfig(t, testsupport.WithEndpoint(config.Endpoint{
		Name:   "Primary Server",
		URL:    url,
		APIKey: "shared",
	}))
	reg := collector.NewRegistry(consumerCfg.Collector, logging.NewNop())
	client := collector.NewHTTPClient("test-collector", nil)
	exec := collector.NewExecutor(client, instantClock{}, collector.LinearBackoff{Base: time.Millisecond}, logging.NewNop())
	sched := collector.NewScheduler(reg, client, exec, instantClock{}, collector.TimingsFromConfig(consumerCfg.Collector), logging.NewNop())

	time.Sleep(100 * time.Millisecond)
	data := testsupport.WriteFile(t, filepath.Join(producerCfg.Server.UploadDir, "a.txt"), 10)

	ep := reg.All()[0]
	target := filepath.Join(ep.Root, "a.txt")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := sched.RunCycle(context.Background()); err != nil {
			t.Fatalf("RunCycle: %v", err)
		}
		if _, err := os.Stat(target); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	testsupport.AssertFileContent(t, target, data)

	stats := ep.Snapshot()
	if stats.FilesTransferred != 1 || stats.BytesTransferred != 10 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	// The job was acknowledged, so another cycle transfers nothing.
	found, err := sched.RunCycle(context.Background())
	if err != nil || found {
		t.Fatalf("second cycle found=%v err=%v", found, err)
	}
	if names := testsupport.ListDir(t, ep.Root); len(names) != 1 {
		t.Fatalf("expected a single downloaded file, got %v", names)
	}
}

func TestWrongKeyDownloadsNothing(t *testing.T) {
	producerCfg, url := startProducer(t, testsupport.WithAPIKey("shared"))
	consumerCfg := testsupport.NewConfig(t, testsupport.WithEndpoint(config.Endpoint{
		Name:   "Primary Server",
		URL:    url,
		APIKey: "wrong",
	}))
	svc, err := collector.New(consumerCfg, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	testsupport.WriteFile(t, filepath.Join(producerCfg.Server.UploadDir, "a.txt"), 3)

	if _, err := svc.Scheduler.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	ep := svc.Registry.All()[0]
	if stats := ep.Snapshot(); stats.ConsecutiveErrors != 1 || stats.FilesTransferred != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
