package preflight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filedrop/internal/api"
	"filedrop/internal/collector"
	"filedrop/internal/config"
	"filedrop/internal/logging"
	"filedrop/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "read/write ok") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckQueueStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	testsupport.EnqueueFile(t, q, t.TempDir(), "a.txt", 1)

	result := CheckQueueStore(context.Background(), cfg)
	if !result.Passed || !strings.Contains(result.Detail, "1 pending") || !strings.Contains(result.Detail, cfg.QueueDBPath()) {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckQueueStore_UnsupportedBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Queue.Backend = "memcached"
	if result := CheckQueueStore(context.Background(), cfg); result.Passed {
		t.Fatalf("expected failure, got %+v", result)
	}
}

func TestRunProducer(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	results := RunProducer(context.Background(), cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	// The upload directory is created by serve, so it is the only failure.
	if Failed(results) != 1 || results[2].Passed {
		t.Fatalf("unexpected results %+v", results)
	}
	if RunProducer(context.Background(), nil) != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunCollectorProbesEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.HealthResponse{Status: "ok"})
	}))
	defer srv.Close()

	disabled := false
	cfg := testsupport.NewConfig(t,
		testsupport.WithEndpoint(config.Endpoint{Name: "good", URL: srv.URL, APIKey: "good"}),
		testsupport.WithEndpoint(config.Endpoint{Name: "bad", URL: srv.URL, APIKey: "wrong"}),
		testsupport.WithEndpoint(config.Endpoint{Name: "off", URL: srv.URL, Enabled: &disabled}),
	)
	registry := collector.NewRegistry(cfg.Collector, logging.NewNop())
	client := collector.NewHTTPClient("doctor", nil)

	results := RunCollector(context.Background(), registry, client)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	byName := make(map[string]Result, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}
	if !byName["Endpoint good"].Passed {
		t.Fatalf("good endpoint failed: %+v", byName["Endpoint good"])
	}
	if bad := byName["Endpoint bad"]; bad.Passed || !strings.Contains(bad.Detail, "unauthorized") {
		t.Fatalf("bad endpoint should fail with unauthorized, got %+v", bad)
	}
	if off := byName["Endpoint off"]; !off.Passed || !off.Skipped || off.Detail != "disabled" {
		t.Fatalf("disabled endpoint should be skipped, got %+v", off)
	}
	if Failed(results) != 1 {
		t.Fatalf("expected one failure, got %+v", results)
	}
}
