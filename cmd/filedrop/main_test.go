package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"filedrop/internal/logging"
)

func TestServeRunsUntilCancelled(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := runCLIContext(ctx, []string{"serve", "--log-level", "debug"}, env.configPath)
		done <- err
	}()

	time.Sleep(300 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}

	if _, err := os.Stat(logging.LogFilePath(env.cfg.Paths.LogDir, "serve")); err != nil {
		t.Fatalf("expected serve log file: %v", err)
	}
	if _, err := os.Stat(env.cfg.Server.UploadDir); err != nil {
		t.Fatalf("expected upload dir to be created: %v", err)
	}
}

func TestCollectPrintsStatsOnExit(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	out, err := runCLIContext(ctx, []string{"collect"}, env.configPath)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	requireContains(t, out, "Transfer statistics", "ENDPOINT")
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.LogDir, "filedrop-collect.log")); err != nil {
		t.Fatalf("expected collect log file: %v", err)
	}
}
