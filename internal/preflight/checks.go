package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"filedrop/internal/collector"
	"filedrop/internal/config"
	"filedrop/internal/faults"
	"filedrop/internal/fileutil"
	"filedrop/internal/queue"
)

const storeTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that path exists, is a directory, and is
// readable and writable by the current user. Free space is included in the
// detail when available.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	if free, err := fileutil.FreeBytes(path); err == nil {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok, %s free)", path, humanize.IBytes(free))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckQueueStore opens the configured backend, pings it, and reports the
// queue depth.
func CheckQueueStore(ctx context.Context, cfg *config.Config) Result {
	name := "Queue store (" + cfg.Queue.Backend + ")"
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	store, err := queue.OpenStore(ctx, cfg)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("open failed: %v", err)}
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("ping failed: %v", err)}
	}
	pending, err := store.Len(ctx, cfg.PendingKey())
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("read failed: %v", err)}
	}
	detail := fmt.Sprintf("reachable, %d pending", pending)
	if sqlite, ok := store.(*queue.SQLiteStore); ok {
		detail += " (" + sqlite.Path() + ")"
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckEndpoint probes a producer's health route.
func CheckEndpoint(ctx context.Context, client collector.Producer, ep *collector.Endpoint) Result {
	name := "Endpoint " + ep.Name
	if !ep.Enabled() {
		return Result{Name: name, Passed: true, Skipped: true, Detail: "disabled"}
	}
	if err := client.Health(ctx, ep); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", ep.URL, summarizeEndpointError(err))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", ep.URL)}
}

func summarizeEndpointError(err error) string {
	switch {
	case errors.Is(err, faults.ErrUnauthorized):
		return "unauthorized: check api_key"
	case errors.Is(err, faults.ErrTimeout):
		return "timed out"
	case errors.Is(err, faults.ErrUnreachable):
		return fmt.Sprintf("unreachable: %v", err)
	default:
		return err.Error()
	}
}
