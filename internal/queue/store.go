package queue

import (
	"context"
	"fmt"

	"filedrop/internal/config"
)

// ListStore is an ordered list store keyed by name. Values are appended at the
// tail and read from the head (index 0). Negative indices count from the tail,
// with -1 the last element.
type ListStore interface {
	Push(ctx context.Context, key, value string) error
	Len(ctx context.Context, key string) (int64, error)
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
	// Remove deletes the first occurrence of value and reports how many
	// elements were removed (0 or 1).
	Remove(ctx context.Context, key, value string) (int64, error)
	// Move atomically removes the first occurrence of value from src and,
	// only if one was removed, appends newValue to dst.
	Move(ctx context.Context, src, value, dst, newValue string) (bool, error)
	Clear(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// OpenStore opens the backend selected by cfg.Queue.Backend.
func OpenStore(ctx context.Context, cfg *config.Config) (ListStore, error) {
	switch cfg.Queue.Backend {
	case "", "sqlite":
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("ensure directories: %w", err)
		}
		return OpenSQLite(ctx, cfg.QueueDBPath())
	case "redis":
		return OpenRedis(ctx, RedisOptions{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
	default:
		return nil, fmt.Errorf("queue backend %q not supported", cfg.Queue.Backend)
	}
}

// normalizeRange resolves Redis-style inclusive indices against a list of
// length n. ok is false when the range is empty.
func normalizeRange(start, stop, n int64) (int64, int64, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return 0, 0, false
	}
	return start, stop, true
}
