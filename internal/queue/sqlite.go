package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements ListStore on a single SQLite table. Element order is
// the autoincrement sequence, so appends never reorder existing entries.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ ListStore = (*SQLiteStore)(nil)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// OpenSQLite initializes or connects to the queue database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Push(ctx context.Context, key, value string) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO list_items (list_key, value) VALUES (?, ?)", key, value)
		return err
	})
}

func (s *SQLiteStore) Len(ctx context.Context, key string) (int64, error) {
	var n int64
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM list_items WHERE list_key = ?", key).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", key, err)
	}
	return n, nil
}

func (s *SQLiteStore) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if start < 0 || stop < 0 {
		n, err := s.Len(ctx, key)
		if err != nil {
			return nil, err
		}
		var ok bool
		if start, stop, ok = normalizeRange(start, stop, n); !ok {
			return nil, nil
		}
	} else if start > stop {
		return nil, nil
	}

	var values []string
	err := retryOnBusy(ctx, func() error {
		values = values[:0]
		rows, err := s.db.QueryContext(ctx,
			"SELECT value FROM list_items WHERE list_key = ? ORDER BY seq LIMIT ? OFFSET ?",
			key, stop-start+1, start)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return err
			}
			values = append(values, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", key, err)
	}
	return values, nil
}

const removeFirstSQL = `DELETE FROM list_items WHERE seq = (
	SELECT seq FROM list_items WHERE list_key = ? AND value = ? ORDER BY seq LIMIT 1
)`

func (s *SQLiteStore) Remove(ctx context.Context, key, value string) (int64, error) {
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, removeFirstSQL, key, value)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("remove from %s: %w", key, err)
	}
	return removed, nil
}

func (s *SQLiteStore) Move(ctx context.Context, src, value, dst, newValue string) (bool, error) {
	var moved bool
	err := retryOnBusy(ctx, func() error {
		moved = false
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, removeFirstSQL, src, value)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO list_items (list_key, value) VALUES (?, ?)", dst, newValue); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		moved = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("move %s -> %s: %w", src, dst, err)
	}
	return moved, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, key string) (int64, error) {
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM list_items WHERE list_key = ?", key)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", key, err)
	}
	return removed, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
