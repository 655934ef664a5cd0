package queue

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// queueLayout is stored in PRAGMA user_version. A database created by a
// release with a different layout is refused rather than migrated.
const queueLayout = 1

// ErrSchemaMismatch indicates the queue database was written with another
// layout.
var ErrSchemaMismatch = errors.New("queue database layout mismatch")

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	var layout int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&layout); err != nil {
		return fmt.Errorf("read queue layout: %w", err)
	}
	switch layout {
	case queueLayout:
		return nil
	case 0:
		return s.createSchema(ctx)
	default:
		return fmt.Errorf("%w: %s has layout %d, this build uses %d; list pending jobs with \"filedrop queue list\", then remove the file to start an empty queue",
			ErrSchemaMismatch, s.path, layout, queueLayout)
	}
}

// createSchema creates the list table and stamps the layout in one
// transaction.
func (s *SQLiteStore) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create list table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", queueLayout)); err != nil {
		return fmt.Errorf("stamp queue layout: %w", err)
	}
	return tx.Commit()
}
