package sqlsnap

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	apperrors "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/errors"
)

// Resetter empties every seedable table.
type Resetter struct {
	db   *sql.DB
	opts Options
}

// NewResetter returns a Resetter over db.
func NewResetter(db *sql.DB, opts Options) *Resetter {
	return &Resetter{db: db, opts: opts}
}

// Reset deletes all rows children-first inside one transaction and clears the
// AUTOINCREMENT counters of the affected tables. Resetting an empty database
// is a no-op.
func (r *Resetter) Reset(ctx context.Context) error {
	if err := r.reset(ctx); err != nil {
		return apperrors.Wrap(apperrors.CodeResetFailed, "reset database", err)
	}
	return nil
}

func (r *Resetter) reset(ctx context.Context) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("database is not configured")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	schema, err := Inspect(ctx, tx, r.opts)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `PRAGMA defer_foreign_keys = ON`); err != nil {
		return fmt.Errorf("defer foreign keys: %w", err)
	}
	names := schema.Names()
	for _, name := range slices.Backward(names) {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+quote(name)); err != nil {
			return fmt.Errorf("delete %s: %w", name, err)
		}
	}
	if err := clearSequences(ctx, tx, names); err != nil {
		return err
	}
	if err := checkForeignKeys(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func clearSequences(ctx context.Context, tx *sql.Tx, tables []string) error {
	if len(tables) == 0 {
		return nil
	}
	var exists int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check sqlite_sequence: %w", err)
	}
	if exists == 0 {
		return nil
	}
	args := make([]any, len(tables))
	for i, name := range tables {
		args[i] = name
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tables)), ",")
	if _, err := tx.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("clear sqlite_sequence: %w", err)
	}
	return nil
}
