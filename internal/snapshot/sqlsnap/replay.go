package sqlsnap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	apperrors "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/errors"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/snapshot/dataset"
)

// Replayer bulk-loads datasets without going through repositories.
type Replayer struct {
	db   *sql.DB
	opts Options
}

// NewReplayer returns a Replayer over db.
func NewReplayer(db *sql.DB, opts Options) *Replayer {
	return &Replayer{db: db, opts: opts}
}

// Replay inserts every row of ds verbatim, table by table in dataset order and
// row by row in recorded order, inside one transaction. Unknown tables or
// columns and constraint violations fail the whole replay.
func (r *Replayer) Replay(ctx context.Context, ds dataset.Dataset) error {
	if err := r.replay(ctx, ds); err != nil {
		return apperrors.WrapWithMetadata(apperrors.CodeReplayFailed, "replay dataset",
			map[string]string{"dataset": ds.Name}, err)
	}
	return nil
}

func (r *Replayer) replay(ctx context.Context, ds dataset.Dataset) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("database is not configured")
	}
	if err := ds.Validate(); err != nil {
		return err
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
	for _, table := range ds.Tables {
		target, ok := schema.Table(table.Name)
		if !ok {
			return fmt.Errorf("table %s is not part of the database schema", table.Name)
		}
		if err := insertTable(ctx, tx, target, table); err != nil {
			return fmt.Errorf("table %s: %w", table.Name, err)
		}
	}
	if err := checkForeignKeys(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertTable(ctx context.Context, tx *sql.Tx, target Table, table dataset.Table) error {
	if len(table.Rows) == 0 {
		return nil
	}
	cols := make([]Column, len(table.Columns))
	quoted := make([]string, len(table.Columns))
	for i, name := range table.Columns {
		col, ok := target.Column(name)
		if !ok {
			return fmt.Errorf("column %s is not part of the table", name)
		}
		cols[i] = col
		quoted[i] = quote(name)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(target.Name), strings.Join(quoted, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for i, row := range table.Rows {
		for j, f := range row.Fields() {
			args[j] = encodeColumn(f.Value)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

// encodeColumn converts a dataset value to the representation stored by SQLite.
func encodeColumn(v dataset.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case dataset.KindTime:
		return v.Timestamp().UnixMilli()
	case dataset.KindBool:
		if v.Boolean() {
			return int64(1)
		}
		return int64(0)
	case dataset.KindUUID:
		return v.Identifier().String()
	default:
		return v.Any()
	}
}
