package sqlsnap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/errors"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/snapshot/dataset"
)

// Capturer reads the seedable tables back into a dataset.
type Capturer struct {
	db   *sql.DB
	opts Options
}

// NewCapturer returns a Capturer over db.
func NewCapturer(db *sql.DB, opts Options) *Capturer {
	return &Capturer{db: db, opts: opts}
}

// Capture returns the current content of every seedable table, parents first,
// rows in insertion order and columns in declaration order.
func (c *Capturer) Capture(ctx context.Context, name string) (dataset.Dataset, error) {
	ds, err := c.capture(ctx, name)
	if err != nil {
		return dataset.Dataset{}, apperrors.Wrap(apperrors.CodeCaptureFailed, "capture database", err)
	}
	return ds, nil
}

func (c *Capturer) capture(ctx context.Context, name string) (dataset.Dataset, error) {
	if c == nil || c.db == nil {
		return dataset.Dataset{}, fmt.Errorf("database is not configured")
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	schema, err := Inspect(ctx, tx, c.opts)
	if err != nil {
		return dataset.Dataset{}, err
	}
	ds := dataset.Dataset{Name: name, Tables: make([]dataset.Table, 0, len(schema.Tables))}
	for _, table := range schema.Tables {
		captured, err := readTable(ctx, tx, table)
		if err != nil {
			return dataset.Dataset{}, fmt.Errorf("table %s: %w", table.Name, err)
		}
		ds.Tables = append(ds.Tables, captured)
	}
	return ds, nil
}

func readTable(ctx context.Context, tx *sql.Tx, table Table) (dataset.Table, error) {
	names := table.ColumnNames()
	selected := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		selected[i] = selectColumn(col)
	}
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(selected, ", "), quote(table.Name), table.orderBy()))
	if err != nil {
		return dataset.Table{}, fmt.Errorf("select: %w", err)
	}
	defer rows.Close()

	out := dataset.Table{Name: table.Name, Columns: names}
	raw := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return dataset.Table{}, fmt.Errorf("scan: %w", err)
		}
		fields := make([]dataset.Field, len(names))
		for i, col := range table.Columns {
			v, err := decodeColumn(col, raw[i])
			if err != nil {
				return dataset.Table{}, fmt.Errorf("column %s: %w", col.Name, err)
			}
			fields[i] = dataset.F(col.Name, v)
		}
		out.Rows = append(out.Rows, dataset.NewRow(fields...))
	}
	if err := rows.Err(); err != nil {
		return dataset.Table{}, fmt.Errorf("select: %w", err)
	}
	return out, nil
}

// selectColumn returns the select-list expression for col. Time columns are
// read through an expression so the driver does not parse text values into
// time.Time, which would drop their stored format.
func selectColumn(col Column) string {
	name := quote(col.Name)
	if col.Kind != dataset.KindTime {
		return name
	}
	return fmt.Sprintf("CASE WHEN typeof(%[1]s) = 'text' THEN CAST(%[1]s AS TEXT) ELSE %[1]s END AS %[1]s", name)
}

// decodeColumn interprets a stored value using the column's declared kind when
// the storage class fits it, and falls back to the storage class otherwise so
// that replaying the value stores exactly what was read. Values whose stored
// form cannot be reproduced are rejected.
func decodeColumn(col Column, raw any) (dataset.Value, error) {
	switch v := raw.(type) {
	case nil:
		return dataset.Null(col.Kind), nil
	case int64:
		switch {
		case col.Kind == dataset.KindTime:
			return dataset.Time(time.UnixMilli(v)), nil
		case col.Kind == dataset.KindBool && (v == 0 || v == 1):
			return dataset.Bool(v == 1), nil
		}
		return dataset.Int(v), nil
	case float64:
		return dataset.Float(v), nil
	case bool:
		return dataset.Bool(v), nil
	case time.Time:
		return dataset.Value{}, fmt.Errorf("time value %s has no reproducible stored form", v.Format(time.RFC3339Nano))
	case string:
		if col.Kind == dataset.KindUUID {
			if u, err := uuid.Parse(v); err == nil && u.String() == v {
				return dataset.UUID(u), nil
			}
		}
		return dataset.Text(v), nil
	case []byte:
		return dataset.Bytes(v), nil
	default:
		return dataset.Value{}, fmt.Errorf("unsupported stored value of type %T", v)
	}
}
