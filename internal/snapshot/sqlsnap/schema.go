// Package sqlsnap resets, captures and replays SQLite databases as datasets.
//
// It works on raw SQL, below the repository layer: rows are deleted, read and
// inserted verbatim. Seedable tables are every user table except SQLite's
// internal tables, the migration bookkeeping table and any configured
// exclusions. Tables are ordered parents-first by their foreign keys, with ties
// kept in declaration order.
//
// Columns declared TIMESTAMP/DATETIME/DATE hold unix milliseconds, BOOLEAN
// columns hold 0/1 and UUID columns hold canonical identifier text.
package sqlsnap

import (
	"container/heap"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/storage/sqlitemigrate"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/snapshot/dataset"
)

// Options selects the seedable tables.
type Options struct {
	// Exclude lists additional tables to leave untouched.
	Exclude []string
}

func (o Options) excluded(name string) bool {
	if strings.HasPrefix(name, "sqlite_") || name == sqlitemigrate.Table {
		return true
	}
	return slices.Contains(o.Exclude, name)
}

// Column describes one table column.
type Column struct {
	Name     string
	DeclType string
	Kind     dataset.Kind
	// PK is the 1-based position in the primary key, or 0.
	PK int
}

// Table describes one seedable table.
type Table struct {
	Name         string
	Columns      []Column
	References   []string
	WithoutRowID bool
}

// ColumnNames returns the column names in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the column called name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t Table) orderBy() string {
	if !t.WithoutRowID {
		return "rowid"
	}
	pk := slices.Clone(t.Columns)
	pk = slices.DeleteFunc(pk, func(c Column) bool { return c.PK == 0 })
	slices.SortFunc(pk, func(a, b Column) int { return a.PK - b.PK })
	parts := make([]string, len(pk))
	for i, c := range pk {
		parts[i] = quote(c.Name)
	}
	return strings.Join(parts, ", ")
}

// Schema lists the seedable tables parents-first.
type Schema struct {
	Tables []Table
	// Cyclic reports that foreign keys form a cycle; the cyclic tail keeps
	// declaration order and relies on deferred constraint checks.
	Cyclic bool
}

// Table returns the table called name.
func (s Schema) Table(name string) (Table, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Names returns the table names in dependency order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Inspect reads the seedable tables of the database behind q.
func Inspect(ctx context.Context, q queryer, opts Options) (Schema, error) {
	declared, err := listTables(ctx, q, opts)
	if err != nil {
		return Schema{}, err
	}
	for i := range declared {
		cols, err := tableColumns(ctx, q, declared[i].Name)
		if err != nil {
			return Schema{}, err
		}
		declared[i].Columns = cols
		refs, err := tableReferences(ctx, q, declared[i].Name)
		if err != nil {
			return Schema{}, err
		}
		declared[i].References = refs
	}
	return orderTables(declared), nil
}

func listTables(ctx context.Context, q queryer, opts Options) ([]Table, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name, COALESCE(sql, '') FROM sqlite_master WHERE type = 'table' ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var name, ddl string
		if err := rows.Scan(&name, &ddl); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		if opts.excluded(name) {
			continue
		}
		tables = append(tables, Table{
			Name:         name,
			WithoutRowID: strings.Contains(strings.ToUpper(ddl), "WITHOUT ROWID"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

func tableColumns(ctx context.Context, q queryer, table string) ([]Column, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name, type, pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.DeclType, &c.PK); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		c.Kind = KindOf(c.DeclType)
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	return cols, nil
}

func tableReferences(ctx context.Context, q queryer, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT "table" FROM pragma_foreign_key_list(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("foreign keys of %s: %w", table, err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan foreign key of %s: %w", table, err)
		}
		if ref != table {
			refs = append(refs, ref)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("foreign keys of %s: %w", table, err)
	}
	slices.Sort(refs)
	return refs, nil
}

// KindOf maps a declared column type to the dataset kind used for its values.
func KindOf(declType string) dataset.Kind {
	t := strings.ToUpper(strings.TrimSpace(declType))
	switch {
	case strings.Contains(t, "UUID") || strings.Contains(t, "GUID"):
		return dataset.KindUUID
	case strings.HasPrefix(t, "TIMESTAMP") || strings.HasPrefix(t, "DATETIME") || t == "DATE":
		return dataset.KindTime
	case strings.HasPrefix(t, "BOOL"):
		return dataset.KindBool
	case strings.Contains(t, "INT"):
		return dataset.KindInt
	case strings.Contains(t, "CHAR") || strings.Contains(t, "CLOB") || strings.Contains(t, "TEXT"):
		return dataset.KindText
	case t == "" || strings.Contains(t, "BLOB"):
		return dataset.KindBytes
	default:
		return dataset.KindFloat
	}
}

type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// orderTables sorts tables parents-first using Kahn's algorithm with the
// declaration index as tie breaker. References to unknown or excluded tables
// are ignored.
func orderTables(declared []Table) Schema {
	index := make(map[string]int, len(declared))
	for i, t := range declared {
		index[t.Name] = i
	}
	indeg := make([]int, len(declared))
	children := make([][]int, len(declared))
	for i, t := range declared {
		for _, ref := range t.References {
			parent, ok := index[ref]
			if !ok {
				continue
			}
			indeg[i]++
			children[parent] = append(children[parent], i)
		}
	}

	ready := &indexHeap{}
	for i := range declared {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}
	placed := make([]bool, len(declared))
	schema := Schema{Tables: make([]Table, 0, len(declared))}
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		placed[n] = true
		schema.Tables = append(schema.Tables, declared[n])
		for _, child := range children[n] {
			indeg[child]--
			if indeg[child] == 0 {
				heap.Push(ready, child)
			}
		}
	}
	for i, t := range declared {
		if !placed[i] {
			schema.Cyclic = true
			schema.Tables = append(schema.Tables, t)
		}
	}
	return schema
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// checkForeignKeys fails when the open transaction holds rows whose parents are
// missing. SQLite keeps a transaction open when COMMIT trips a deferred
// constraint, so violations are detected before committing.
func checkForeignKeys(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return fmt.Errorf("foreign key check: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		var (
			table  string
			rowid  sql.NullInt64
			parent string
			fkid   int64
		)
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("foreign key check: %w", err)
		}
		return fmt.Errorf("FOREIGN KEY constraint failed: %s row %d references missing %s", table, rowid.Int64, parent)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("foreign key check: %w", err)
	}
	return nil
}
