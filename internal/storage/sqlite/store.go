// Package sqlite provides the SQLite-backed account store used by scenario seeds.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/id"
	sqlitemigrate "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/storage/sqlitemigrate"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/storage"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/storage/sqlite/migrations"
)

const dsnPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// Store owns the SQLite handle shared by units of work and snapshot tooling.
type Store struct {
	sqlDB *sql.DB
	ids   id.Generator
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets the generator used for new entity identifiers.
func WithIDGenerator(gen id.Generator) Option {
	return func(s *Store) {
		if gen != nil {
			s.ids = gen
		}
	}
}

// WithClock sets the clock used for creation and lock timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// DSN builds the driver connection string for a database path. Values already
// in "file:" form keep their own query and gain the foreign key pragma.
func DSN(path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + filepath.Clean(path)
	}
	if strings.Contains(path, "?") {
		return path + "&" + dsnPragmas
	}
	return path + "?" + dsnPragmas
}

// Open opens a SQLite account store and applies embedded migrations. The pool
// is limited to one connection so every caller observes the same session.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	sqlDB, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	store := &Store{sqlDB: sqlDB, ids: id.Random{}, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// DB exposes the raw handle for snapshot tooling.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// NewUnitOfWork returns a unit of work bound to this store.
func (s *Store) NewUnitOfWork() storage.UnitOfWork {
	uow := &UnitOfWork{store: s}
	uow.roles = &roleRepository{uow: uow}
	uow.users = &userRepository{uow: uow}
	return uow
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// uniqueColumn returns the "table.column" named by a unique violation message.
func uniqueColumn(err error) string {
	message := err.Error()
	idx := strings.Index(strings.ToLower(message), "unique constraint failed: ")
	if idx == -1 {
		return ""
	}
	rest := message[idx+len("unique constraint failed: "):]
	if end := strings.IndexAny(rest, " ,)"); end != -1 {
		rest = rest[:end]
	}
	return rest
}
