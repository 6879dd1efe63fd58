package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/storage"
)

// UnitOfWork runs repository calls inside one SQLite transaction.
type UnitOfWork struct {
	store *Store
	tx    *sql.Tx
	roles *roleRepository
	users *userRepository
}

// BeginTransaction starts the transaction shared by the repositories.
func (u *UnitOfWork) BeginTransaction(ctx context.Context) error {
	if u.tx != nil {
		return storage.ErrTransactionActive
	}
	tx, err := u.store.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	u.tx = tx
	return nil
}

// Commit commits the active transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return storage.ErrNoTransaction
	}
	tx := u.tx
	u.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback discards the active transaction, if any.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}
	tx := u.tx
	u.tx = nil
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Roles returns the role repository.
func (u *UnitOfWork) Roles() storage.RoleRepository { return u.roles }

// Users returns the user repository.
func (u *UnitOfWork) Users() storage.UserRepository { return u.users }

func (u *UnitOfWork) current() (*sql.Tx, error) {
	if u.tx == nil {
		return nil, storage.ErrNoTransaction
	}
	return u.tx, nil
}

var _ storage.UnitOfWork = (*UnitOfWork)(nil)
