// Package storage defines the persistence contracts used by scenario seeds.
//
// Seeds never touch SQL directly: they create entities through the repositories
// exposed by a UnitOfWork, so the same validation and uniqueness rules that
// guard production writes also guard fixture data.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/accounts/domain"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrNoTransaction indicates a repository was used outside BeginTransaction.
	ErrNoTransaction = errors.New("no active transaction")
	// ErrTransactionActive indicates BeginTransaction was called twice.
	ErrTransactionActive = errors.New("transaction already active")
)

// RoleRepository persists roles.
type RoleRepository interface {
	CreateRole(ctx context.Context, name, description string) (domain.Role, error)
	GetRoleByName(ctx context.Context, name string) (domain.Role, error)
	ListRoles(ctx context.Context) ([]domain.Role, error)
}

// UserRepository persists users and their role grants.
type UserRepository interface {
	CreateUser(ctx context.Context, userName, email, name string) (domain.User, error)
	GetUserByUserName(ctx context.Context, userName string) (domain.User, error)
	GrantRole(ctx context.Context, userName, roleName string) (domain.RoleGrant, error)
	LockUser(ctx context.Context, userName string) (domain.User, error)
}

// UnitOfWork groups repository calls into one transaction.
type UnitOfWork interface {
	BeginTransaction(ctx context.Context) error
	Commit() error
	// Rollback discards the active transaction. It is a no-op without one.
	Rollback() error
	Roles() RoleRepository
	Users() UserRepository
}

// InTransaction begins a transaction, runs fn and commits. Errors and panics
// from fn roll the transaction back; the original error is returned and the
// original panic is re-raised.
func InTransaction(ctx context.Context, uow UnitOfWork, fn func(ctx context.Context) error) (err error) {
	if uow == nil {
		return errors.New("unit of work is required")
	}
	if err := uow.BeginTransaction(ctx); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			_ = uow.Rollback()
			panic(recovered)
		}
	}()

	if err := fn(ctx); err != nil {
		if rbErr := uow.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := uow.Commit(); err != nil {
		_ = uow.Rollback()
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
