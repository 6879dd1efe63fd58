package storage

import (
	"context"
	"errors"

	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/accounts/domain"
)

type fakeUnitOfWork struct {
	beginErr  error
	commitErr error
	active    bool
	begins    int
	commits   int
	rollbacks int
}

func (f *fakeUnitOfWork) BeginTransaction(context.Context) error {
	if f.beginErr != nil {
		return f.beginErr
	}
	if f.active {
		return ErrTransactionActive
	}
	f.active = true
	f.begins++
	return nil
}

func (f *fakeUnitOfWork) Commit() error {
	if !f.active {
		return ErrNoTransaction
	}
	if f.commitErr != nil {
		return f.commitErr
	}
	f.active = false
	f.commits++
	return nil
}

func (f *fakeUnitOfWork) Rollback() error {
	if !f.active {
		return nil
	}
	f.active = false
	f.rollbacks++
	return nil
}

func (f *fakeUnitOfWork) Roles() RoleRepository { return fakeRoles{} }
func (f *fakeUnitOfWork) Users() UserRepository { return nil }

type fakeRoles struct{}

func (fakeRoles) CreateRole(context.Context, string, string) (domain.Role, error) {
	return domain.Role{}, errors.New("not implemented")
}

func (fakeRoles) GetRoleByName(context.Context, string) (domain.Role, error) {
	return domain.Role{}, ErrNotFound
}

func (fakeRoles) ListRoles(context.Context) ([]domain.Role, error) { return nil, nil }
