package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/accounts/domain"
	apperrors "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/errors"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/id"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/storage"
)

type userRepository struct {
	uow *UnitOfWork
}

// CreateUser validates and inserts one user.
func (r *userRepository) CreateUser(ctx context.Context, userName, email, name string) (domain.User, error) {
	tx, err := r.uow.current()
	if err != nil {
		return domain.User{}, err
	}
	user, err := domain.NewUser(userName, email, name)
	if err != nil {
		return domain.User{}, err
	}
	key := domain.Key(user.UserName)
	user.ID, err = r.uow.store.ids.NewID("user", key)
	if err != nil {
		return domain.User{}, fmt.Errorf("generate user id: %w", err)
	}
	user.CreatedAt = fromMillis(toMillis(r.uow.store.now()))

	_, err = tx.ExecContext(ctx, `
INSERT INTO "user" (id, user_name, user_name_key, email, email_key, name, locked, created_at, locked_at)
VALUES (?, ?, ?, ?, ?, ?, 0, ?, NULL)`,
		user.ID.String(), user.UserName, key, user.Email, domain.Key(user.Email), user.Name,
		toMillis(user.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			field := "user_name"
			value := user.UserName
			if uniqueColumn(err) == "user.email_key" {
				field, value = "email", user.Email
			}
			return domain.User{}, apperrors.WrapWithMetadata(apperrors.CodeDuplicateData,
				"user already exists", map[string]string{field: value}, storage.ErrAlreadyExists)
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// GetUserByUserName returns the user whose user name matches case-insensitively.
func (r *userRepository) GetUserByUserName(ctx context.Context, userName string) (domain.User, error) {
	tx, err := r.uow.current()
	if err != nil {
		return domain.User{}, err
	}
	return getUser(ctx, tx, userName)
}

// GrantRole links an existing user to an existing role.
func (r *userRepository) GrantRole(ctx context.Context, userName, roleName string) (domain.RoleGrant, error) {
	tx, err := r.uow.current()
	if err != nil {
		return domain.RoleGrant{}, err
	}
	user, err := getUser(ctx, tx, userName)
	if err != nil {
		return domain.RoleGrant{}, err
	}
	role, err := r.uow.roles.GetRoleByName(ctx, roleName)
	if err != nil {
		return domain.RoleGrant{}, err
	}

	grant := domain.RoleGrant{
		UserID:    user.ID,
		RoleID:    role.ID,
		GrantedAt: fromMillis(toMillis(r.uow.store.now())),
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO user_role (user_id, role_id, granted_at) VALUES (?, ?, ?)`,
		grant.UserID.String(), grant.RoleID.String(), toMillis(grant.GrantedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.RoleGrant{}, apperrors.WrapWithMetadata(apperrors.CodeDuplicateData,
				"role already granted", map[string]string{"user_name": user.UserName, "role": role.Name},
				storage.ErrAlreadyExists)
		}
		return domain.RoleGrant{}, fmt.Errorf("insert role grant: %w", err)
	}
	return grant, nil
}

// LockUser locks an existing user at the store clock time.
func (r *userRepository) LockUser(ctx context.Context, userName string) (domain.User, error) {
	tx, err := r.uow.current()
	if err != nil {
		return domain.User{}, err
	}
	user, err := getUser(ctx, tx, userName)
	if err != nil {
		return domain.User{}, err
	}
	if err := user.Lock(fromMillis(toMillis(r.uow.store.now()))); err != nil {
		return domain.User{}, err
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE "user" SET locked = 1, locked_at = ? WHERE id = ?`,
		toMillis(*user.LockedAt), user.ID.String(),
	); err != nil {
		return domain.User{}, fmt.Errorf("lock user: %w", err)
	}
	return user, nil
}

func getUser(ctx context.Context, tx *sql.Tx, userName string) (domain.User, error) {
	var (
		user      domain.User
		rawID     string
		locked    int64
		createdAt int64
		lockedAt  sql.NullInt64
	)
	err := tx.QueryRowContext(ctx, `
SELECT id, user_name, email, name, locked, created_at, locked_at
FROM "user" WHERE user_name_key = ?`, domain.Key(userName)).
		Scan(&rawID, &user.UserName, &user.Email, &user.Name, &locked, &createdAt, &lockedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, apperrors.WrapWithMetadata(apperrors.CodeNotFound,
			"user not found", map[string]string{"user_name": userName}, storage.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	if user.ID, err = parseID(rawID); err != nil {
		return domain.User{}, err
	}
	user.Locked = locked != 0
	user.CreatedAt = fromMillis(createdAt)
	if lockedAt.Valid {
		at := fromMillis(lockedAt.Int64)
		user.LockedAt = &at
	}
	return user, nil
}

func parseID(raw string) (uuid.UUID, error) {
	parsed, err := id.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse id %q: %w", raw, err)
	}
	return parsed, nil
}

var _ storage.UserRepository = (*userRepository)(nil)
