package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/accounts/domain"
	apperrors "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/errors"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/storage"
)

type roleRepository struct {
	uow *UnitOfWork
}

// CreateRole validates and inserts one role.
func (r *roleRepository) CreateRole(ctx context.Context, name, description string) (domain.Role, error) {
	tx, err := r.uow.current()
	if err != nil {
		return domain.Role{}, err
	}
	role, err := domain.NewRole(name, description)
	if err != nil {
		return domain.Role{}, err
	}
	key := domain.Key(role.Name)
	role.ID, err = r.uow.store.ids.NewID("role", key)
	if err != nil {
		return domain.Role{}, fmt.Errorf("generate role id: %w", err)
	}
	role.CreatedAt = fromMillis(toMillis(r.uow.store.now()))

	_, err = tx.ExecContext(ctx, `
INSERT INTO role (id, name, name_key, description, created_at)
VALUES (?, ?, ?, ?, ?)`,
		role.ID.String(), role.Name, key, role.Description, toMillis(role.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Role{}, apperrors.WrapWithMetadata(apperrors.CodeDuplicateData,
				"role already exists", map[string]string{"name": role.Name}, storage.ErrAlreadyExists)
		}
		return domain.Role{}, fmt.Errorf("insert role: %w", err)
	}
	return role, nil
}

// GetRoleByName returns the role whose name matches case-insensitively.
func (r *roleRepository) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	tx, err := r.uow.current()
	if err != nil {
		return domain.Role{}, err
	}
	row := tx.QueryRowContext(ctx, `
SELECT id, name, description, created_at FROM role WHERE name_key = ?`, domain.Key(name))
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Role{}, apperrors.WrapWithMetadata(apperrors.CodeNotFound,
			"role not found", map[string]string{"name": name}, storage.ErrNotFound)
	}
	if err != nil {
		return domain.Role{}, fmt.Errorf("get role: %w", err)
	}
	return role, nil
}

// ListRoles returns every role ordered by name.
func (r *roleRepository) ListRoles(ctx context.Context) ([]domain.Role, error) {
	tx, err := r.uow.current()
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, `
SELECT id, name, description, created_at FROM role ORDER BY name_key`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (domain.Role, error) {
	var (
		role      domain.Role
		rawID     string
		createdAt int64
	)
	if err := row.Scan(&rawID, &role.Name, &role.Description, &createdAt); err != nil {
		return domain.Role{}, err
	}
	parsed, err := parseID(rawID)
	if err != nil {
		return domain.Role{}, err
	}
	role.ID = parsed
	role.CreatedAt = fromMillis(createdAt)
	return role, nil
}

var _ storage.RoleRepository = (*roleRepository)(nil)
