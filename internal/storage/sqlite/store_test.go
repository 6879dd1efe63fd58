package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/errors"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/id"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/storage"
)

var fixedNow = time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(t.Context(), ""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenFailsForMissingDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing", "nested", "accounts.db")
	if _, err := Open(t.Context(), path); err == nil {
		t.Fatal("expected open error for missing directory")
	}
}

func TestDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "data/app.db", want: "file:data/app.db?" + dsnPragmas},
		{in: " file:app.db ", want: "file:app.db?" + dsnPragmas},
		{in: "file:app.db?mode=rwc", want: "file:app.db?mode=rwc&" + dsnPragmas},
	}
	for _, tt := range tests {
		if got := DSN(tt.in); got != tt.want {
			t.Fatalf("DSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpenAppliesMigrationsOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "accounts.db")
	store, err := Open(t.Context(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
	store, err = Open(t.Context(), path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()

	var count int
	if err := store.DB().QueryRowContext(t.Context(), "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 1 {
		t.Fatalf("migrations = %d, want 1", count)
	}
}

func TestCreateAndGetRole(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	uow := store.NewUnitOfWork()
	begin(t, uow)

	created, err := uow.Roles().CreateRole(t.Context(), " Administrator ", "Full access")
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	want, _ := id.Deterministic{}.NewID("role", "administrator")
	if created.ID != want {
		t.Fatalf("id = %s, want %s", created.ID, want)
	}
	if !created.CreatedAt.Equal(fixedNow) {
		t.Fatalf("created_at = %v, want %v", created.CreatedAt, fixedNow)
	}

	got, err := uow.Roles().GetRoleByName(t.Context(), "ADMINISTRATOR")
	if err != nil {
		t.Fatalf("get role: %v", err)
	}
	if got != created {
		t.Fatalf("role = %+v, want %+v", got, created)
	}
	if err := uow.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestCreateRoleDuplicateIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	uow := store.NewUnitOfWork()
	begin(t, uow)
	defer uow.Rollback()

	if _, err := uow.Roles().CreateRole(t.Context(), "Admin", ""); err != nil {
		t.Fatalf("create role: %v", err)
	}
	_, err := uow.Roles().CreateRole(t.Context(), "admin", "")
	if !apperrors.HasCode(err, apperrors.CodeDuplicateData) {
		t.Fatalf("error = %v, want duplicate data", err)
	}
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("error = %v, want ErrAlreadyExists in chain", err)
	}

	// A failed statement leaves the transaction usable.
	if _, err := uow.Roles().CreateRole(t.Context(), "Viewer", ""); err != nil {
		t.Fatalf("create after duplicate: %v", err)
	}
}

func TestCreateRoleValidation(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	uow := store.NewUnitOfWork()
	begin(t, uow)
	defer uow.Rollback()

	_, err := uow.Roles().CreateRole(t.Context(), "  ", "")
	if !apperrors.HasCode(err, apperrors.CodeDomainValidation) {
		t.Fatalf("error = %v, want domain validation", err)
	}
}

func TestListRolesOrderedByName(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	uow := store.NewUnitOfWork()
	begin(t, uow)
	defer uow.Rollback()

	for _, name := range []string{"viewer", "Admin", "editor"} {
		if _, err := uow.Roles().CreateRole(t.Context(), name, ""); err != nil {
			t.Fatalf("create role %s: %v", name, err)
		}
	}
	roles, err := uow.Roles().ListRoles(t.Context())
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	var names []string
	for _, role := range roles {
		names = append(names, role.Name)
	}
	want := []string{"Admin", "editor", "viewer"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestUserLifecycle(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	uow := store.NewUnitOfWork()
	begin(t, uow)

	if _, err := uow.Roles().CreateRole(t.Context(), "admin", ""); err != nil {
		t.Fatalf("create role: %v", err)
	}
	user, err := uow.Users().CreateUser(t.Context(), "jdoe", "jdoe@example.com", "John Doe")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Locked || user.LockedAt != nil {
		t.Fatalf("new user should be unlocked: %+v", user)
	}

	grant, err := uow.Users().GrantRole(t.Context(), "JDoe", "Admin")
	if err != nil {
		t.Fatalf("grant role: %v", err)
	}
	if grant.UserID != user.ID || grant.RoleID == uuid.Nil {
		t.Fatalf("unexpected grant: %+v", grant)
	}
	_, err = uow.Users().GrantRole(t.Context(), "jdoe", "admin")
	if !apperrors.HasCode(err, apperrors.CodeDuplicateData) {
		t.Fatalf("second grant error = %v, want duplicate data", err)
	}

	locked, err := uow.Users().LockUser(t.Context(), "jdoe")
	if err != nil {
		t.Fatalf("lock user: %v", err)
	}
	if !locked.Locked || locked.LockedAt == nil || !locked.LockedAt.Equal(fixedNow) {
		t.Fatalf("unexpected locked user: %+v", locked)
	}
	if err := uow.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	begin(t, uow)
	defer uow.Rollback()
	got, err := uow.Users().GetUserByUserName(t.Context(), "jdoe")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !got.Locked || got.LockedAt == nil || !got.LockedAt.Equal(fixedNow) {
		t.Fatalf("lock not persisted: %+v", got)
	}
	if _, err := uow.Users().LockUser(t.Context(), "jdoe"); !apperrors.HasCode(err, apperrors.CodeDomainValidation) {
		t.Fatalf("relock error = %v, want domain validation", err)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	uow := store.NewUnitOfWork()
	begin(t, uow)
	defer uow.Rollback()

	if _, err := uow.Users().CreateUser(t.Context(), "jdoe", "jdoe@example.com", "John Doe"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	_, err := uow.Users().CreateUser(t.Context(), "janedoe", "JDOE@example.com", "Jane Doe")
	if !apperrors.HasCode(err, apperrors.CodeDuplicateData) {
		t.Fatalf("error = %v, want duplicate data", err)
	}
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Metadata["email"] != "JDOE@example.com" {
		t.Fatalf("expected email metadata, got %v", err)
	}
}

func TestGrantRoleMissingEntities(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	uow := store.NewUnitOfWork()
	begin(t, uow)
	defer uow.Rollback()

	_, err := uow.Users().GrantRole(t.Context(), "ghost", "admin")
	if !apperrors.HasCode(err, apperrors.CodeNotFound) || !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing user error = %v", err)
	}
	if _, err := uow.Users().CreateUser(t.Context(), "jdoe", "jdoe@example.com", "John Doe"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	_, err = uow.Users().GrantRole(t.Context(), "jdoe", "ghost-role")
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("missing role error = %v", err)
	}
}

func TestRollbackDiscardsWrites(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	uow := store.NewUnitOfWork()
	begin(t, uow)
	if _, err := uow.Roles().CreateRole(t.Context(), "admin", ""); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := uow.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if err := uow.Rollback(); err != nil {
		t.Fatalf("second rollback should be a no-op: %v", err)
	}

	var count int
	if err := store.DB().QueryRowContext(t.Context(), "SELECT COUNT(*) FROM role").Scan(&count); err != nil {
		t.Fatalf("count roles: %v", err)
	}
	if count != 0 {
		t.Fatalf("roles = %d, want 0", count)
	}
}

func TestRepositoriesRequireTransaction(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	uow := store.NewUnitOfWork()
	if _, err := uow.Roles().CreateRole(t.Context(), "admin", ""); !errors.Is(err, storage.ErrNoTransaction) {
		t.Fatalf("error = %v, want ErrNoTransaction", err)
	}
	if err := uow.Commit(); !errors.Is(err, storage.ErrNoTransaction) {
		t.Fatalf("commit error = %v, want ErrNoTransaction", err)
	}
	begin(t, uow)
	defer uow.Rollback()
	if err := uow.BeginTransaction(t.Context()); !errors.Is(err, storage.ErrTransactionActive) {
		t.Fatalf("begin error = %v, want ErrTransactionActive", err)
	}
}

func TestInTransactionWithStore(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	uow := store.NewUnitOfWork()
	err := storage.InTransaction(t.Context(), uow, func(ctx context.Context) error {
		if _, err := uow.Roles().CreateRole(ctx, "admin", ""); err != nil {
			return err
		}
		_, err := uow.Roles().CreateRole(ctx, "ADMIN", "")
		return err
	})
	if !apperrors.HasCode(err, apperrors.CodeDuplicateData) {
		t.Fatalf("error = %v, want duplicate data", err)
	}
	var count int
	if err := store.DB().QueryRowContext(t.Context(), "SELECT COUNT(*) FROM role").Scan(&count); err != nil {
		t.Fatalf("count roles: %v", err)
	}
	if count != 0 {
		t.Fatalf("roles = %d, want 0 after rollback", count)
	}
}

func TestUniqueColumn(t *testing.T) {
	t.Parallel()

	err := errors.New("constraint failed: UNIQUE constraint failed: user.email_key (2067)")
	if got := uniqueColumn(err); got != "user.email_key" {
		t.Fatalf("uniqueColumn = %q", got)
	}
	if got := uniqueColumn(errors.New("other")); got != "" {
		t.Fatalf("uniqueColumn = %q, want empty", got)
	}
}

func begin(t *testing.T, uow storage.UnitOfWork) {
	t.Helper()

	if err := uow.BeginTransaction(t.Context()); err != nil {
		t.Fatalf("begin transaction: %v", err)
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(t.Context(), filepath.Join(t.TempDir(), "accounts.db"),
		WithIDGenerator(id.Deterministic{}),
		WithClock(func() time.Time { return fixedNow }),
	)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}
