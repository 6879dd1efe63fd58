// Package domain defines the account entities seeded by scenarios and the
// validation rules every repository enforces before persisting them.
package domain

import (
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	apperrors "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/errors"
)

const (
	maxRoleNameLength    = 50
	maxDescriptionLength = 200
	minUserNameLength    = 3
	maxUserNameLength    = 32
	maxDisplayNameLength = 100
)

// Role is a named permission group.
type Role struct {
	ID          uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
}

// User is an account that can be granted roles.
type User struct {
	ID        uuid.UUID
	UserName  string
	Email     string
	Name      string
	Locked    bool
	CreatedAt time.Time
	LockedAt  *time.Time
}

// RoleGrant links a user to a role.
type RoleGrant struct {
	UserID    uuid.UUID
	RoleID    uuid.UUID
	GrantedAt time.Time
}

// Key returns the uniqueness key of a name: NFC-normalized, trimmed and
// case-folded, so "Admin" and "admin" collide.
func Key(value string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(value)))
}

// NewRole validates and normalizes role input.
func NewRole(name, description string) (Role, error) {
	name = clean(name)
	description = clean(description)
	if name == "" {
		return Role{}, invalid("role name is required", "name", name)
	}
	if utf8.RuneCountInString(name) > maxRoleNameLength {
		return Role{}, invalid("role name is too long", "name", name)
	}
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return Role{}, invalid("role description is too long", "description", description)
	}
	return Role{Name: name, Description: description}, nil
}

// NewUser validates and normalizes user input.
func NewUser(userName, email, name string) (User, error) {
	userName = clean(userName)
	email = clean(email)
	name = clean(name)

	if userName == "" {
		return User{}, invalid("user name is required", "user_name", userName)
	}
	if n := utf8.RuneCountInString(userName); n < minUserNameLength || n > maxUserNameLength {
		return User{}, invalid("user name must be between 3 and 32 characters", "user_name", userName)
	}
	for _, r := range userName {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return User{}, invalid("user name contains invalid characters", "user_name", userName)
		}
	}
	if email == "" {
		return User{}, invalid("email is required", "email", email)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return User{}, invalid("email is not a valid address", "email", email)
	}
	if name == "" {
		return User{}, invalid("name is required", "name", name)
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		return User{}, invalid("name is too long", "name", name)
	}
	return User{UserName: userName, Email: email, Name: name}, nil
}

// Lock marks the user as locked at the given time. Locking twice is rejected.
func (u *User) Lock(at time.Time) error {
	if u.Locked {
		return invalid("user is already locked", "user_name", u.UserName)
	}
	at = at.UTC()
	u.Locked = true
	u.LockedAt = &at
	return nil
}

func clean(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}

func invalid(message, field, value string) error {
	return apperrors.WithMetadata(apperrors.CodeDomainValidation, message, map[string]string{
		"field": field,
		"value": value,
	})
}
