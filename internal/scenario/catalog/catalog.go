// Package catalog holds the built-in seed scenarios.
package catalog

import (
	"context"
	"fmt"

	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/scenario"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/storage"
)

// Scenario names.
const (
	Empty       = "Empty"
	CreateRoles = "CreateRoles"
	CreateUsers = "CreateUsers"
	AssignRoles = "AssignRoles"
)

// RoleSeed is one role created by CreateRoles.
type RoleSeed struct {
	Name        string
	Description string
}

// UserSeed is one user created by CreateUsers.
type UserSeed struct {
	UserName string
	Email    string
	Name     string
}

// GrantSeed is one role grant created by AssignRoles.
type GrantSeed struct {
	UserName string
	Role     string
}

// Roles are the roles seeded by CreateRoles.
var Roles = []RoleSeed{
	{Name: "Administrator", Description: "Full access to every module"},
	{Name: "Editor", Description: "Can create and update content"},
	{Name: "Viewer", Description: "Read-only access"},
}

// Users are the users seeded by CreateUsers.
var Users = []UserSeed{
	{UserName: "jdoe", Email: "john.doe@example.com", Name: "John Doe"},
	{UserName: "asmith", Email: "alice.smith@example.com", Name: "Alice Smith"},
	{UserName: "mgarcia", Email: "maria.garcia@example.com", Name: "María García"},
}

// Grants are the role grants seeded by AssignRoles.
var Grants = []GrantSeed{
	{UserName: "jdoe", Role: "Administrator"},
	{UserName: "asmith", Role: "Editor"},
	{UserName: "asmith", Role: "Viewer"},
	{UserName: "mgarcia", Role: "Viewer"},
}

// LockedUsers are locked by AssignRoles after their grants.
var LockedUsers = []string{"mgarcia"}

// Definitions returns the built-in scenarios, each after its prerequisite.
func Definitions() []scenario.Definition {
	empty := scenario.New(Empty, nil, nil)
	roles := scenario.New(CreateRoles, nil, seedRoles)
	users := scenario.New(CreateUsers, roles, seedUsers)
	grants := scenario.New(AssignRoles, users, seedGrants)
	return []scenario.Definition{empty, roles, users, grants}
}

// Register adds the built-in scenarios to reg.
func Register(reg *scenario.Registry) error {
	for _, def := range Definitions() {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func seedRoles(ctx context.Context, uow storage.UnitOfWork) error {
	return storage.InTransaction(ctx, uow, func(ctx context.Context) error {
		for _, role := range Roles {
			if _, err := uow.Roles().CreateRole(ctx, role.Name, role.Description); err != nil {
				return fmt.Errorf("create role %s: %w", role.Name, err)
			}
		}
		return nil
	})
}

func seedUsers(ctx context.Context, uow storage.UnitOfWork) error {
	return storage.InTransaction(ctx, uow, func(ctx context.Context) error {
		for _, user := range Users {
			if _, err := uow.Users().CreateUser(ctx, user.UserName, user.Email, user.Name); err != nil {
				return fmt.Errorf("create user %s: %w", user.UserName, err)
			}
		}
		return nil
	})
}

func seedGrants(ctx context.Context, uow storage.UnitOfWork) error {
	return storage.InTransaction(ctx, uow, func(ctx context.Context) error {
		for _, grant := range Grants {
			if _, err := uow.Users().GrantRole(ctx, grant.UserName, grant.Role); err != nil {
				return fmt.Errorf("grant %s to %s: %w", grant.Role, grant.UserName, err)
			}
		}
		for _, userName := range LockedUsers {
			if _, err := uow.Users().LockUser(ctx, userName); err != nil {
				return fmt.Errorf("lock user %s: %w", userName, err)
			}
		}
		return nil
	})
}
