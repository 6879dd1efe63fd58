// Package scenario composes seed definitions into snapshot files.
//
// A Definition seeds data through repositories on top of its prerequisite's
// snapshot. The Runner resets the database, replays the prerequisite snapshot,
// seeds, captures the resulting tables and writes them as the scenario's own
// snapshot, one scenario at a time in prerequisite order.
package scenario

import (
	"context"
	"fmt"

	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/storage"
)

// Definition is one named seed unit.
type Definition interface {
	// Name identifies the scenario and is the stem of its snapshot file.
	Name() string
	// Prerequisite returns the scenario whose snapshot is loaded before
	// seeding, or nil.
	Prerequisite() Definition
	// Seed inserts the scenario's data through uow.
	Seed(ctx context.Context, uow storage.UnitOfWork) error
}

// SeedFunc seeds data through a unit of work.
type SeedFunc func(ctx context.Context, uow storage.UnitOfWork) error

type funcDefinition struct {
	name         string
	prerequisite Definition
	seed         SeedFunc
}

// New builds a Definition from a seed function. A nil seed only resets and
// captures.
func New(name string, prerequisite Definition, seed SeedFunc) Definition {
	return &funcDefinition{name: name, prerequisite: prerequisite, seed: seed}
}

func (d *funcDefinition) Name() string             { return d.name }
func (d *funcDefinition) Prerequisite() Definition { return d.prerequisite }

func (d *funcDefinition) Seed(ctx context.Context, uow storage.UnitOfWork) error {
	if d.seed == nil {
		return nil
	}
	return d.seed(ctx, uow)
}

// Ref names a scenario registered elsewhere. It is resolved through
// Registry.PrerequisiteOf and cannot seed on its own.
func Ref(name string) Definition {
	return reference(name)
}

type reference string

func (r reference) Name() string             { return string(r) }
func (r reference) Prerequisite() Definition { return nil }

func (r reference) Seed(context.Context, storage.UnitOfWork) error {
	return fmt.Errorf("scenario reference %q cannot seed", string(r))
}
