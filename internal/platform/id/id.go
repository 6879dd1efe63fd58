// Package id provides identifier generation for persisted entities.
//
// Identifiers are UUIDs rendered in their canonical lowercase 8-4-4-4-12 form.
// Production code uses random (version 4) identifiers; seeding uses name-based
// (version 5) identifiers so that repeated runs produce identical snapshots.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// Generator creates identifiers for new entities. The kind and key describe the
// entity being created; random generators ignore them.
type Generator interface {
	NewID(kind, key string) (uuid.UUID, error)
}

// Random generates version 4 identifiers.
type Random struct{}

// NewID returns a fresh random UUID.
func (Random) NewID(string, string) (uuid.UUID, error) {
	return uuid.NewRandom()
}

// Namespace is the default namespace for deterministic identifiers.
var Namespace = uuid.MustParse("6f1d7c2e-3a0b-5b8e-9c4d-2e7f1a6b3c90")

// Deterministic generates version 5 identifiers from the entity kind and key.
type Deterministic struct {
	Namespace uuid.UUID
}

// NewID returns the SHA-1 name-based UUID of "kind:key" in the namespace.
func (d Deterministic) NewID(kind, key string) (uuid.UUID, error) {
	ns := d.Namespace
	if ns == uuid.Nil {
		ns = Namespace
	}
	name := strings.ToLower(strings.TrimSpace(kind)) + ":" + key
	return uuid.NewSHA1(ns, []byte(name)), nil
}

// Parse parses a canonical identifier string.
func Parse(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}
