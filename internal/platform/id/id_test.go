package id

import (
	"testing"

	"github.com/google/uuid"
)

func TestRandomIDFormat(t *testing.T) {
	value, err := Random{}.NewID("role", "admin")
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if value.Version() != 4 {
		t.Fatalf("expected version 4, got %d", value.Version())
	}
	if value.Variant() != uuid.RFC4122 {
		t.Fatalf("expected RFC4122 variant, got %v", value.Variant())
	}
	text := value.String()
	if len(text) != 36 {
		t.Fatalf("expected 36-character id, got %d", len(text))
	}
}

func TestRandomIDsDiffer(t *testing.T) {
	first, _ := Random{}.NewID("role", "admin")
	second, _ := Random{}.NewID("role", "admin")
	if first == second {
		t.Fatal("expected distinct random ids")
	}
}

func TestDeterministicIDIsStable(t *testing.T) {
	gen := Deterministic{}
	first, err := gen.NewID("Role", "admin")
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	second, _ := gen.NewID("role", "admin")
	if first != second {
		t.Fatalf("expected stable id, got %s and %s", first, second)
	}
	if first.Version() != 5 {
		t.Fatalf("expected version 5, got %d", first.Version())
	}
	other, _ := gen.NewID("user", "admin")
	if other == first {
		t.Fatal("expected kind to change the id")
	}
}

func TestDeterministicIDNamespace(t *testing.T) {
	custom := Deterministic{Namespace: uuid.MustParse("00000000-0000-0000-0000-000000000001")}
	a, _ := custom.NewID("role", "admin")
	b, _ := Deterministic{}.NewID("role", "admin")
	if a == b {
		t.Fatal("expected namespaces to produce different ids")
	}
}

func TestParse(t *testing.T) {
	value, err := Parse(" 6F1D7C2E-3A0B-5B8E-9C4D-2E7F1A6B3C90 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if value != Namespace {
		t.Fatalf("parse = %s, want %s", value, Namespace)
	}
	if _, err := Parse("nope"); err == nil {
		t.Fatal("expected parse error")
	}
}
