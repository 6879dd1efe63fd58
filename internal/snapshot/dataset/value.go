package dataset

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Kind is the logical type of a column value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindText
	KindBool
	KindTime
	KindUUID
	KindBytes
)

var kindNames = map[Kind]string{
	KindInt:   "int",
	KindFloat: "float",
	KindText:  "text",
	KindBool:  "bool",
	KindTime:  "time",
	KindUUID:  "uuid",
	KindBytes: "bytes",
}

// String returns the serialized name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind returns the kind with the given serialized name.
func ParseKind(name string) (Kind, error) {
	for kind, candidate := range kindNames {
		if candidate == name {
			return kind, nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown value kind %q", name)
}

// Value is a typed, nullable column value. The zero Value is invalid.
type Value struct {
	kind  Kind
	null  bool
	i     int64
	f     float64
	s     string
	b     bool
	t     time.Time
	u     uuid.UUID
	bytes []byte
}

// Null returns a null value of the given kind.
func Null(kind Kind) Value { return Value{kind: kind, null: true} }

// Int returns an integer value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float returns a floating point value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Text returns a text value.
func Text(v string) Value { return Value{kind: KindText, s: v} }

// Bool returns a boolean value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Time returns a timestamp value normalized to UTC.
func Time(v time.Time) Value { return Value{kind: KindTime, t: v.UTC()} }

// UUID returns an identifier value.
func UUID(v uuid.UUID) Value { return Value{kind: KindUUID, u: v} }

// Bytes returns a binary value holding a copy of v.
func Bytes(v []byte) Value {
	return Value{kind: KindBytes, bytes: bytes.Clone(v)}
}

// Kind reports the logical type of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.null }

// IsValid reports whether v carries a known kind.
func (v Value) IsValid() bool {
	_, ok := kindNames[v.kind]
	return ok
}

// Int64 returns the integer payload.
func (v Value) Int64() int64 { return v.i }

// Float64 returns the floating point payload.
func (v Value) Float64() float64 { return v.f }

// Str returns the text payload.
func (v Value) Str() string { return v.s }

// Boolean returns the boolean payload.
func (v Value) Boolean() bool { return v.b }

// Timestamp returns the time payload.
func (v Value) Timestamp() time.Time { return v.t }

// Identifier returns the uuid payload.
func (v Value) Identifier() uuid.UUID { return v.u }

// Blob returns a copy of the binary payload.
func (v Value) Blob() []byte { return bytes.Clone(v.bytes) }

// Any returns the payload as a plain Go value, or nil when null.
func (v Value) Any() any {
	if v.null {
		return nil
	}
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindText:
		return v.s
	case KindBool:
		return v.b
	case KindTime:
		return v.t
	case KindUUID:
		return v.u
	case KindBytes:
		return bytes.Clone(v.bytes)
	default:
		return nil
	}
}

// Equal reports whether v and other have the same kind, nullness and payload.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind || v.null != other.null {
		return false
	}
	if v.null {
		return true
	}
	switch v.kind {
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f || (math.IsNaN(v.f) && math.IsNaN(other.f))
	case KindText:
		return v.s == other.s
	case KindBool:
		return v.b == other.b
	case KindTime:
		return v.t.Equal(other.t)
	case KindUUID:
		return v.u == other.u
	case KindBytes:
		return bytes.Equal(v.bytes, other.bytes)
	default:
		return true
	}
}

// String renders v for diagnostics.
func (v Value) String() string {
	if v.null {
		return v.kind.String() + "(null)"
	}
	switch v.kind {
	case KindTime:
		return v.kind.String() + "(" + v.t.Format(time.RFC3339Nano) + ")"
	case KindBytes:
		return fmt.Sprintf("%s(%d bytes)", v.kind, len(v.bytes))
	default:
		return fmt.Sprintf("%s(%v)", v.kind, v.Any())
	}
}
