package xmlfile

import (
	"bytes"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/errors"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/snapshot/dataset"
)

var (
	adminID   = uuid.MustParse("0b6f1b8e-3c1d-5a57-8f3e-2b8c4d1e9a01")
	createdAt = time.Date(2026, time.March, 1, 10, 30, 15, 123000000, time.UTC)
)

func sampleDataset() dataset.Dataset {
	return dataset.Dataset{
		Name: "CreateRoles",
		Tables: []dataset.Table{
			{
				Name:    "roles",
				Columns: []string{"id", "name", "created_at"},
				Rows: []dataset.Row{
					dataset.NewRow(
						dataset.F("id", dataset.UUID(adminID)),
						dataset.F("name", dataset.Text("admin")),
						dataset.F("created_at", dataset.Time(createdAt)),
					),
				},
			},
			{Name: "users", Columns: []string{"id", "email"}},
		},
	}
}

func TestEncodeLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sampleDataset()); err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `<?xml version="1.0" encoding="UTF-8"?>
<dataset name="CreateRoles">
  <roles columns="id,name,created_at">
    <row>
      <id type="uuid">0b6f1b8e-3c1d-5a57-8f3e-2b8c4d1e9a01</id>
      <name type="text">admin</name>
      <created_at type="time">2026-03-01T10:30:15.123Z</created_at>
    </row>
  </roles>
  <users columns="id,email"></users>
</dataset>
`
	if got := buf.String(); got != want {
		t.Fatalf("unexpected encoding:\n%s\nwant:\n%s", got, want)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	var first, second bytes.Buffer
	if err := Encode(&first, sampleDataset()); err != nil {
		t.Fatalf("encode first: %v", err)
	}
	if err := Encode(&second, sampleDataset()); err != nil {
		t.Fatalf("encode second: %v", err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Fatal("expected identical output for identical datasets")
	}
}

func TestRoundTripAllKinds(t *testing.T) {
	values := []dataset.Value{
		dataset.Int(math.MinInt64),
		dataset.Int(0),
		dataset.Float(0.1),
		dataset.Float(math.Inf(-1)),
		dataset.Float(math.NaN()),
		dataset.Float(1e-300),
		dataset.Text(""),
		dataset.Text("  padded\tline\r\nnext <&> \"quoted\" ñandú 🎲  "),
		dataset.Bool(true),
		dataset.Bool(false),
		dataset.Time(time.Date(2026, time.January, 2, 3, 4, 5, 999999999, time.FixedZone("X", 3600))),
		dataset.UUID(adminID),
		dataset.Bytes([]byte{0, 1, 2, 255}),
		dataset.Bytes(nil),
		dataset.Null(dataset.KindText),
		dataset.Null(dataset.KindTime),
		dataset.Null(dataset.KindUUID),
		dataset.Null(dataset.KindBool),
	}
	table := dataset.Table{Name: "samples", Columns: []string{"value"}}
	for _, v := range values {
		table.Rows = append(table.Rows, dataset.NewRow(dataset.F("value", v)))
	}
	ds := dataset.Dataset{Name: "Kinds", Tables: []dataset.Table{table}}

	var buf bytes.Buffer
	if err := Encode(&buf, ds); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := ds.Diff(got); diff != "" {
		t.Fatalf("round trip mismatch: %s", diff)
	}
}

func TestEncodeRejectsUnrepresentableValues(t *testing.T) {
	tests := []struct {
		name string
		ds   dataset.Dataset
	}{
		{
			name: "control character",
			ds:   singleValue("notes", dataset.Text("bell\x07")),
		},
		{
			name: "invalid utf8",
			ds:   singleValue("notes", dataset.Text(string([]byte{0xff, 0xfe}))),
		},
		{
			name: "year out of range",
			ds:   singleValue("at", dataset.Time(time.Date(10000, time.January, 1, 0, 0, 0, 0, time.UTC))),
		},
		{
			name: "bad column name",
			ds:   singleValue("1st", dataset.Int(1)),
		},
		{
			name: "reserved prefix",
			ds:   singleValue("xml_data", dataset.Int(1)),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := Encode(&buf, tt.ds)
			if !apperrors.HasCode(err, apperrors.CodeSerializationFailed) {
				t.Fatalf("expected serialization error, got %v", err)
			}
			if buf.Len() != 0 {
				t.Fatalf("expected nothing written, got %q", buf.String())
			}
		})
	}
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "CreateRoles")
	if filepath.Base(path) != "CreateRoles.xml" {
		t.Fatalf("unexpected snapshot name %q", filepath.Base(path))
	}
	if err := Write(path, sampleDataset()); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Fatalf("expected 0644 permissions, got %v", info.Mode().Perm())
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := sampleDataset().Diff(got); diff != "" {
		t.Fatalf("round trip mismatch: %s", diff)
	}
	assertNoTempFiles(t, dir)
}

func TestWriteFailureKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "CreateRoles")
	if err := Write(path, sampleDataset()); err != nil {
		t.Fatalf("write: %v", err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read before: %v", err)
	}

	err = Write(path, singleValue("notes", dataset.Text("\x00")))
	if !apperrors.HasCode(err, apperrors.CodeSerializationFailed) {
		t.Fatalf("expected serialization error, got %v", err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("expected failed write to leave the previous snapshot untouched")
	}
	assertNoTempFiles(t, dir)
}

func TestWriteFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "Broken")
	if err := Write(path, singleValue("notes", dataset.Text("\x01"))); err == nil {
		t.Fatal("expected write error")
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected no snapshot file, stat err = %v", err)
	}
	assertNoTempFiles(t, dir)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "Missing.xml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "wrong root", input: `<snapshot name="x"></snapshot>`},
		{name: "truncated", input: `<dataset name="x"><roles columns="id"><row><id type="int">1</id>`},
		{name: "unknown kind", input: `<dataset name="x"><roles columns="id"><row><id type="decimal">1</id></row></roles></dataset>`},
		{name: "bad int", input: `<dataset name="x"><roles columns="id"><row><id type="int">one</id></row></roles></dataset>`},
		{name: "bad uuid", input: `<dataset name="x"><roles columns="id"><row><id type="uuid">nope</id></row></roles></dataset>`},
		{name: "null with content", input: `<dataset name="x"><roles columns="id"><row><id type="int" null="true">1</id></row></roles></dataset>`},
		{name: "non row child", input: `<dataset name="x"><roles columns="id"><item/></roles></dataset>`},
		{name: "stray text", input: `<dataset name="x">hello</dataset>`},
		{name: "columns mismatch", input: `<dataset name="x"><roles columns="id"><row><name type="text">a</name></row></roles></dataset>`},
		{name: "nested column", input: `<dataset name="x"><roles columns="id"><row><id type="int"><x/></id></row></roles></dataset>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			if !apperrors.HasCode(err, apperrors.CodeSerializationFailed) {
				t.Fatalf("expected serialization error, got %v", err)
			}
		})
	}
}

func singleValue(column string, value dataset.Value) dataset.Dataset {
	return dataset.Dataset{
		Name: "Single",
		Tables: []dataset.Table{{
			Name:    "samples",
			Columns: []string{column},
			Rows:    []dataset.Row{dataset.NewRow(dataset.F(column, value))},
		}},
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Fatalf("unexpected temporary file %s", entry.Name())
		}
	}
}

func TestDirStoresOneFilePerScenario(t *testing.T) {
	dir := Dir(t.TempDir())
	if got, want := dir.Path("CreateRoles"), filepath.Join(string(dir), "CreateRoles.xml"); got != want {
		t.Fatalf("path = %q, want %q", got, want)
	}
	if _, err := dir.Load("CreateRoles"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("load before save error = %v, want fs.ErrNotExist", err)
	}
	ds := sampleDataset()
	if err := dir.Save("CreateRoles", ds); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := dir.Load("CreateRoles")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Equal(ds) {
		t.Fatalf("loaded dataset differs: %s", got.Diff(ds))
	}
}
