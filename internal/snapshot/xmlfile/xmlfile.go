// Package xmlfile reads and writes datasets as XML snapshot files.
//
// The layout is one element per table, one <row> per row and one element per
// column, named after the schema's tables and columns:
//
//	<?xml version="1.0" encoding="UTF-8"?>
//	<dataset name="CreateRoles">
//	  <roles columns="id,name,created_at">
//	    <row>
//	      <id type="uuid">8d1f...</id>
//	      <name type="text">admin</name>
//	      <created_at type="time">2026-03-01T10:00:00Z</created_at>
//	    </row>
//	  </roles>
//	</dataset>
//
// Null values carry null="true" and no content. Files are written atomically.
package xmlfile

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/snapshot/dataset"
	apperrors "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/errors"
)

// Ext is the snapshot file extension.
const Ext = ".xml"

const (
	rootElement = "dataset"
	rowElement  = "row"
	attrName    = "name"
	attrColumns = "columns"
	attrType    = "type"
	attrNull    = "null"
)

// Path returns the snapshot file path for a scenario inside dir.
func Path(dir, scenario string) string {
	return filepath.Join(dir, scenario+Ext)
}

// Write serializes ds to path. The file is produced through a temporary file in
// the same directory and renamed into place, so path either keeps its previous
// content or holds the complete new snapshot.
func Write(path string, ds dataset.Dataset) error {
	var buf bytes.Buffer
	if err := Encode(&buf, ds); err != nil {
		return err
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return apperrors.Wrap(apperrors.CodeSerializationFailed, "create temporary snapshot", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return apperrors.Wrap(apperrors.CodeSerializationFailed, "write temporary snapshot", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return apperrors.Wrap(apperrors.CodeSerializationFailed, "sync temporary snapshot", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Wrap(apperrors.CodeSerializationFailed, "close temporary snapshot", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return apperrors.Wrap(apperrors.CodeSerializationFailed, "chmod temporary snapshot", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return apperrors.Wrap(apperrors.CodeSerializationFailed, "rename snapshot into place", err)
	}
	committed = true
	return nil
}

// Read deserializes the snapshot at path. A missing file keeps fs.ErrNotExist
// in the error chain.
func Read(path string) (dataset.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataset.Dataset{}, apperrors.Wrap(apperrors.CodeSerializationFailed, "open snapshot", err)
	}
	defer f.Close()
	ds, err := Decode(f)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Encode writes ds as indented XML to w. Nothing is written when ds holds a
// name or value that cannot round-trip.
func Encode(w io.Writer, ds dataset.Dataset) error {
	if err := checkDataset(ds); err != nil {
		return apperrors.Wrap(apperrors.CodeSerializationFailed, "encode dataset", err)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	tokens := []xml.Token{xml.StartElement{
		Name: xml.Name{Local: rootElement},
		Attr: []xml.Attr{{Name: xml.Name{Local: attrName}, Value: ds.Name}},
	}}
	for _, table := range ds.Tables {
		start := xml.StartElement{
			Name: xml.Name{Local: table.Name},
			Attr: []xml.Attr{{Name: xml.Name{Local: attrColumns}, Value: strings.Join(table.Columns, ",")}},
		}
		tokens = append(tokens, start)
		for _, row := range table.Rows {
			tokens = append(tokens, xml.StartElement{Name: xml.Name{Local: rowElement}})
			for _, field := range row.Fields() {
				col, err := columnTokens(field)
				if err != nil {
					return apperrors.Wrap(apperrors.CodeSerializationFailed,
						fmt.Sprintf("encode %s.%s", table.Name, field.Column), err)
				}
				tokens = append(tokens, col...)
			}
			tokens = append(tokens, xml.EndElement{Name: xml.Name{Local: rowElement}})
		}
		tokens = append(tokens, start.End())
	}
	tokens = append(tokens, xml.EndElement{Name: xml.Name{Local: rootElement}})

	for _, tok := range tokens {
		if err := enc.EncodeToken(tok); err != nil {
			return apperrors.Wrap(apperrors.CodeSerializationFailed, "encode dataset", err)
		}
	}
	if err := enc.Flush(); err != nil {
		return apperrors.Wrap(apperrors.CodeSerializationFailed, "encode dataset", err)
	}
	buf.WriteByte('\n')

	if _, err := w.Write(buf.Bytes()); err != nil {
		return apperrors.Wrap(apperrors.CodeSerializationFailed, "write dataset", err)
	}
	return nil
}

func columnTokens(field dataset.Field) ([]xml.Token, error) {
	start := xml.StartElement{
		Name: xml.Name{Local: field.Column},
		Attr: []xml.Attr{{Name: xml.Name{Local: attrType}, Value: field.Value.Kind().String()}},
	}
	if field.Value.IsNull() {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: attrNull}, Value: "true"})
		return []xml.Token{start, start.End()}, nil
	}
	text, err := formatValue(field.Value)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return []xml.Token{start, start.End()}, nil
	}
	return []xml.Token{start, xml.CharData(text), start.End()}, nil
}

func checkDataset(ds dataset.Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	if !utf8.ValidString(ds.Name) || !isXMLText(ds.Name) {
		return fmt.Errorf("dataset name %q is not representable", ds.Name)
	}
	for _, table := range ds.Tables {
		if !isXMLName(table.Name) {
			return fmt.Errorf("table name %q is not a valid element name", table.Name)
		}
		for _, col := range table.Columns {
			if !isXMLName(col) || strings.Contains(col, ",") {
				return fmt.Errorf("column name %s.%q is not a valid element name", table.Name, col)
			}
		}
	}
	return nil
}

func formatValue(v dataset.Value) (string, error) {
	switch v.Kind() {
	case dataset.KindInt:
		return strconv.FormatInt(v.Int64(), 10), nil
	case dataset.KindFloat:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64), nil
	case dataset.KindText:
		s := v.Str()
		if !utf8.ValidString(s) {
			return "", fmt.Errorf("text is not valid UTF-8")
		}
		if !isXMLText(s) {
			return "", fmt.Errorf("text contains characters XML cannot carry")
		}
		return s, nil
	case dataset.KindBool:
		return strconv.FormatBool(v.Boolean()), nil
	case dataset.KindTime:
		t := v.Timestamp().UTC()
		if t.Year() < 0 || t.Year() > 9999 {
			return "", fmt.Errorf("time %v is outside the RFC 3339 range", t)
		}
		return t.Format(time.RFC3339Nano), nil
	case dataset.KindUUID:
		return v.Identifier().String(), nil
	case dataset.KindBytes:
		return base64.StdEncoding.EncodeToString(v.Blob()), nil
	default:
		return "", fmt.Errorf("unsupported value kind %s", v.Kind())
	}
}

func parseValue(kind dataset.Kind, text string) (dataset.Value, error) {
	switch kind {
	case dataset.KindInt:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return dataset.Value{}, err
		}
		return dataset.Int(n), nil
	case dataset.KindFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return dataset.Value{}, err
		}
		return dataset.Float(f), nil
	case dataset.KindText:
		return dataset.Text(text), nil
	case dataset.KindBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return dataset.Value{}, err
		}
		return dataset.Bool(b), nil
	case dataset.KindTime:
		t, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return dataset.Value{}, err
		}
		return dataset.Time(t), nil
	case dataset.KindUUID:
		u, err := uuid.Parse(text)
		if err != nil {
			return dataset.Value{}, err
		}
		return dataset.UUID(u), nil
	case dataset.KindBytes:
		raw, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return dataset.Value{}, err
		}
		return dataset.Bytes(raw), nil
	default:
		return dataset.Value{}, fmt.Errorf("unsupported value kind %s", kind)
	}
}

// isXMLName accepts the ASCII subset of XML names used by snake_case schemas.
func isXMLName(name string) bool {
	if name == "" || strings.HasPrefix(strings.ToLower(name), "xml") {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && (r == '-' || r == '.' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}

// isXMLText reports whether every rune is an XML 1.0 Char.
func isXMLText(s string) bool {
	for _, r := range s {
		switch {
		case r == 0x09 || r == 0x0A || r == 0x0D:
		case r >= 0x20 && r <= 0xD7FF:
		case r >= 0xE000 && r <= 0xFFFD:
		case r >= 0x10000 && r <= 0x10FFFF:
		default:
			return false
		}
	}
	return true
}
