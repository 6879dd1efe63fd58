package xmlfile

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/snapshot/dataset"
	apperrors "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/errors"
)

// Decode reads a dataset previously written by Encode.
func Decode(r io.Reader) (dataset.Dataset, error) {
	d := decoder{dec: xml.NewDecoder(r)}
	ds, err := d.dataset()
	if err != nil {
		return dataset.Dataset{}, apperrors.Wrap(apperrors.CodeSerializationFailed, "decode dataset", err)
	}
	if err := ds.Validate(); err != nil {
		return dataset.Dataset{}, apperrors.Wrap(apperrors.CodeSerializationFailed, "decode dataset", err)
	}
	return ds, nil
}

type decoder struct {
	dec *xml.Decoder
}

// next returns the next start or end element, skipping whitespace, comments,
// processing instructions and directives. Non-whitespace text is an error.
func (d decoder) next() (xml.Token, error) {
	for {
		tok, err := d.dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement, xml.EndElement:
			return t, nil
		case xml.CharData:
			if strings.TrimSpace(string(t)) != "" {
				return nil, fmt.Errorf("unexpected text %q", strings.TrimSpace(string(t)))
			}
		}
	}
}

func (d decoder) dataset() (dataset.Dataset, error) {
	tok, err := d.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return dataset.Dataset{}, errors.New("empty document")
		}
		return dataset.Dataset{}, err
	}
	root, ok := tok.(xml.StartElement)
	if !ok || root.Name.Local != rootElement {
		return dataset.Dataset{}, fmt.Errorf("expected <%s> root element", rootElement)
	}
	ds := dataset.Dataset{Name: attr(root, attrName)}

	for {
		tok, err := d.next()
		if err != nil {
			return dataset.Dataset{}, unexpectedEOF(err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			return ds, nil
		case xml.StartElement:
			table, err := d.table(t)
			if err != nil {
				return dataset.Dataset{}, fmt.Errorf("table %s: %w", t.Name.Local, err)
			}
			ds.Tables = append(ds.Tables, table)
		}
	}
}

func (d decoder) table(start xml.StartElement) (dataset.Table, error) {
	table := dataset.Table{Name: start.Name.Local}
	if cols := attr(start, attrColumns); cols != "" {
		table.Columns = strings.Split(cols, ",")
	}
	for {
		tok, err := d.next()
		if err != nil {
			return dataset.Table{}, unexpectedEOF(err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			return table, nil
		case xml.StartElement:
			if t.Name.Local != rowElement {
				return dataset.Table{}, fmt.Errorf("expected <%s>, got <%s>", rowElement, t.Name.Local)
			}
			row, err := d.row()
			if err != nil {
				return dataset.Table{}, fmt.Errorf("row %d: %w", len(table.Rows), err)
			}
			table.Rows = append(table.Rows, row)
		}
	}
}

func (d decoder) row() (dataset.Row, error) {
	var fields []dataset.Field
	for {
		tok, err := d.next()
		if err != nil {
			return dataset.Row{}, unexpectedEOF(err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			return dataset.NewRow(fields...), nil
		case xml.StartElement:
			value, err := d.column(t)
			if err != nil {
				return dataset.Row{}, fmt.Errorf("column %s: %w", t.Name.Local, err)
			}
			fields = append(fields, dataset.F(t.Name.Local, value))
		}
	}
}

func (d decoder) column(start xml.StartElement) (dataset.Value, error) {
	kind, err := dataset.ParseKind(attr(start, attrType))
	if err != nil {
		return dataset.Value{}, err
	}
	var text strings.Builder
	for {
		tok, err := d.dec.Token()
		if err != nil {
			return dataset.Value{}, unexpectedEOF(err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			return dataset.Value{}, fmt.Errorf("unexpected nested element <%s>", t.Name.Local)
		case xml.EndElement:
			if attr(start, attrNull) == "true" {
				if text.Len() > 0 {
					return dataset.Value{}, errors.New("null value has content")
				}
				return dataset.Null(kind), nil
			}
			return parseValue(kind, text.String())
		}
	}
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
