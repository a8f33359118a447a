package dataset

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
)

// XMLDecoder decodes DBUnit flat XML datasets: every child of the root
// element is a row named after its table, attributes are columns.
type XMLDecoder struct{}

// Decode implements Decoder. All attribute values are strings.
func (XMLDecoder) Decode(name string, data []byte) (*Dataset, error) {
	ds := New()
	dec := xml.NewDecoder(bytes.NewReader(data))

	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: failed to parse XML: %w", name, err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			depth++
			if depth != 2 {
				continue
			}
			table, err := ds.AddTable(el.Name.Local)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			if len(el.Attr) == 0 {
				continue
			}
			cols := make([]string, 0, len(el.Attr))
			vals := make([]any, 0, len(el.Attr))
			for _, a := range el.Attr {
				cols = append(cols, a.Name.Local)
				vals = append(vals, a.Value)
			}
			if err := table.AddRow(cols, vals); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		case xml.EndElement:
			depth--
		}
	}

	if depth != 0 {
		return nil, fmt.Errorf("%s: unbalanced XML document", name)
	}
	return ds, nil
}

// WriteXML writes ds as a flat XML dataset. NULL cells are omitted and a
// table without rows is written as a single empty element.
func WriteXML(w io.Writer, ds *Dataset) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	root := xml.StartElement{Name: xml.Name{Local: "dataset"}}
	if err := enc.EncodeToken(root); err != nil {
		return err
	}

	for _, t := range ds.Tables {
		if len(t.Rows) == 0 {
			el := xml.StartElement{Name: xml.Name{Local: t.Name}}
			if err := enc.EncodeToken(el); err != nil {
				return err
			}
			if err := enc.EncodeToken(el.End()); err != nil {
				return err
			}
			continue
		}
		for _, r := range t.Rows {
			el := xml.StartElement{Name: xml.Name{Local: t.Name}}
			for i, c := range t.Columns {
				if r[i] == nil {
					continue
				}
				el.Attr = append(el.Attr, xml.Attr{Name: xml.Name{Local: c}, Value: FormatValue(r[i])})
			}
			if err := enc.EncodeToken(el); err != nil {
				return err
			}
			if err := enc.EncodeToken(el.End()); err != nil {
				return err
			}
		}
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
