package dataset

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLDecoder decodes flat YAML datasets.
type YAMLDecoder struct{}

// Decode implements Decoder. The document is walked as a node tree so that
// table and column order survive decoding.
func (YAMLDecoder) Decode(name string, data []byte) (*Dataset, error) {
	ds := New()

	var doc yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		if err == io.EOF {
			return ds, nil
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return ds, nil
	}

	root := doc.Content[0]
	if isNull(root) {
		return ds, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s:%d: dataset must be a mapping of table names to rows", name, root.Line)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, rows := root.Content[i], root.Content[i+1]

		table, err := ds.AddTable(key.Value)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, key.Line, err)
		}
		if isNull(rows) {
			continue
		}
		if rows.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("%s:%d: table %s must be a list of rows", name, rows.Line, key.Value)
		}

		for _, row := range rows.Content {
			if row.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("%s:%d: row of table %s must be a mapping", name, row.Line, key.Value)
			}
			cols := make([]string, 0, len(row.Content)/2)
			vals := make([]any, 0, len(row.Content)/2)
			for j := 0; j+1 < len(row.Content); j += 2 {
				var v any
				if err := row.Content[j+1].Decode(&v); err != nil {
					return nil, fmt.Errorf("%s:%d: column %s: %w", name, row.Content[j+1].Line, row.Content[j].Value, err)
				}
				cols = append(cols, row.Content[j].Value)
				vals = append(vals, Normalize(v))
			}
			if err := table.AddRow(cols, vals); err != nil {
				return nil, fmt.Errorf("%s:%d: %w", name, row.Line, err)
			}
		}
	}

	return ds, nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

// WriteYAML writes ds as a flat YAML dataset. NULL cells are omitted, which
// reads back as NULL.
func WriteYAML(w io.Writer, ds *Dataset) error {
	root := &yaml.Node{Kind: yaml.MappingNode}

	for _, t := range ds.Tables {
		rows := &yaml.Node{Kind: yaml.SequenceNode}
		if len(t.Rows) == 0 {
			rows.Style = yaml.FlowStyle
		}
		for _, r := range t.Rows {
			row := &yaml.Node{Kind: yaml.MappingNode}
			for i, c := range t.Columns {
				if r[i] == nil {
					continue
				}
				val, err := valueNode(r[i])
				if err != nil {
					return fmt.Errorf("table %s column %s: %w", t.Name, c, err)
				}
				row.Content = append(row.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: c}, val)
			}
			rows.Content = append(rows.Content, row)
		}
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: t.Name}, rows)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

func valueNode(v any) (*yaml.Node, error) {
	switch val := v.(type) {
	case []byte:
		v = string(val)
	case time.Time:
		v = val.UTC().Format(time.RFC3339Nano)
	}
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return n, nil
}
