package dataset

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// CUEDecoder decodes datasets written in CUE. The value must be a struct of
// lists of structs; constraints and definitions may be used freely as long
// as the rows evaluate to concrete values.
type CUEDecoder struct{}

// Decode implements Decoder.
func (CUEDecoder) Decode(name string, data []byte) (*Dataset, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	ds := New()
	tables, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for tables.Next() {
		tableName := tables.Label()
		table, err := ds.AddTable(tableName)
		if err != nil {
			return nil, err
		}

		rowsVal := tables.Value()
		if rowsVal.Kind() == cue.NullKind {
			continue
		}
		rows, err := rowsVal.List()
		if err != nil {
			return nil, fmt.Errorf("table %s must be a list of rows: %w", tableName, formatCUEError(err))
		}

		for rows.Next() {
			fields, err := rows.Value().Fields()
			if err != nil {
				return nil, fmt.Errorf("row of table %s must be a struct: %w", tableName, formatCUEError(err))
			}
			var cols []string
			var vals []any
			for fields.Next() {
				val, err := cueScalar(fields.Value())
				if err != nil {
					return nil, fmt.Errorf("table %s column %s: %w", tableName, fields.Label(), err)
				}
				cols = append(cols, fields.Label())
				vals = append(vals, val)
			}
			if err := table.AddRow(cols, vals); err != nil {
				return nil, err
			}
		}
	}

	return ds, nil
}

// cueScalar converts a concrete CUE scalar into a dataset value.
func cueScalar(v cue.Value) (any, error) {
	if d, ok := v.Default(); ok {
		v = d
	}
	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		return v.Bool()
	case cue.IntKind:
		return v.Int64()
	case cue.FloatKind:
		return v.Float64()
	case cue.StringKind:
		return v.String()
	case cue.BytesKind:
		b, err := v.Bytes()
		return string(b), err
	default:
		return nil, fmt.Errorf("unsupported value kind %s (values must be concrete scalars)", v.IncompleteKind())
	}
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if pos := errors.Positions(first); len(pos) > 0 {
		return fmt.Errorf("%s: %s", pos[0], first.Error())
	}
	return first
}
