package assertion

import (
	"fmt"
	"strings"
)

// Mode selects how strictly an expected dataset is compared with the
// database content.
type Mode string

const (
	// Strict, spelled "default", requires the same tables, the same
	// columns and the same rows in the same order.
	Strict Mode = "default"

	// NonStrict only checks the tables and columns the expected dataset
	// declares. Rows must still match in order.
	NonStrict Mode = "non-strict"

	// NonStrictUnordered is NonStrict with order-insensitive rows.
	NonStrictUnordered Mode = "non-strict-unordered"
)

// ParseMode parses a mode. The DBUnit constant spelling ("NON_STRICT") is
// accepted as well; an empty string is Strict.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")); m {
	case "":
		return Strict, nil
	case Strict, NonStrict, NonStrictUnordered:
		return m, nil
	default:
		return "", fmt.Errorf("unknown assertion mode %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Options configures one comparison.
type Options struct {
	Mode Mode

	// IgnoreColumns lists columns dropped from both sides before comparing.
	// An entry is either "column", which applies to every table, or
	// "table.column".
	IgnoreColumns []string
}
