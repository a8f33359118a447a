package operation

import (
	"fmt"
	"strings"
)

// Kind names a dataset operation as it appears in declarations.
type Kind string

const (
	// CleanInsert deletes all rows of the dataset's tables, then inserts.
	CleanInsert Kind = "clean-insert"
	// Insert inserts every row.
	Insert Kind = "insert"
	// Refresh updates rows that exist and inserts the rest.
	Refresh Kind = "refresh"
	// Update updates rows by primary key. Every row must exist.
	Update Kind = "update"
	// Delete deletes the dataset's rows by primary key.
	Delete Kind = "delete"
	// DeleteAll deletes all rows of the dataset's tables.
	DeleteAll Kind = "delete-all"
	// TruncateTable truncates the dataset's tables.
	TruncateTable Kind = "truncate-table"
)

// Kinds lists every kind in declaration-file spelling.
var Kinds = []Kind{CleanInsert, Insert, Refresh, Update, Delete, DeleteAll, TruncateTable}

// ParseKind parses a kind. Both the declaration-file spelling
// ("delete-all") and the DBUnit constant spelling ("DELETE_ALL") are
// accepted. An empty string is CleanInsert.
func ParseKind(s string) (Kind, error) {
	k := normalize(s)
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

func normalize(s string) Kind {
	s = strings.TrimSpace(s)
	if s == "" {
		return CleanInsert
	}
	return Kind(strings.ReplaceAll(strings.ToLower(s), "_", "-"))
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// UnmarshalText implements encoding.TextUnmarshaler so that kinds can be
// decoded straight from YAML declaration files. The spelling is normalised
// but unknown kinds are kept: a Lookup may map kinds beyond Kinds, and the
// runner rejects what its lookup cannot resolve.
func (k *Kind) UnmarshalText(text []byte) error {
	*k = normalize(string(text))
	return nil
}
