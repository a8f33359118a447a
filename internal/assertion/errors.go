package assertion

import (
	"errors"
	"fmt"
	"strings"
)

// Failure categories reported in AssertionError.Type.
const (
	TypeTables   = "tables"
	TypeColumns  = "columns"
	TypeRowCount = "row_count"
	TypeRow      = "row"
	TypeValue    = "value"
)

// AssertionError is returned when the database content does not match the
// expected dataset.
type AssertionError struct {
	Type     string // Failure category
	Table    string // Table being compared, empty for table-set mismatches
	Column   string // Column of a value mismatch
	Row      int    // Zero-based row of a value mismatch
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Table != "" {
		fmt.Fprintf(&buf, " in table %s", e.Table)
	}
	if e.Type == TypeValue {
		fmt.Fprintf(&buf, " (row %d, column %s)", e.Row, e.Column)
	}
	buf.WriteByte('\n')

	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)

	return buf.String()
}

// IsAssertionError returns true if err is, or wraps, an *AssertionError.
func IsAssertionError(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}
