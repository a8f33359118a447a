package annotation

import (
	"github.com/roach88/dsunit/internal/assertion"
	"github.com/roach88/dsunit/internal/operation"
)

// Class identifies a test suite. Dataset locations are resolved relative to
// Dir.
type Class struct {
	// Name is the suite name, usually the name of the test function or of
	// the struct holding the suite.
	Name string

	// Dir is the directory holding the suite's datasets.
	Dir string
}

// Application applies one operation with one or more datasets.
type Application struct {
	// Connection names the target connection. Empty means the current
	// connection of the declaration.
	Connection string `yaml:"connection,omitempty"`

	// Type is the operation. Empty means clean-insert.
	Type operation.Kind `yaml:"type,omitempty"`

	// Locations are dataset locations, applied in order. An empty location
	// is skipped.
	Locations []string `yaml:"locations"`
}

// Declaration is one setup or teardown group: the applications declared at
// one level (suite or test).
type Declaration []Application

// Expectation declares the content a connection must hold after the test.
type Expectation struct {
	// Connection names the connection to verify. Empty means the first
	// connection.
	Connection string `yaml:"connection,omitempty"`

	// Location of the expected dataset. Empty means no check.
	Location string `yaml:"location"`

	// Mode is the comparison mode.
	Mode assertion.Mode `yaml:"mode,omitempty"`

	// IgnoreColumns lists "column" or "table.column" entries left out of the
	// comparison.
	IgnoreColumns []string `yaml:"ignore_columns,omitempty"`
}

// Declarations are the declarations visible to one test, suite level first.
type Declarations struct {
	Setups       []Declaration
	Teardowns    []Declaration
	Expectations []Expectation
}

// Set groups the declarations made at one level.
type Set struct {
	Setup    Declaration   `yaml:"setup,omitempty"`
	Teardown Declaration   `yaml:"teardown,omitempty"`
	Expected []Expectation `yaml:"expected,omitempty"`
}

// Aggregate combines suite-level and test-level declarations, suite first.
// Empty groups are dropped; each remaining group stays separate.
func Aggregate(levels ...Set) Declarations {
	var d Declarations
	for _, s := range levels {
		if len(s.Setup) > 0 {
			d.Setups = append(d.Setups, s.Setup)
		}
		if len(s.Teardown) > 0 {
			d.Teardowns = append(d.Teardowns, s.Teardown)
		}
		d.Expectations = append(d.Expectations, s.Expected...)
	}
	return d
}
