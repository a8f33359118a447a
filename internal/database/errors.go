package database

import (
	"errors"
	"fmt"
)

// ExecError reports a failure while executing a dataset operation or taking
// a snapshot. Statements already executed are not rolled back.
type ExecError struct {
	// Operation is the operation name, or "snapshot".
	Operation string

	// Table is the table being processed, empty when the failure is not
	// specific to one table.
	Table string

	// Err is the driver error.
	Err error
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s on table %s: %v", e.Operation, e.Table, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// IsExecError returns true if err is, or wraps, an *ExecError.
func IsExecError(err error) bool {
	var ee *ExecError
	return errors.As(err, &ee)
}
