package runner

import (
	"fmt"

	"github.com/roach88/dsunit/internal/database"
	"github.com/roach88/dsunit/internal/operation"
)

// resolveOperation maps kind through lookup. A nil lookup means
// operation.DefaultLookup.
func (r *Runner) resolveOperation(lookup operation.Lookup, kind operation.Kind) (database.Operation, error) {
	if lookup == nil {
		lookup = operation.DefaultLookup()
	}
	op, ok := lookup.Get(kind)
	if !ok || op == nil {
		return nil, &ConfigurationError{
			Code:    ErrCodeUnsupportedOperation,
			Message: fmt.Sprintf("the database operation %s is not supported", kind),
		}
	}
	return op, nil
}
