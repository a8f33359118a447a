package operation

import (
	"context"

	"github.com/roach88/dsunit/internal/database"
	"github.com/roach88/dsunit/internal/dataset"
)

// CompositeOperation runs a sequence of operations with the same dataset,
// stopping at the first error.
type CompositeOperation struct {
	kind Kind
	ops  []database.Operation
}

// Composite returns an operation named kind that runs ops in order.
func Composite(kind Kind, ops ...database.Operation) *CompositeOperation {
	return &CompositeOperation{kind: kind, ops: ops}
}

func (c *CompositeOperation) String() string { return string(c.kind) }

// Execute implements database.Operation.
func (c *CompositeOperation) Execute(ctx context.Context, ex database.Executor, ds *dataset.Dataset) error {
	for _, op := range c.ops {
		if err := op.Execute(ctx, ex, ds); err != nil {
			return err
		}
	}
	return nil
}
