package runner

import (
	"context"
	"sync"

	"github.com/roach88/dsunit/internal/annotation"
	"github.com/roach88/dsunit/internal/database"
	"github.com/roach88/dsunit/internal/dataset"
	"github.com/roach88/dsunit/internal/operation"
)

// Context is what the runner needs to know about one test invocation.
type Context interface {
	// Connections returns the connections of the invocation. Repeated calls
	// return the same set.
	Connections(ctx context.Context) (*ConnectionSet, error)

	// TestClass identifies the suite. Dataset locations resolve against its
	// directory.
	TestClass() annotation.Class

	// TestMethod names the test.
	TestMethod() string

	// DatasetLoader loads declared datasets.
	DatasetLoader() dataset.Loader

	// OperationLookup maps declared kinds to operations.
	OperationLookup() operation.Lookup

	// TestFailure returns the failure of the test body, or nil.
	TestFailure() error

	// Close releases every connection resolved so far.
	Close() error
}

// ConnectionSource produces the named connections of an invocation. It is
// called at most once per invocation, on first use.
type ConnectionSource func(ctx context.Context) (map[string]database.Connection, error)

// StaticConnections returns a source serving conns.
func StaticConnections(conns map[string]database.Connection) ConnectionSource {
	return func(context.Context) (map[string]database.Connection, error) {
		return conns, nil
	}
}

// Invocation is the Context of one test run.
type Invocation struct {
	class  annotation.Class
	method string
	source ConnectionSource
	loader dataset.Loader
	lookup operation.Lookup

	mu       sync.Mutex
	resolved bool
	conns    *ConnectionSet
	connErr  error
	failure  error
}

var _ Context = (*Invocation)(nil)

// InvocationOption configures an Invocation.
type InvocationOption func(*Invocation)

// WithLoader sets the dataset loader. A nil loader keeps the default.
func WithLoader(l dataset.Loader) InvocationOption {
	return func(inv *Invocation) {
		if l != nil {
			inv.loader = l
		}
	}
}

// WithLookup sets the operation lookup. A nil lookup keeps the default.
func WithLookup(l operation.Lookup) InvocationOption {
	return func(inv *Invocation) {
		if l != nil {
			inv.lookup = l
		}
	}
}

// NewInvocation creates the context of one run of method in class.
// Connections are not resolved until first needed.
//
// Defaults: flat file loader on the OS filesystem, operation.DefaultLookup.
func NewInvocation(class annotation.Class, method string, source ConnectionSource, opts ...InvocationOption) *Invocation {
	inv := &Invocation{
		class:  class,
		method: method,
		source: source,
		loader: dataset.NewFlatLoader(nil),
		lookup: operation.DefaultLookup(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Connections implements Context. The outcome of the first call, set or
// error, is remembered.
func (inv *Invocation) Connections(ctx context.Context) (*ConnectionSet, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.resolved {
		return inv.conns, inv.connErr
	}
	inv.resolved = true

	if inv.source == nil {
		inv.connErr = noConnectionError(nil)
		return nil, inv.connErr
	}

	conns, err := inv.source(ctx)
	set := NewConnectionSet(conns)
	// Whatever the source managed to open is closed with the invocation.
	inv.conns = set
	if err != nil {
		inv.connErr = noConnectionError(err)
		return nil, inv.connErr
	}
	if set.Len() == 0 {
		inv.connErr = noConnectionError(nil)
		return nil, inv.connErr
	}
	return set, nil
}

// TestClass implements Context.
func (inv *Invocation) TestClass() annotation.Class {
	return inv.class
}

// TestMethod implements Context.
func (inv *Invocation) TestMethod() string {
	return inv.method
}

// DatasetLoader implements Context.
func (inv *Invocation) DatasetLoader() dataset.Loader {
	return inv.loader
}

// OperationLookup implements Context.
func (inv *Invocation) OperationLookup() operation.Lookup {
	return inv.lookup
}

// SetTestFailure records the failure of the test body. Only the first
// non-nil failure is kept.
func (inv *Invocation) SetTestFailure(err error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.failure == nil {
		inv.failure = err
	}
}

// TestFailure implements Context.
func (inv *Invocation) TestFailure() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.failure
}

// Close closes every connection resolved by this invocation. It is a no-op
// when connections were never resolved, and safe to call repeatedly.
func (inv *Invocation) Close() error {
	inv.mu.Lock()
	set := inv.conns
	inv.mu.Unlock()

	if set == nil {
		return nil
	}
	return set.Close()
}
