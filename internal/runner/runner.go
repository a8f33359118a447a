package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/dsunit/internal/annotation"
	"github.com/roach88/dsunit/internal/assertion"
	"github.com/roach88/dsunit/internal/database"
	"github.com/roach88/dsunit/internal/dataset"
	"github.com/roach88/dsunit/internal/operation"
)

// Discoverer returns the declarations visible to one test, suite level
// first.
type Discoverer interface {
	Discover(class annotation.Class, method string) (annotation.Declarations, error)
}

// Assertor compares an expected dataset with the actual database content.
// A mismatch is reported as an *assertion.AssertionError.
type Assertor interface {
	Assert(expected, actual *dataset.Dataset, opts assertion.Options) error
}

// Runner applies the declarations of a test around its body.
type Runner struct {
	discoverer Discoverer
	assertor   Assertor
	logger     *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithDiscoverer sets where declarations come from.
//
// Default: annotation.NewFileDiscoverer on the OS filesystem.
func WithDiscoverer(d Discoverer) Option {
	return func(r *Runner) {
		r.discoverer = d
	}
}

// WithAssertor sets the dataset comparison.
//
// Default: assertion.Default{}.
func WithAssertor(a Assertor) Option {
	return func(r *Runner) {
		r.assertor = a
	}
}

// WithLogger sets the logger. Output is discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		discoverer: annotation.NewFileDiscoverer(nil),
		assertor:   assertion.Default{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BeforeTest applies every setup group, suite level first. The first error
// aborts setup.
func (r *Runner) BeforeTest(ctx context.Context, tc Context) error {
	decls, err := r.discoverer.Discover(tc.TestClass(), tc.TestMethod())
	if err != nil {
		return fmt.Errorf("discover declarations: %w", err)
	}

	for _, group := range decls.Setups {
		if err := r.applyGroup(ctx, tc, "setup", group); err != nil {
			return err
		}
	}
	return nil
}

// AfterTest verifies expectations, applies teardown groups and closes the
// connections of tc, in that order.
//
// Expectations are skipped when tc records a test failure. A teardown error
// is only returned when neither the body nor verification failed; otherwise
// it is logged. Connections are closed on every path, and close errors are
// returned only when nothing failed before.
func (r *Runner) AfterTest(ctx context.Context, tc Context) error {
	err := r.verifyAndTeardown(ctx, tc)

	if closeErr := tc.Close(); closeErr != nil {
		if err != nil {
			r.logger.Warn("failed to close connections after earlier failure",
				"phase", "close",
				"error", closeErr,
			)
			return err
		}
		return closeErr
	}
	return err
}

func (r *Runner) verifyAndTeardown(ctx context.Context, tc Context) error {
	decls, err := r.discoverer.Discover(tc.TestClass(), tc.TestMethod())
	if err != nil {
		return fmt.Errorf("discover declarations: %w", err)
	}

	failure := tc.TestFailure()
	var verifyErr error
	if failure != nil {
		r.logger.Debug("skipping expectations due to test failure",
			"phase", "verify",
			"test", tc.TestMethod(),
			"error", failure,
		)
	} else {
		verifyErr = r.verify(ctx, tc, decls.Expectations)
	}

	var teardownErr error
	for _, group := range decls.Teardowns {
		if teardownErr = r.applyGroup(ctx, tc, "teardown", group); teardownErr != nil {
			break
		}
	}

	if teardownErr != nil && (failure != nil || verifyErr != nil) {
		r.logger.Warn("unable to report teardown error due to existing test failure",
			"phase", "teardown",
			"test", tc.TestMethod(),
			"error", teardownErr,
		)
		teardownErr = nil
	}

	if verifyErr != nil {
		return verifyErr
	}
	return teardownErr
}

// Evaluate runs body between BeforeTest and AfterTest for hosts that are not
// a *testing.T. The body error is preferred over errors from AfterTest. A
// panicking body is recorded as the test failure, cleaned up after and
// re-panicked.
func (r *Runner) Evaluate(ctx context.Context, inv *Invocation, body func(context.Context) error) error {
	if err := r.BeforeTest(ctx, inv); err != nil {
		if closeErr := inv.Close(); closeErr != nil {
			r.logger.Warn("failed to close connections after setup failure",
				"phase", "close",
				"error", closeErr,
			)
		}
		return err
	}

	completed := false
	defer func() {
		if completed {
			return
		}
		p := recover()
		if p == nil {
			// runtime.Goexit, e.g. t.FailNow inside the body.
			inv.SetTestFailure(errors.New("test exited before returning"))
		} else {
			inv.SetTestFailure(fmt.Errorf("test panicked: %v", p))
		}
		if err := r.AfterTest(ctx, inv); err != nil {
			r.logger.Warn("after-test failed for aborted test", "error", err)
		}
		if p != nil {
			panic(p)
		}
	}()

	bodyErr := body(ctx)
	completed = true

	inv.SetTestFailure(bodyErr)
	afterErr := r.AfterTest(ctx, inv)
	if bodyErr != nil {
		if afterErr != nil {
			r.logger.Warn("after-test failed for failing test", "error", afterErr)
		}
		return bodyErr
	}
	return afterErr
}

// applyGroup runs one setup or teardown group.
//
// A clean-insert that directly follows an executed clean-insert of the same
// group runs as insert, so consecutive datasets accumulate instead of each
// wiping the previous one. Applications naming a connection make it the
// current connection for the rest of the group.
func (r *Runner) applyGroup(ctx context.Context, tc Context, phase string, group annotation.Declaration) error {
	set, err := tc.Connections(ctx)
	if err != nil {
		return err
	}

	currentName, current, _ := set.First()
	var last operation.Kind

	for _, app := range group {
		kind := app.Type
		if kind == "" {
			kind = operation.CleanInsert
		}

		if app.Connection != "" {
			c, ok := set.Get(app.Connection)
			if !ok {
				return unknownConnectionError(app.Connection, set.Names())
			}
			currentName, current = app.Connection, c
		}

		for _, location := range app.Locations {
			effective := kind
			if kind == operation.CleanInsert && last == operation.CleanInsert {
				effective = operation.Insert
			}

			op, err := r.resolveOperation(tc.OperationLookup(), effective)
			if err != nil {
				return err
			}

			ds, err := r.load(tc, location)
			if err != nil {
				return err
			}
			if ds == nil {
				r.logger.Debug("skipping application with empty location",
					"phase", phase,
					"operation", string(kind),
					"connection", currentName,
				)
				continue
			}

			r.logger.Debug("applying dataset",
				"phase", phase,
				"operation", op.String(),
				"location", location,
				"connection", currentName,
			)
			if err := current.Execute(ctx, op, ds); err != nil {
				return fmt.Errorf("%s %s on connection %s: %w", phase, location, currentName, err)
			}
			last = kind
		}
	}
	return nil
}

// verify checks every expectation with a location, stopping at the first
// mismatch.
func (r *Runner) verify(ctx context.Context, tc Context, expectations []annotation.Expectation) error {
	for _, exp := range expectations {
		if exp.Location == "" {
			continue
		}

		name, conn, err := r.expectationConnection(ctx, tc, exp)
		if err != nil {
			return err
		}

		actual, err := conn.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("verify %s on connection %s: %w", exp.Location, name, err)
		}

		expected, err := r.load(tc, exp.Location)
		if err != nil {
			return err
		}

		r.logger.Debug("verifying expectation",
			"phase", "verify",
			"location", exp.Location,
			"connection", name,
			"mode", string(exp.Mode),
		)
		if err := r.assertor.Assert(expected, actual, assertion.Options{
			Mode:          exp.Mode,
			IgnoreColumns: exp.IgnoreColumns,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) expectationConnection(ctx context.Context, tc Context, exp annotation.Expectation) (string, database.Connection, error) {
	set, err := tc.Connections(ctx)
	if err != nil {
		return "", nil, err
	}
	if exp.Connection == "" {
		name, conn, _ := set.First()
		return name, conn, nil
	}
	conn, ok := set.Get(exp.Connection)
	if !ok {
		return "", nil, unknownConnectionError(exp.Connection, set.Names())
	}
	return exp.Connection, conn, nil
}

// load returns nil, nil for an empty location. A loader that returns no
// dataset for a non-empty location is treated as a load failure.
func (r *Runner) load(tc Context, location string) (*dataset.Dataset, error) {
	if location == "" {
		return nil, nil
	}
	ds, err := tc.DatasetLoader().Load(tc.TestClass().Dir, location)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, &dataset.LoadError{Location: location, Err: errors.New("loader returned no dataset")}
	}
	return ds, nil
}
