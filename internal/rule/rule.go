package rule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/roach88/dsunit/internal/annotation"
	"github.com/roach88/dsunit/internal/database"
	"github.com/roach88/dsunit/internal/dataset"
	"github.com/roach88/dsunit/internal/operation"
	"github.com/roach88/dsunit/internal/resolve"
	"github.com/roach88/dsunit/internal/runner"
)

// DefaultDir is where declaration files and datasets are looked up unless
// SetDir is used.
const DefaultDir = "testdata"

// TB is the subset of testing.TB used by a Rule.
type TB interface {
	Helper()
	Name() string
	Cleanup(func())
	Failed() bool
	Skipped() bool
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

// Rule applies dataset declarations around Go tests.
//
// A Rule is usually created once per suite and shared by its tests:
//
//	var db = rule.New()
//
//	func TestOrders(t *testing.T) {
//		s := &OrderSuite{db: openDB(t)}
//		db.Run(t, s, func() {
//			// exercise code against s.db
//		})
//	}
type Rule struct {
	mu          sync.Mutex
	connections map[string]database.Connection
	dataSources map[string]*sql.DB
	loader      dataset.Loader
	lookup      operation.Lookup
	discoverer  runner.Discoverer
	assertor    runner.Assertor
	logger      *slog.Logger
	dir         string

	fields *resolve.FieldCache
}

// New creates a Rule reading declaration files from DefaultDir.
func New() *Rule {
	return &Rule{
		connections: make(map[string]database.Connection),
		dataSources: make(map[string]*sql.DB),
		discoverer:  annotation.NewFileDiscoverer(nil),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		dir:         DefaultDir,
		fields:      resolve.NewFieldCache(),
	}
}

// SetDataSources adds named pools. Each test acquires its own connection
// from them.
func (r *Rule) SetDataSources(dbs map[string]*sql.DB) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, db := range dbs {
		r.dataSources[name] = db
	}
}

// SetConnections adds named connections. They are closed after every test,
// so only connections that tolerate repeated Close calls should be shared
// between tests.
func (r *Rule) SetConnections(conns map[string]database.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, c := range conns {
		r.connections[name] = c
	}
}

// SetLoader sets the dataset loader, overriding loader fields on the test
// instance.
func (r *Rule) SetLoader(l dataset.Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loader = l
}

// SetLookup sets the operation lookup, overriding lookup fields on the test
// instance.
func (r *Rule) SetLookup(l operation.Lookup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookup = l
}

// SetDiscoverer replaces the declaration file discoverer.
func (r *Rule) SetDiscoverer(d runner.Discoverer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discoverer = d
}

// SetAssertor replaces the dataset comparison.
func (r *Rule) SetAssertor(a runner.Assertor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assertor = a
}

// SetLogger sets the logger passed to the runner.
func (r *Rule) SetLogger(l *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l != nil {
		r.logger = l
	}
}

// SetDir sets the directory holding declaration files and datasets.
func (r *Rule) SetDir(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dir = dir
}

// Run applies the setup declarations for t, runs body and registers the
// verification, teardown and close steps with t.Cleanup. Expectations are
// only verified when body returns normally and t has neither failed nor
// been skipped; teardown runs regardless.
//
// instance is the suite value whose fields provide connections, a loader
// and a lookup; it may be nil when everything is configured on the Rule.
// The declaration file is <dir>/<suite>.dsunit.yaml, where suite is the type
// name of instance, or the top-level test name when instance is nil.
// Per-test blocks are keyed by t.Name().
func (r *Rule) Run(t TB, instance any, body func()) {
	t.Helper()

	inv, run, err := r.prepare(t, instance)
	if err != nil {
		t.Fatalf("dsunit: %v", err)
		return
	}

	ctx := context.Background()
	if err := run.BeforeTest(ctx, inv); err != nil {
		if closeErr := inv.Close(); closeErr != nil {
			t.Errorf("dsunit: %v", closeErr)
		}
		t.Fatalf("dsunit setup: %v", err)
		return
	}

	t.Cleanup(func() {
		switch {
		case t.Failed():
			inv.SetTestFailure(errors.New("test failed"))
		case t.Skipped():
			inv.SetTestFailure(errors.New("test skipped"))
		}
		if err := run.AfterTest(ctx, inv); err != nil {
			t.Errorf("dsunit: %v", err)
		}
	})

	completed := false
	defer func() {
		if completed {
			return
		}
		p := recover()
		if p == nil {
			// SkipNow, FailNow or runtime.Goexit stopped the body.
			inv.SetTestFailure(errors.New("test exited before returning"))
			return
		}
		inv.SetTestFailure(fmt.Errorf("test panicked: %v", p))
		panic(p)
	}()
	body()
	completed = true
}

func (r *Rule) prepare(t TB, instance any) (*runner.Invocation, *runner.Runner, error) {
	fields, err := r.fields.Scan(instance)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cfg := resolve.Config{
		Connections: copyMap(r.connections),
		DataSources: copyMap(r.dataSources),
	}

	loader := r.loader
	if loader == nil {
		loader = fields.Loader
	}
	lookup := r.lookup
	if lookup == nil {
		lookup = fields.Lookup
	}

	opts := []runner.Option{runner.WithLogger(r.logger)}
	if r.discoverer != nil {
		opts = append(opts, runner.WithDiscoverer(r.discoverer))
	}
	if r.assertor != nil {
		opts = append(opts, runner.WithAssertor(r.assertor))
	}

	class := annotation.Class{Name: suiteName(t, instance), Dir: r.dir}
	inv := runner.NewInvocation(class, t.Name(), resolve.Source(cfg, fields),
		runner.WithLoader(loader),
		runner.WithLookup(lookup),
	)
	return inv, runner.New(opts...), nil
}

func suiteName(t TB, instance any) string {
	if instance != nil {
		typ := reflect.TypeOf(instance)
		for typ.Kind() == reflect.Pointer {
			typ = typ.Elem()
		}
		if typ.Name() != "" {
			return typ.Name()
		}
	}
	name, _, _ := strings.Cut(t.Name(), "/")
	return name
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
