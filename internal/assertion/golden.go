package assertion

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/dsunit/internal/dataset"
)

// AssertGolden compares a dataset, rendered as flat YAML, against the golden
// file testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./... -update
func AssertGolden(t *testing.T, name string, ds *dataset.Dataset) {
	t.Helper()

	var buf bytes.Buffer
	if err := dataset.WriteYAML(&buf, ds); err != nil {
		t.Fatalf("render dataset: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, buf.Bytes())
}
