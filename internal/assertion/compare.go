package assertion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/dsunit/internal/dataset"
)

// Default compares datasets according to Options.Mode.
type Default struct{}

// Assert returns an *AssertionError describing the first difference between
// expected and actual, or nil when they match.
func (Default) Assert(expected, actual *dataset.Dataset, opts Options) error {
	return Compare(expected, actual, opts)
}

// Compare is the function form of Default.Assert.
func Compare(expected, actual *dataset.Dataset, opts Options) error {
	mode := opts.Mode
	if mode == "" {
		mode = Strict
	}
	if expected == nil {
		expected = dataset.New()
	}
	if actual == nil {
		actual = dataset.New()
	}

	ignore := newIgnoreSet(opts.IgnoreColumns)

	if mode == Strict {
		if err := compareTableSets(expected, actual); err != nil {
			return err
		}
	}

	for _, et := range expected.Tables {
		at := actual.Table(et.Name)
		if at == nil {
			return &AssertionError{
				Type:     TypeTables,
				Expected: fmt.Sprintf("table %s", et.Name),
				Actual:   fmt.Sprintf("no such table (have %s)", formatNames(actual.TableNames())),
			}
		}
		if err := compareTable(et, at, mode, ignore); err != nil {
			return err
		}
	}
	return nil
}

func compareTableSets(expected, actual *dataset.Dataset) error {
	exp := lowerSorted(expected.TableNames())
	act := lowerSorted(actual.TableNames())
	if strings.Join(exp, ",") != strings.Join(act, ",") {
		return &AssertionError{
			Type:     TypeTables,
			Expected: formatNames(exp),
			Actual:   formatNames(act),
		}
	}
	return nil
}

// compareTable compares one table. Columns are matched by name, so column
// order never matters.
func compareTable(et, at *dataset.Table, mode Mode, ignore ignoreSet) error {
	cols := ignore.filter(et.Name, et.Columns)

	if mode == Strict {
		exp := lowerSorted(cols)
		act := lowerSorted(ignore.filter(at.Name, at.Columns))
		if strings.Join(exp, ",") != strings.Join(act, ",") {
			return &AssertionError{
				Type:     TypeColumns,
				Table:    et.Name,
				Expected: formatNames(exp),
				Actual:   formatNames(act),
			}
		}
	} else {
		for _, c := range cols {
			if at.ColumnIndex(c) < 0 {
				return &AssertionError{
					Type:     TypeColumns,
					Table:    et.Name,
					Expected: fmt.Sprintf("column %s", c),
					Actual:   fmt.Sprintf("no such column (have %s)", formatNames(at.Columns)),
				}
			}
		}
	}

	if len(et.Rows) != len(at.Rows) {
		return &AssertionError{
			Type:     TypeRowCount,
			Table:    et.Name,
			Expected: fmt.Sprintf("%d rows", len(et.Rows)),
			Actual:   fmt.Sprintf("%d rows", len(at.Rows)),
		}
	}

	if mode == NonStrictUnordered {
		return compareUnordered(et, at, cols)
	}

	for i := range et.Rows {
		for _, c := range cols {
			ev, _ := et.Value(i, c)
			av, _ := at.Value(i, c)
			if !ValuesEqual(ev, av) {
				return &AssertionError{
					Type:     TypeValue,
					Table:    et.Name,
					Column:   c,
					Row:      i,
					Expected: describe(ev),
					Actual:   describe(av),
				}
			}
		}
	}
	return nil
}

// compareUnordered matches every expected row with a distinct actual row.
// Matching is greedy; datasets used in tests are small.
func compareUnordered(et, at *dataset.Table, cols []string) error {
	used := make([]bool, len(at.Rows))

	for i := range et.Rows {
		found := false
		for j := range at.Rows {
			if used[j] || !rowsEqual(et, i, at, j, cols) {
				continue
			}
			used[j] = true
			found = true
			break
		}
		if !found {
			return &AssertionError{
				Type:     TypeRow,
				Table:    et.Name,
				Expected: describeRow(et, i, cols),
				Actual:   "no matching row",
			}
		}
	}
	return nil
}

func rowsEqual(et *dataset.Table, i int, at *dataset.Table, j int, cols []string) bool {
	for _, c := range cols {
		ev, _ := et.Value(i, c)
		av, _ := at.Value(j, c)
		if !ValuesEqual(ev, av) {
			return false
		}
	}
	return true
}

type ignoreSet struct {
	global   map[string]bool
	perTable map[string]map[string]bool
}

func newIgnoreSet(entries []string) ignoreSet {
	s := ignoreSet{global: map[string]bool{}, perTable: map[string]map[string]bool{}}
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if table, col, ok := strings.Cut(e, "."); ok {
			if s.perTable[table] == nil {
				s.perTable[table] = map[string]bool{}
			}
			s.perTable[table][col] = true
			continue
		}
		s.global[e] = true
	}
	return s
}

func (s ignoreSet) filter(table string, cols []string) []string {
	perTable := s.perTable[strings.ToLower(table)]
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		lc := strings.ToLower(c)
		if s.global[lc] || perTable[lc] {
			continue
		}
		out = append(out, c)
	}
	return out
}

func lowerSorted(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToLower(n)
	}
	sort.Strings(out)
	return out
}

func formatNames(names []string) string {
	return "[" + strings.Join(names, ", ") + "]"
}

func describe(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%q (%T)", dataset.FormatValue(v), v)
}

func describeRow(t *dataset.Table, i int, cols []string) string {
	parts := make([]string, len(cols))
	for k, c := range cols {
		v, _ := t.Value(i, c)
		if v == nil {
			parts[k] = c + "=NULL"
			continue
		}
		parts[k] = c + "=" + dataset.FormatValue(v)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
