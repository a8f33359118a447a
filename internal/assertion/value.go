package assertion

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/dsunit/internal/dataset"
)

// timeLayouts are tried, in order, when a string is compared with a time.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ValuesEqual compares an expected cell with an actual cell.
// Flat files carry text while drivers return typed values, so values are
// compared by meaning: NULL only equals NULL, numbers compare numerically,
// booleans also match 0/1 and "true"/"false", times compare as instants,
// and everything else compares as NFC-normalized text.
func ValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	e := dataset.Normalize(expected)
	a := dataset.Normalize(actual)

	if isBool(e) || isBool(a) {
		eb, ok1 := toBool(e)
		ab, ok2 := toBool(a)
		return ok1 && ok2 && eb == ab
	}

	if isTime(e) || isTime(a) {
		et, ok1 := toTime(e)
		at, ok2 := toTime(a)
		return ok1 && ok2 && et.Equal(at)
	}

	if isNumber(e) || isNumber(a) {
		if ei, ok := toInt(e); ok {
			if ai, ok := toInt(a); ok {
				return ei == ai
			}
		}
		ef, ok1 := toFloat(e)
		af, ok2 := toFloat(a)
		if ok1 && ok2 {
			return ef == af
		}
		// SQLite stores booleans as 0/1.
		eb, ok1 := toBool(e)
		ab, ok2 := toBool(a)
		if ok1 && ok2 {
			return eb == ab
		}
	}

	return norm.NFC.String(dataset.FormatValue(e)) == norm.NFC.String(dataset.FormatValue(a))
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

func isTime(v any) bool {
	_, ok := v.(time.Time)
	return ok
}

func isNumber(v any) bool {
	switch v.(type) {
	case int64, float64, uint64:
		return true
	}
	return false
}

func toBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case int64:
		return val != 0, val == 0 || val == 1
	case float64:
		return val != 0, val == 0 || val == 1
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "t", "1", "yes":
			return true, true
		case "false", "f", "0", "no":
			return false, true
		}
	}
	return false, false
}

func toTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func toInt(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case uint64:
		return int64(val), val <= 1<<63-1
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}
