package model

import (
	"cmp"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// AvgValue is the partial state and result of an average aggregation. Keeping
// count and sum lets parents recombine children without re-averaging means.
type AvgValue struct {
	Count int64
	Sum   float64
}

// Value returns the mean, or 0 when Count is zero.
func (a AvgValue) Value() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.Sum / float64(a.Count)
}

// Add merges b into a.
func (a AvgValue) Add(b AvgValue) AvgValue {
	return AvgValue{Count: a.Count + b.Count, Sum: a.Sum + b.Sum}
}

func (a AvgValue) String() string {
	return strconv.FormatFloat(a.Value(), 'f', -1, 64)
}

// AsFloat converts numeric values (and numeric strings) to float64.
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case AvgValue:
		return x.Value(), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func isNumeric(v any) bool {
	switch v.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, AvgValue:
		return true
	}
	return false
}

// IsBlank reports whether v is nil or an empty/whitespace string.
func IsBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// Compare orders two column values. nil sorts first, then numbers, times,
// bools and strings; values of unrelated types compare by their formatted form.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if isNumeric(a) && isNumeric(b) {
		fa, _ := AsFloat(a)
		fb, _ := AsFloat(b)
		return cmp.Compare(fa, fb)
	}
	switch x := a.(type) {
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// Equal reports whether two column values are equal under Compare, treating
// nested structures by deep equality.
func Equal(a, b any) bool {
	switch a.(type) {
	case []any, map[string]any, Record:
		return reflect.DeepEqual(a, b)
	}
	return Compare(a, b) == 0
}

// RecordRef returns the identity of a record's underlying map, used to match
// records by reference when no id function is configured.
func RecordRef(r Record) uintptr {
	if r == nil {
		return 0
	}
	return reflect.ValueOf(r).Pointer()
}

// ChangedColumns returns the columns whose values differ between old and next.
func ChangedColumns(old, next Record) []string {
	var cols []string
	for k, v := range next {
		if ov, ok := old[k]; !ok || !Equal(ov, v) {
			cols = append(cols, k)
		}
	}
	for k := range old {
		if _, ok := next[k]; !ok {
			cols = append(cols, k)
		}
	}
	return cols
}
