// internal/rules/equality.go
package rules

import (
	"fmt"
	"reflect"
	"strconv"
)

/*
 * Value equality for property triggers and conditions.
 *
 * Two comparison modes:
 *   - Native: numeric values compare by value across int/float kinds, other
 *     comparable values use ==, anything else falls back to DeepEqual
 *   - Rendered: both sides are rendered to text and compared as strings
 *
 * Numeric mixing matters because configuration files decode numbers as int
 * while module properties usually report int64 or float64.
 *
 * Rendering is lenient: every type renders, nil renders as "".
 */

// ValuesEqual compares a and b natively.
func ValuesEqual(a, b any) bool {
	if na, nb, ok := asNumbers(a, b); ok {
		return na == nb
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// RenderedEqual compares the text renderings of a and b.
func RenderedEqual(a, b any) bool {
	return Render(a) == Render(b)
}

// Render converts a value to its text form.
func Render(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// asNumbers attempts to convert both values to float64 for numeric comparison.
func asNumbers(a, b any) (float64, float64, bool) {
	na, oka := toFloat64(a)
	nb, okb := toFloat64(b)
	return na, nb, oka && okb
}

// toFloat64 converts value to float64 if it's a numeric type.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
