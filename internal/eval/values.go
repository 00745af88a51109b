// Classifies expression results.

package eval

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/maruel/facetdb/internal/grid"
)

// IsError reports whether v is an error marker.
func IsError(v any) bool {
	_, ok := v.(*grid.EvalError)
	return ok
}

// IsNonBlankData reports whether v is present, not an error and not "".
func IsNonBlankData(v any) bool {
	return v != nil && !IsError(v) && !grid.IsBlank(v)
}

// AsSlice returns the elements of a multi-valued result, or false when v is a
// scalar.
func AsSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = f
		}
		return out, true
	}
	return nil, false
}

// AsNumber returns v as float64 when it is numeric.
func AsNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	}
	return 0, false
}

// IsFiniteNumber reports whether f is neither NaN nor infinite.
func IsFiniteNumber(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ToString renders a value the way facets and text filters see it.
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(time.RFC3339)
	case *grid.EvalError:
		return t.Message
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = ToString(e)
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}
