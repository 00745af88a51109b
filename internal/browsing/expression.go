// Provides filters that evaluate an expression per row and test the result.

package browsing

import (
	"github.com/maruel/facetdb/internal/eval"
	"github.com/maruel/facetdb/internal/grid"
)

// ExpressionNumberComparisonRowFilter classifies the expression result into
// numeric, non-numeric, blank or error and applies Check to numbers.
//
// Multi-valued results match when any element matches.
type ExpressionNumberComparisonRowFilter struct {
	Evaluable        eval.RowEvaluable
	SelectNumeric    bool
	SelectNonNumeric bool
	SelectBlank      bool
	SelectError      bool
	Check            func(d float64) bool
}

// FilterRow implements RowFilter.
func (f *ExpressionNumberComparisonRowFilter) FilterRow(g *grid.Grid, rowIndex int, row *grid.Row) bool {
	v := f.Evaluable.Eval(g, rowIndex, row, eval.CreateBindings(g))
	if items, ok := eval.AsSlice(v); ok {
		for _, item := range items {
			if f.checkValue(item) {
				return true
			}
		}
		return false
	}
	return f.checkValue(v)
}

func (f *ExpressionNumberComparisonRowFilter) checkValue(v any) bool {
	switch {
	case eval.IsError(v):
		return f.SelectError
	case eval.IsNonBlankData(v):
		d, ok := eval.AsNumber(v)
		if !ok {
			return f.SelectNonNumeric
		}
		if !eval.IsFiniteNumber(d) {
			return f.SelectError
		}
		return f.SelectNumeric && f.Check(d)
	default:
		return f.SelectBlank
	}
}

// ExpressionStringComparisonRowFilter applies Check to the string form of the
// expression result. Absent and error results never match, then Invert flips
// the outcome.
type ExpressionStringComparisonRowFilter struct {
	Evaluable eval.RowEvaluable
	Invert    bool
	Check     func(s string) bool
}

// FilterRow implements RowFilter.
func (f *ExpressionStringComparisonRowFilter) FilterRow(g *grid.Grid, rowIndex int, row *grid.Row) bool {
	return f.Invert != f.matches(g, rowIndex, row)
}

func (f *ExpressionStringComparisonRowFilter) matches(g *grid.Grid, rowIndex int, row *grid.Row) bool {
	v := f.Evaluable.Eval(g, rowIndex, row, eval.CreateBindings(g))
	if items, ok := eval.AsSlice(v); ok {
		for _, item := range items {
			if item != nil && !eval.IsError(item) && f.Check(eval.ToString(item)) {
				return true
			}
		}
		return false
	}
	return v != nil && !eval.IsError(v) && f.Check(eval.ToString(v))
}

// ExpressionEqualRowFilter matches rows whose expression result, in string
// form, is one of Matches, or which fall in an enabled blank/error bucket.
type ExpressionEqualRowFilter struct {
	Evaluable   eval.RowEvaluable
	Matches     map[string]struct{}
	SelectBlank bool
	SelectError bool
	Invert      bool
}

// FilterRow implements RowFilter.
func (f *ExpressionEqualRowFilter) FilterRow(g *grid.Grid, rowIndex int, row *grid.Row) bool {
	return f.Invert != f.matches(g, rowIndex, row)
}

func (f *ExpressionEqualRowFilter) matches(g *grid.Grid, rowIndex int, row *grid.Row) bool {
	v := f.Evaluable.Eval(g, rowIndex, row, eval.CreateBindings(g))
	if items, ok := eval.AsSlice(v); ok {
		if len(items) == 0 {
			return f.SelectBlank
		}
		for _, item := range items {
			if f.checkValue(item) {
				return true
			}
		}
		return false
	}
	return f.checkValue(v)
}

func (f *ExpressionEqualRowFilter) checkValue(v any) bool {
	switch {
	case eval.IsError(v):
		return f.SelectError
	case !eval.IsNonBlankData(v):
		return f.SelectBlank
	}
	_, ok := f.Matches[eval.ToString(v)]
	return ok
}
