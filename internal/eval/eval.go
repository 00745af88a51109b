// Package eval defines the expression capability consumed by facets, filters
// and operations.
//
// The expression language itself lives outside this module; the core only
// needs something that turns bindings into a value. [Parse] understands the
// handful of accessors the core itself emits (value, cell.recon.judgment,
// row.flagged, ...) plus a few string and number helpers.
package eval

import (
	"fmt"
	"log/slog"

	"github.com/maruel/facetdb/internal/grid"
)

// Bindings carries the variables visible to an expression.
type Bindings map[string]any

// Evaluable is a compiled expression.
type Evaluable interface {
	Evaluate(b Bindings) any
}

// EvaluableFunc adapts a function to Evaluable.
type EvaluableFunc func(b Bindings) any

// Evaluate implements Evaluable.
func (f EvaluableFunc) Evaluate(b Bindings) any { return f(b) }

// RowEvaluable evaluates something per row.
type RowEvaluable interface {
	Eval(g *grid.Grid, rowIndex int, row *grid.Row, b Bindings) any
}

// CreateBindings returns fresh bindings for g.
func CreateBindings(g *grid.Grid) Bindings {
	return Bindings{"grid": g}
}

// Bind sets the per-row variables.
func Bind(b Bindings, row *grid.Row, rowIndex int, columnName string, cell *grid.Cell) {
	b["row"] = row
	b["rowIndex"] = rowIndex
	b["columnName"] = columnName
	b["cell"] = cell
	if cell != nil {
		b["value"] = cell.Value
	} else {
		b["value"] = nil
	}
}

// ExpressionBasedRowEvaluable binds the cell of one column and evaluates an
// expression against it.
type ExpressionBasedRowEvaluable struct {
	ColumnName string
	CellIndex  int
	Expr       Evaluable
}

// Eval implements RowEvaluable. A panicking expression yields an error marker.
func (e *ExpressionBasedRowEvaluable) Eval(g *grid.Grid, rowIndex int, row *grid.Row, b Bindings) (v any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("Expression panicked", "column", e.ColumnName, "row", rowIndex, "err", r)
			v = grid.NewEvalError("%v", r)
		}
	}()
	Bind(b, row, rowIndex, e.ColumnName, row.Cell(e.CellIndex))
	return e.Expr.Evaluate(b)
}

// NewRowEvaluable resolves columnName against g and binds expr to it.
//
// An empty columnName binds no cell (value is nil).
func NewRowEvaluable(g *grid.Grid, columnName string, expr Evaluable) (*ExpressionBasedRowEvaluable, error) {
	cellIndex := -1
	if columnName != "" {
		idx, err := g.CellIndexOf(columnName)
		if err != nil {
			return nil, err
		}
		cellIndex = idx
	}
	if expr == nil {
		return nil, fmt.Errorf("nil expression")
	}
	return &ExpressionBasedRowEvaluable{ColumnName: columnName, CellIndex: cellIndex, Expr: expr}, nil
}
