// Provides the cell editing and column creation operations.

package operations

import (
	"fmt"
	"math"

	"github.com/maruel/facetdb/internal/eval"
	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/facetdb/internal/history"
	"github.com/maruel/facetdb/internal/history/changes"
)

// SingleCellEdit replaces the value of one cell. It ignores the engine.
type SingleCellEdit struct {
	Base
	Row        int    `json:"row"`
	ColumnName string `json:"columnName"`
	Value      any    `json:"value"`
}

// Kind implements Operation.
func (o *SingleCellEdit) Kind() string { return KindSingleCellEdit }

func (o *SingleCellEdit) brief() string {
	return fmt.Sprintf("Edit single cell on row %d, column %s", o.Row+1, o.ColumnName)
}

func (o *SingleCellEdit) build(g *grid.Grid, e *history.Entry, _ *Env) (history.Change, error) {
	if err := g.CheckRow(o.Row); err != nil {
		return nil, err
	}
	col, err := g.Columns().Resolve(o.ColumnName)
	if err != nil {
		return nil, err
	}
	v, _ := resultValue(o.Value, OnErrorStoreError)
	// JSON numbers decode as float64.
	if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		v = int64(f)
	}
	old := g.Row(o.Row).Cell(col.CellIndex)
	var now *grid.Cell
	if v != nil {
		now = grid.NewCell(v)
	}
	e.Description = o.brief()
	return &changes.CellChange{Row: o.Row, CellIndex: col.CellIndex, Old: old, New: now}, nil
}

// TextTransform rewrites the cells of one column with an expression.
type TextTransform struct {
	Base
	ColumnName string `json:"columnName"`
	Expression string `json:"expression"`
	OnError    string `json:"onError,omitempty" jsonschema:"enum=keep-original,enum=set-to-blank,enum=store-error"`
}

// Kind implements Operation.
func (o *TextTransform) Kind() string { return KindTextTransform }

func (o *TextTransform) brief() string {
	return fmt.Sprintf("Text transform on cells in column %s using expression %s", o.ColumnName, o.Expression)
}

func (o *TextTransform) build(g *grid.Grid, e *history.Entry, env *Env) (history.Change, error) {
	if err := validOnError(o.OnError); err != nil {
		return nil, err
	}
	col, err := g.Columns().Resolve(o.ColumnName)
	if err != nil {
		return nil, err
	}
	re, err := compileExpression(g, o.ColumnName, o.Expression)
	if err != nil {
		return nil, err
	}
	rows, err := o.filteredRows(g, env)
	if err != nil {
		return nil, err
	}
	m := &changes.MassCellChange{
		ColumnName:                   o.ColumnName,
		UpdateRowContextDependencies: col.CellIndex == g.Columns().KeyCellIndex(),
	}
	b := eval.CreateBindings(g)
	for _, i := range rows {
		row := g.Row(i)
		old := row.Cell(col.CellIndex)
		v, ok := resultValue(re.Eval(g, i, row, b), o.OnError)
		if !ok {
			continue
		}
		var now *grid.Cell
		if v != nil || (old != nil && old.Recon != nil) {
			now = grid.NewCell(v)
			if old != nil {
				now.Recon = old.Recon
			}
		}
		if grid.CellsEqual(old, now) {
			continue
		}
		m.Changes = append(m.Changes, &changes.CellChange{Row: i, CellIndex: col.CellIndex, Old: old, New: now})
	}
	e.Description = fmt.Sprintf("Text transform on %d cells in column %s: %s", len(m.Changes), o.ColumnName, o.Expression)
	return m, nil
}

// ColumnAddition creates a column from an expression evaluated on another.
type ColumnAddition struct {
	Base
	BaseColumnName    string `json:"baseColumnName"`
	Expression        string `json:"expression"`
	NewColumnName     string `json:"newColumnName"`
	ColumnInsertIndex int    `json:"columnInsertIndex"`
	OnError           string `json:"onError,omitempty" jsonschema:"enum=keep-original,enum=set-to-blank,enum=store-error"`
}

// Kind implements Operation.
func (o *ColumnAddition) Kind() string { return KindColumnAddition }

func (o *ColumnAddition) brief() string {
	return fmt.Sprintf("Create column %s at index %d based on column %s using expression %s", o.NewColumnName, o.ColumnInsertIndex, o.BaseColumnName, o.Expression)
}

func (o *ColumnAddition) build(g *grid.Grid, e *history.Entry, env *Env) (history.Change, error) {
	if err := validOnError(o.OnError); err != nil {
		return nil, err
	}
	if o.NewColumnName == "" {
		return nil, fmt.Errorf("column addition: new column name is required")
	}
	if g.Columns().ByName(o.NewColumnName) != nil {
		return nil, fmt.Errorf("%w: %q", grid.ErrDuplicateColumn, o.NewColumnName)
	}
	re, err := compileExpression(g, o.BaseColumnName, o.Expression)
	if err != nil {
		return nil, err
	}
	rows, err := o.filteredRows(g, env)
	if err != nil {
		return nil, err
	}
	b := eval.CreateBindings(g)
	var cells []changes.CellAtRow
	for _, i := range rows {
		v, ok := resultValue(re.Eval(g, i, g.Row(i), b), o.OnError)
		if !ok || v == nil {
			continue
		}
		cells = append(cells, changes.CellAtRow{Row: i, Cell: grid.NewCell(v)})
	}
	e.Description = fmt.Sprintf("Create new column %s based on column %s by filling %d rows with %s", o.NewColumnName, o.BaseColumnName, len(cells), o.Expression)
	return changes.NewColumnAdditionChange(o.NewColumnName, o.ColumnInsertIndex, cells), nil
}
