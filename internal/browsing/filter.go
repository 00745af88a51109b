// Package browsing drives visitors over the rows and records of a grid that
// pass a set of filters.
//
// Nothing here takes the grid mutation lock. Callers hold the read lock for
// the duration of a pass.
package browsing

import (
	"github.com/maruel/facetdb/internal/grid"
)

// RowFilter is a pure predicate over one row.
type RowFilter interface {
	FilterRow(g *grid.Grid, rowIndex int, row *grid.Row) bool
}

// RecordFilter is a pure predicate over one record.
type RecordFilter interface {
	FilterRecord(g *grid.Grid, rec grid.Record) bool
}

// RowFilterFunc adapts a function to RowFilter.
type RowFilterFunc func(g *grid.Grid, rowIndex int, row *grid.Row) bool

// FilterRow implements RowFilter.
func (f RowFilterFunc) FilterRow(g *grid.Grid, rowIndex int, row *grid.Row) bool {
	return f(g, rowIndex, row)
}

// RecordFilterFunc adapts a function to RecordFilter.
type RecordFilterFunc func(g *grid.Grid, rec grid.Record) bool

// FilterRecord implements RecordFilter.
func (f RecordFilterFunc) FilterRecord(g *grid.Grid, rec grid.Record) bool {
	return f(g, rec)
}

// MatchNothing is the filter of a facet stuck in an error state.
var MatchNothing matchNothing

type matchNothing struct{}

func (matchNothing) FilterRow(*grid.Grid, int, *grid.Row) bool { return false }

func (matchNothing) FilterRecord(*grid.Grid, grid.Record) bool { return false }

// AnyRowRecordFilter lifts a row filter to records: a record matches when any
// of its rows matches.
type AnyRowRecordFilter struct {
	RowFilter RowFilter
}

// FilterRecord implements RecordFilter.
func (f *AnyRowRecordFilter) FilterRecord(g *grid.Grid, rec grid.Record) bool {
	rows := g.Rows()
	for i := rec.FromRowIndex; i < rec.ToRowIndex && i < len(rows); i++ {
		if f.RowFilter.FilterRow(g, i, rows[i]) {
			return true
		}
	}
	return false
}
