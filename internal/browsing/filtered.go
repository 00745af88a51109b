// Provides visitor drivers over filtered rows and records.

package browsing

import (
	"github.com/maruel/facetdb/internal/grid"
)

// RowVisitor receives the rows of a pass in ascending order.
//
// Visit returns true to stop the pass early. End is always called.
type RowVisitor interface {
	Start(g *grid.Grid)
	Visit(g *grid.Grid, rowIndex int, row *grid.Row) bool
	End(g *grid.Grid)
}

// RecordVisitor receives the records of a pass in ascending order.
type RecordVisitor interface {
	Start(g *grid.Grid)
	VisitRecord(g *grid.Grid, rec grid.Record) bool
	End(g *grid.Grid)
}

// FilteredRows drives a RowVisitor.
type FilteredRows interface {
	Accept(g *grid.Grid, v RowVisitor)
}

// FilteredRecords drives a RecordVisitor.
type FilteredRecords interface {
	Accept(g *grid.Grid, v RecordVisitor)
}

// ConjunctiveFilteredRows visits the rows matching every filter. An empty
// set matches every row.
type ConjunctiveFilteredRows struct {
	filters []RowFilter
}

// Add appends f. A nil filter is a no-op and is skipped.
func (c *ConjunctiveFilteredRows) Add(f RowFilter) {
	if f != nil {
		c.filters = append(c.filters, f)
	}
}

// Len returns the number of active filters.
func (c *ConjunctiveFilteredRows) Len() int { return len(c.filters) }

// Accept implements FilteredRows.
func (c *ConjunctiveFilteredRows) Accept(g *grid.Grid, v RowVisitor) {
	v.Start(g)
	defer v.End(g)
	for i, row := range g.Rows() {
		if c.matches(g, i, row) && v.Visit(g, i, row) {
			return
		}
	}
}

func (c *ConjunctiveFilteredRows) matches(g *grid.Grid, rowIndex int, row *grid.Row) bool {
	for _, f := range c.filters {
		if !f.FilterRow(g, rowIndex, row) {
			return false
		}
	}
	return true
}

// ConjunctiveFilteredRecords visits the records matching every filter.
type ConjunctiveFilteredRecords struct {
	filters []RecordFilter
}

// Add appends f. A nil filter is a no-op and is skipped.
func (c *ConjunctiveFilteredRecords) Add(f RecordFilter) {
	if f != nil {
		c.filters = append(c.filters, f)
	}
}

// Len returns the number of active filters.
func (c *ConjunctiveFilteredRecords) Len() int { return len(c.filters) }

// Accept implements FilteredRecords.
func (c *ConjunctiveFilteredRecords) Accept(g *grid.Grid, v RecordVisitor) {
	v.Start(g)
	defer v.End(g)
	for _, rec := range g.Records() {
		if c.matches(g, rec) && v.VisitRecord(g, rec) {
			return
		}
	}
}

func (c *ConjunctiveFilteredRecords) matches(g *grid.Grid, rec grid.Record) bool {
	for _, f := range c.filters {
		if !f.FilterRecord(g, rec) {
			return false
		}
	}
	return true
}

// RecordsAsRows exposes every row of the matching records as a row pass.
type RecordsAsRows struct {
	Records FilteredRecords
}

// Accept implements FilteredRows.
func (r *RecordsAsRows) Accept(g *grid.Grid, v RowVisitor) {
	r.Records.Accept(g, &recordRowVisitor{v: v})
}

type recordRowVisitor struct {
	v RowVisitor
}

func (r *recordRowVisitor) Start(g *grid.Grid) { r.v.Start(g) }

func (r *recordRowVisitor) End(g *grid.Grid) { r.v.End(g) }

func (r *recordRowVisitor) VisitRecord(g *grid.Grid, rec grid.Record) bool {
	rows := g.Rows()
	for i := rec.FromRowIndex; i < rec.ToRowIndex; i++ {
		if r.v.Visit(g, i, rows[i]) {
			return true
		}
	}
	return false
}

// RowVisitorFunc visits rows with a function; Start and End do nothing.
type RowVisitorFunc func(g *grid.Grid, rowIndex int, row *grid.Row) bool

// Start implements RowVisitor.
func (RowVisitorFunc) Start(*grid.Grid) {}

// End implements RowVisitor.
func (RowVisitorFunc) End(*grid.Grid) {}

// Visit implements RowVisitor.
func (f RowVisitorFunc) Visit(g *grid.Grid, rowIndex int, row *grid.Row) bool {
	return f(g, rowIndex, row)
}

// CountRows returns how many rows f visits.
func CountRows(g *grid.Grid, f FilteredRows) int {
	n := 0
	f.Accept(g, RowVisitorFunc(func(*grid.Grid, int, *grid.Row) bool {
		n++
		return false
	}))
	return n
}

// RowIndices returns the indices of the rows f visits.
func RowIndices(g *grid.Grid, f FilteredRows) []int {
	var out []int
	f.Accept(g, RowVisitorFunc(func(_ *grid.Grid, i int, _ *grid.Row) bool {
		out = append(out, i)
		return false
	}))
	return out
}
