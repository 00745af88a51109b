// Defines the grid: rows, column model, mutation lock and record grouping.

package grid

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrRowOutOfRange is returned when a row index does not address a row.
	ErrRowOutOfRange = errors.New("row index out of range")
	// ErrInconsistentCell is returned by changes whose recorded old state does
	// not match the grid.
	ErrInconsistentCell = errors.New("cell does not hold the expected value")
)

// Record is a contiguous run of rows sharing one key cell.
type Record struct {
	Index        int
	FromRowIndex int // inclusive
	ToRowIndex   int // exclusive
}

// Grid is the table store.
//
// mu is the single mutation lock of the table. Writers (history apply/revert)
// hold it exclusively; facet and filter passes hold it shared so that scans
// never interleave with a mutation.
type Grid struct {
	mu      sync.RWMutex
	columns *ColumnModel
	rows    []*Row

	// records and rowRecord are derived; rebuilt by Update.
	records   []Record
	rowRecord []int
}

// New returns a grid with the given column names and rows.
func New(columnNames []string, rows []*Row) (*Grid, error) {
	g := &Grid{columns: &ColumnModel{MaxCellIndex: -1}, rows: rows}
	for i, name := range columnNames {
		if err := g.columns.Add(-1, NewColumn(i, name)); err != nil {
			return nil, err
		}
	}
	g.Update()
	return g, nil
}

// Lock acquires the mutation lock.
func (g *Grid) Lock() { g.mu.Lock() }

// Unlock releases the mutation lock.
func (g *Grid) Unlock() { g.mu.Unlock() }

// RLock acquires the lock for a read pass.
func (g *Grid) RLock() { g.mu.RLock() }

// RUnlock releases a read pass.
func (g *Grid) RUnlock() { g.mu.RUnlock() }

// Columns returns the column model.
func (g *Grid) Columns() *ColumnModel { return g.columns }

// RowCount returns the number of rows.
func (g *Grid) RowCount() int { return len(g.rows) }

// Row returns the row at rowIndex, or nil.
func (g *Grid) Row(rowIndex int) *Row {
	if rowIndex < 0 || rowIndex >= len(g.rows) {
		return nil
	}
	return g.rows[rowIndex]
}

// Rows returns the backing row slice. Callers must not modify it.
func (g *Grid) Rows() []*Row { return g.rows }

// CheckRow returns an error wrapping ErrRowOutOfRange if rowIndex is invalid.
func (g *Grid) CheckRow(rowIndex int) error {
	if rowIndex < 0 || rowIndex >= len(g.rows) {
		return fmt.Errorf("%w: %d (have %d rows)", ErrRowOutOfRange, rowIndex, len(g.rows))
	}
	return nil
}

// RemoveRows deletes the rows at the given ascending indices and returns them.
func (g *Grid) RemoveRows(indices []int) ([]*Row, error) {
	if !slices.IsSorted(indices) {
		return nil, fmt.Errorf("row indices must be sorted")
	}
	for _, i := range indices {
		if err := g.CheckRow(i); err != nil {
			return nil, err
		}
	}
	removed := make([]*Row, 0, len(indices))
	for k := len(indices) - 1; k >= 0; k-- {
		i := indices[k]
		removed = append(removed, g.rows[i])
		g.rows = slices.Delete(g.rows, i, i+1)
	}
	slices.Reverse(removed)
	return removed, nil
}

// InsertRows is the inverse of RemoveRows: indices are the positions rows
// occupied before removal, ascending.
func (g *Grid) InsertRows(indices []int, rows []*Row) error {
	if len(indices) != len(rows) {
		return fmt.Errorf("got %d indices for %d rows", len(indices), len(rows))
	}
	for k, i := range indices {
		if i < 0 || i > len(g.rows) {
			return fmt.Errorf("%w: %d", ErrRowOutOfRange, i)
		}
		g.rows = slices.Insert(g.rows, i, rows[k])
	}
	return nil
}

// AppendRows adds rows at the end.
func (g *Grid) AppendRows(rows ...*Row) {
	g.rows = append(g.rows, rows...)
}

// Update rebuilds derived row context (record boundaries). Changes that alter
// row positions or key cells call it after mutating.
func (g *Grid) Update() {
	key := g.columns.KeyCellIndex()
	g.records = g.records[:0]
	g.rowRecord = slices.Grow(g.rowRecord[:0], len(g.rows))[:len(g.rows)]
	for i, row := range g.rows {
		if len(g.records) == 0 || (key >= 0 && !row.IsCellBlank(key)) {
			if n := len(g.records); n > 0 {
				g.records[n-1].ToRowIndex = i
			}
			g.records = append(g.records, Record{Index: len(g.records), FromRowIndex: i})
		}
		g.rowRecord[i] = len(g.records) - 1
	}
	if n := len(g.records); n > 0 {
		g.records[n-1].ToRowIndex = len(g.rows)
	}
}

// Records returns the record boundaries. Callers must not modify the slice.
func (g *Grid) Records() []Record { return g.records }

// RecordOfRow returns the record index containing rowIndex, or -1.
func (g *Grid) RecordOfRow(rowIndex int) int {
	if rowIndex < 0 || rowIndex >= len(g.rowRecord) {
		return -1
	}
	return g.rowRecord[rowIndex]
}

// CellIndexOf returns the cell index of the named column.
func (g *Grid) CellIndexOf(columnName string) (int, error) {
	c, err := g.columns.Resolve(columnName)
	if err != nil {
		return -1, err
	}
	return c.CellIndex, nil
}
