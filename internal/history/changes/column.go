// Provides the column addition change.

package changes

import (
	"fmt"

	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/facetdb/internal/history"
)

// CellAtRow is one cell of an added column.
type CellAtRow struct {
	Row  int        `json:"row"`
	Cell *grid.Cell `json:"cell"`
}

// ColumnAdditionChange appends a new cell index and inserts a column bound
// to it at Position.
type ColumnAdditionChange struct {
	ColumnName string
	Position   int
	Cells      []CellAtRow
	// CellIndex is assigned on first apply.
	CellIndex int

	oldMaxCellIndex int
	oldLens         []int
}

// NewColumnAdditionChange returns a change whose cell index is allocated on
// apply.
func NewColumnAdditionChange(name string, position int, cells []CellAtRow) *ColumnAdditionChange {
	return &ColumnAdditionChange{ColumnName: name, Position: position, Cells: cells, CellIndex: -1}
}

// Kind implements history.Change.
func (c *ColumnAdditionChange) Kind() string { return KindColumnAddition }

// Apply implements history.Change.
func (c *ColumnAdditionChange) Apply(g *grid.Grid) error {
	m := g.Columns()
	if m.ByName(c.ColumnName) != nil {
		return fmt.Errorf("%w: %q", grid.ErrDuplicateColumn, c.ColumnName)
	}
	for _, cr := range c.Cells {
		if err := g.CheckRow(cr.Row); err != nil {
			return err
		}
	}
	c.oldMaxCellIndex = m.MaxCellIndex
	if c.CellIndex < 0 {
		c.CellIndex = m.AllocateCellIndex()
	} else if c.CellIndex <= m.MaxCellIndex && m.ByCellIndex(c.CellIndex) != nil {
		return fmt.Errorf("cell index %d already in use", c.CellIndex)
	}
	if err := m.Add(c.Position, grid.NewColumn(c.CellIndex, c.ColumnName)); err != nil {
		m.MaxCellIndex = c.oldMaxCellIndex
		return err
	}
	c.oldLens = make([]int, len(c.Cells))
	for i, cr := range c.Cells {
		row := g.Row(cr.Row)
		c.oldLens[i] = len(row.Cells)
		row.SetCell(c.CellIndex, cr.Cell)
	}
	if c.Position == 0 {
		g.Update()
	}
	return nil
}

// Revert implements history.Change.
func (c *ColumnAdditionChange) Revert(g *grid.Grid) error {
	m := g.Columns()
	pos, err := m.Remove(c.ColumnName)
	if err != nil {
		return err
	}
	for i := len(c.Cells) - 1; i >= 0; i-- {
		row := g.Row(c.Cells[i].Row)
		if i < len(c.oldLens) && c.oldLens[i] <= c.CellIndex {
			row.Cells = row.Cells[:c.oldLens[i]]
		} else {
			row.SetCell(c.CellIndex, nil)
		}
	}
	m.MaxCellIndex = c.oldMaxCellIndex
	if pos == 0 {
		g.Update()
	}
	return nil
}

// Save implements history.Change.
func (c *ColumnAdditionChange) Save(w *history.Writer) error {
	w.String("columnName", c.ColumnName)
	w.Int("columnIndex", c.Position)
	w.Int("newCellIndex", c.CellIndex)
	w.JSON("cells", c.Cells)
	w.End()
	return w.Err()
}

func loadColumnAdditionChange(r *history.Reader) (history.Change, error) {
	c := &ColumnAdditionChange{CellIndex: -1}
	err := r.Fields(func(key, value string) error {
		var err error
		switch key {
		case "columnName":
			c.ColumnName, err = history.ParseString(value)
		case "columnIndex":
			c.Position, err = history.ParseInt(value)
		case "newCellIndex":
			c.CellIndex, err = history.ParseInt(value)
		case "cells":
			err = history.ParseJSON(value, &c.Cells)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
