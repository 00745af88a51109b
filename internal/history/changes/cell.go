// Package changes implements the concrete grid mutations recorded in
// history.
package changes

import (
	"fmt"

	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/facetdb/internal/history"
)

// Change kinds as written in the history log.
const (
	KindCell           = "cell"
	KindMassCell       = "mass-cell"
	KindMass           = "mass"
	KindRecon          = "recon"
	KindRowFlag        = "row-flag"
	KindRowStar        = "row-star"
	KindRowRemoval     = "row-removal"
	KindColumnAddition = "column-addition"
)

func init() {
	history.Register(KindCell, func(r *history.Reader) (history.Change, error) { return loadCellChange(r) })
	history.Register(KindMassCell, func(r *history.Reader) (history.Change, error) { return loadMassCellChange(r) })
	history.Register(KindMass, loadMassChange)
	history.Register(KindRecon, loadReconChange)
	history.Register(KindRowFlag, func(r *history.Reader) (history.Change, error) { return loadRowMarkChange(r, KindRowFlag) })
	history.Register(KindRowStar, func(r *history.Reader) (history.Change, error) { return loadRowMarkChange(r, KindRowStar) })
	history.Register(KindRowRemoval, loadRowRemovalChange)
	history.Register(KindColumnAddition, loadColumnAdditionChange)
}

// CellChange replaces one cell.
type CellChange struct {
	Row       int
	CellIndex int
	Old       *grid.Cell
	New       *grid.Cell
}

// Kind implements history.Change.
func (c *CellChange) Kind() string { return KindCell }

// Apply implements history.Change.
func (c *CellChange) Apply(g *grid.Grid) error {
	if err := c.check(g, c.Old); err != nil {
		return err
	}
	c.set(g, c.New)
	afterCellEdit(g, c.CellIndex, false)
	return nil
}

// Revert implements history.Change.
func (c *CellChange) Revert(g *grid.Grid) error {
	if err := c.check(g, c.New); err != nil {
		return err
	}
	c.set(g, c.Old)
	afterCellEdit(g, c.CellIndex, false)
	return nil
}

func (c *CellChange) check(g *grid.Grid, want *grid.Cell) error {
	if err := g.CheckRow(c.Row); err != nil {
		return err
	}
	if got := g.Row(c.Row).Cell(c.CellIndex); !grid.CellsEqual(got, want) {
		return fmt.Errorf("%w: row %d cell %d", grid.ErrInconsistentCell, c.Row, c.CellIndex)
	}
	return nil
}

func (c *CellChange) set(g *grid.Grid, v *grid.Cell) {
	g.Row(c.Row).SetCell(c.CellIndex, v)
}

// Save implements history.Change.
func (c *CellChange) Save(w *history.Writer) error {
	w.Int("row", c.Row)
	w.Int("cell", c.CellIndex)
	w.JSON("old", c.Old)
	w.JSON("new", c.New)
	w.End()
	return w.Err()
}

func loadCellChange(r *history.Reader) (*CellChange, error) {
	c := &CellChange{}
	err := r.Fields(func(key, value string) error {
		var err error
		switch key {
		case "row":
			c.Row, err = history.ParseInt(value)
		case "cell":
			c.CellIndex, err = history.ParseInt(value)
		case "old":
			err = history.ParseJSON(value, &c.Old)
		case "new":
			err = history.ParseJSON(value, &c.New)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// afterCellEdit drops the caches depending on cellIndex and rebuilds the
// record boundaries when the key column changed.
func afterCellEdit(g *grid.Grid, cellIndex int, updateRowContext bool) {
	if col := g.Columns().ByCellIndex(cellIndex); col != nil {
		col.ClearPrecomputes()
	}
	if updateRowContext || cellIndex == g.Columns().KeyCellIndex() {
		g.Update()
	}
}
