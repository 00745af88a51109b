// Provides row-level changes: flags, stars and removal.

package changes

import (
	"fmt"
	"slices"

	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/facetdb/internal/history"
)

// RowMarkChange sets the flagged or starred mark of one row, depending on
// its kind.
type RowMarkChange struct {
	kind string
	Row  int
	Old  bool
	New  bool
}

// NewRowFlagChange returns a change of the flagged mark.
func NewRowFlagChange(row int, was, now bool) *RowMarkChange {
	return &RowMarkChange{kind: KindRowFlag, Row: row, Old: was, New: now}
}

// NewRowStarChange returns a change of the starred mark.
func NewRowStarChange(row int, was, now bool) *RowMarkChange {
	return &RowMarkChange{kind: KindRowStar, Row: row, Old: was, New: now}
}

// Kind implements history.Change.
func (c *RowMarkChange) Kind() string { return c.kind }

// Apply implements history.Change.
func (c *RowMarkChange) Apply(g *grid.Grid) error {
	return c.set(g, c.Old, c.New)
}

// Revert implements history.Change.
func (c *RowMarkChange) Revert(g *grid.Grid) error {
	return c.set(g, c.New, c.Old)
}

func (c *RowMarkChange) set(g *grid.Grid, from, to bool) error {
	if err := c.mark(g, from, to); err != nil {
		return err
	}
	// Expressions can read row marks.
	g.Columns().ClearAllPrecomputes()
	return nil
}

// mark flips the mark without invalidating caches.
func (c *RowMarkChange) mark(g *grid.Grid, from, to bool) error {
	if err := g.CheckRow(c.Row); err != nil {
		return err
	}
	row := g.Row(c.Row)
	mark := &row.Flagged
	if c.kind == KindRowStar {
		mark = &row.Starred
	}
	if *mark != from {
		return fmt.Errorf("%w: row %d %s is %t", grid.ErrInconsistentCell, c.Row, c.kind, *mark)
	}
	*mark = to
	return nil
}

// Save implements history.Change.
func (c *RowMarkChange) Save(w *history.Writer) error {
	w.Int("row", c.Row)
	w.Bool("old", c.Old)
	w.Bool("new", c.New)
	w.End()
	return w.Err()
}

func loadRowMarkChange(r *history.Reader, kind string) (history.Change, error) {
	c := &RowMarkChange{kind: kind}
	err := r.Fields(func(key, value string) error {
		var err error
		switch key {
		case "row":
			c.Row, err = history.ParseInt(value)
		case "old":
			c.Old, err = history.ParseBool(value)
		case "new":
			c.New, err = history.ParseBool(value)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RowRemovalChange deletes rows and restores them at their original
// positions on revert.
type RowRemovalChange struct {
	// Indices are ascending and unique.
	Indices []int

	removed []*grid.Row
}

// NewRowRemovalChange sorts and deduplicates indices.
func NewRowRemovalChange(indices []int) *RowRemovalChange {
	s := slices.Clone(indices)
	slices.Sort(s)
	return &RowRemovalChange{Indices: slices.Compact(s)}
}

// Kind implements history.Change.
func (c *RowRemovalChange) Kind() string { return KindRowRemoval }

// Apply implements history.Change.
func (c *RowRemovalChange) Apply(g *grid.Grid) error {
	removed, err := g.RemoveRows(c.Indices)
	if err != nil {
		return err
	}
	c.removed = removed
	g.Columns().ClearAllPrecomputes()
	g.Update()
	return nil
}

// Revert implements history.Change.
func (c *RowRemovalChange) Revert(g *grid.Grid) error {
	if len(c.removed) != len(c.Indices) {
		return fmt.Errorf("%w: rows were never removed", grid.ErrInconsistentCell)
	}
	if err := g.InsertRows(c.Indices, c.removed); err != nil {
		return err
	}
	c.removed = nil
	g.Columns().ClearAllPrecomputes()
	g.Update()
	return nil
}

// Save implements history.Change.
func (c *RowRemovalChange) Save(w *history.Writer) error {
	w.JSON("rowIndices", c.Indices)
	w.End()
	return w.Err()
}

func loadRowRemovalChange(r *history.Reader) (history.Change, error) {
	c := &RowRemovalChange{}
	err := r.Fields(func(key, value string) error {
		if key == "rowIndices" {
			return history.ParseJSON(value, &c.Indices)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !slices.IsSorted(c.Indices) {
		return nil, fmt.Errorf("%w: row indices not sorted", history.ErrCorruptLog)
	}
	return c, nil
}
