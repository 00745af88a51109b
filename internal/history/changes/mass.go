// Provides the composite changes.

package changes

import (
	"fmt"
	"log/slog"

	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/facetdb/internal/history"
)

// MassCellChange replaces many cells, usually of one column. Every recorded
// old cell is checked before anything is written.
type MassCellChange struct {
	ColumnName                   string
	UpdateRowContextDependencies bool
	Changes                      []*CellChange
}

// Kind implements history.Change.
func (m *MassCellChange) Kind() string { return KindMassCell }

// Apply implements history.Change.
func (m *MassCellChange) Apply(g *grid.Grid) error {
	for _, c := range m.Changes {
		if err := c.check(g, c.Old); err != nil {
			return err
		}
	}
	for _, c := range m.Changes {
		c.set(g, c.New)
	}
	m.invalidate(g)
	return nil
}

// Revert implements history.Change.
func (m *MassCellChange) Revert(g *grid.Grid) error {
	for _, c := range m.Changes {
		if err := c.check(g, c.New); err != nil {
			return err
		}
	}
	for i := len(m.Changes) - 1; i >= 0; i-- {
		m.Changes[i].set(g, m.Changes[i].Old)
	}
	m.invalidate(g)
	return nil
}

func (m *MassCellChange) invalidate(g *grid.Grid) {
	seen := map[int]bool{}
	update := m.UpdateRowContextDependencies
	key := g.Columns().KeyCellIndex()
	for _, c := range m.Changes {
		if seen[c.CellIndex] {
			continue
		}
		seen[c.CellIndex] = true
		if col := g.Columns().ByCellIndex(c.CellIndex); col != nil {
			col.ClearPrecomputes()
		}
		update = update || c.CellIndex == key
	}
	if update {
		g.Update()
	}
}

// Save implements history.Change.
func (m *MassCellChange) Save(w *history.Writer) error {
	m.saveFields(w)
	w.End()
	return w.Err()
}

func (m *MassCellChange) saveFields(w *history.Writer) {
	w.String("commonColumnName", m.ColumnName)
	w.Bool("updateRowContextDependencies", m.UpdateRowContextDependencies)
	w.Int("cellChangeCount", len(m.Changes))
	for _, c := range m.Changes {
		if err := c.Save(w); err != nil {
			return
		}
	}
}

// loadField handles one MassCellChange field; it reports false for unknown
// keys.
func (m *MassCellChange) loadField(r *history.Reader, key, value string) (bool, error) {
	var err error
	switch key {
	case "commonColumnName":
		m.ColumnName, err = history.ParseString(value)
	case "updateRowContextDependencies":
		m.UpdateRowContextDependencies, err = history.ParseBool(value)
	case "cellChangeCount":
		var n int
		if n, err = history.ParseInt(value); err != nil {
			return true, err
		}
		m.Changes = make([]*CellChange, 0, n)
		for range n {
			c, err := loadCellChange(r)
			if err != nil {
				return true, err
			}
			m.Changes = append(m.Changes, c)
		}
	default:
		return false, nil
	}
	return true, err
}

func loadMassCellChange(r *history.Reader) (*MassCellChange, error) {
	m := &MassCellChange{}
	err := r.Fields(func(key, value string) error {
		_, err := m.loadField(r, key, value)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// MassChange applies arbitrary child changes in order and reverts them in
// reverse order. A failing child undoes the children already processed.
type MassChange struct {
	UpdateRowContextDependencies bool
	Changes                      []history.Change
}

// Kind implements history.Change.
func (m *MassChange) Kind() string { return KindMass }

// Apply implements history.Change.
func (m *MassChange) Apply(g *grid.Grid) error {
	marks := false
	defer clearIfMarked(g, &marks)
	for i, c := range m.Changes {
		if err := applyChild(g, c, false, &marks); err != nil {
			for j := i - 1; j >= 0; j-- {
				if rerr := applyChild(g, m.Changes[j], true, &marks); rerr != nil {
					slog.Error("Failed to roll back child change", "kind", m.Changes[j].Kind(), "err", rerr)
				}
			}
			return fmt.Errorf("child %d (%s): %w", i, c.Kind(), err)
		}
	}
	if m.UpdateRowContextDependencies {
		g.Update()
	}
	return nil
}

// Revert implements history.Change.
func (m *MassChange) Revert(g *grid.Grid) error {
	marks := false
	defer clearIfMarked(g, &marks)
	for i := len(m.Changes) - 1; i >= 0; i-- {
		if err := applyChild(g, m.Changes[i], true, &marks); err != nil {
			for j := i + 1; j < len(m.Changes); j++ {
				if aerr := applyChild(g, m.Changes[j], false, &marks); aerr != nil {
					slog.Error("Failed to roll back child change", "kind", m.Changes[j].Kind(), "err", aerr)
				}
			}
			return fmt.Errorf("child %d (%s): %w", i, m.Changes[i].Kind(), err)
		}
	}
	if m.UpdateRowContextDependencies {
		g.Update()
	}
	return nil
}

// applyChild applies or reverts c. Row marks skip their own cache
// invalidation and set *marks so the caller clears the caches once.
func applyChild(g *grid.Grid, c history.Change, revert bool, marks *bool) error {
	if rm, ok := c.(*RowMarkChange); ok {
		*marks = true
		if revert {
			return rm.mark(g, rm.New, rm.Old)
		}
		return rm.mark(g, rm.Old, rm.New)
	}
	if revert {
		return c.Revert(g)
	}
	return c.Apply(g)
}

func clearIfMarked(g *grid.Grid, marks *bool) {
	if *marks {
		g.Columns().ClearAllPrecomputes()
	}
}

// Save implements history.Change.
func (m *MassChange) Save(w *history.Writer) error {
	w.Bool("updateRowContextDependencies", m.UpdateRowContextDependencies)
	w.Int("changeCount", len(m.Changes))
	for _, c := range m.Changes {
		if err := history.WriteChange(w, c); err != nil {
			return err
		}
	}
	w.End()
	return w.Err()
}

func loadMassChange(r *history.Reader) (history.Change, error) {
	m := &MassChange{}
	err := r.Fields(func(key, value string) error {
		var err error
		switch key {
		case "updateRowContextDependencies":
			m.UpdateRowContextDependencies, err = history.ParseBool(value)
		case "changeCount":
			var n int
			if n, err = history.ParseInt(value); err != nil {
				return err
			}
			for range n {
				c, err := history.ReadChange(r)
				if err != nil {
					return err
				}
				m.Changes = append(m.Changes, c)
			}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}
