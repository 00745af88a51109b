// Provides the reconciliation change.

package changes

import (
	"encoding/json"

	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/facetdb/internal/history"
)

// ReconChange is a MassCellChange on one column that also swaps the column's
// reconciliation configuration and statistics.
type ReconChange struct {
	MassCellChange
	NewReconConfig json.RawMessage
	OldReconConfig json.RawMessage
	NewReconStats  *grid.ReconStats
	OldReconStats  *grid.ReconStats
}

// Kind implements history.Change.
func (c *ReconChange) Kind() string { return KindRecon }

// Apply implements history.Change.
func (c *ReconChange) Apply(g *grid.Grid) error {
	col, err := g.Columns().Resolve(c.ColumnName)
	if err != nil {
		return err
	}
	if err := c.MassCellChange.Apply(g); err != nil {
		return err
	}
	if c.NewReconStats == nil {
		c.NewReconStats = grid.ComputeReconStats(g, col.CellIndex)
	}
	c.OldReconConfig = col.ReconConfig
	c.OldReconStats = col.ReconStats
	col.ReconConfig = c.NewReconConfig
	col.ReconStats = c.NewReconStats
	return nil
}

// Revert implements history.Change.
func (c *ReconChange) Revert(g *grid.Grid) error {
	col, err := g.Columns().Resolve(c.ColumnName)
	if err != nil {
		return err
	}
	if err := c.MassCellChange.Revert(g); err != nil {
		return err
	}
	col.ReconConfig = c.OldReconConfig
	col.ReconStats = c.OldReconStats
	return nil
}

// Save implements history.Change.
func (c *ReconChange) Save(w *history.Writer) error {
	w.JSON("newReconConfig", c.NewReconConfig)
	w.JSON("newReconStats", c.NewReconStats)
	w.JSON("oldReconConfig", c.OldReconConfig)
	w.JSON("oldReconStats", c.OldReconStats)
	c.saveFields(w)
	w.End()
	return w.Err()
}

func loadReconChange(r *history.Reader) (history.Change, error) {
	c := &ReconChange{}
	err := r.Fields(func(key, value string) error {
		switch key {
		case "newReconConfig":
			return loadRaw(value, &c.NewReconConfig)
		case "oldReconConfig":
			return loadRaw(value, &c.OldReconConfig)
		case "newReconStats":
			return history.ParseJSON(value, &c.NewReconStats)
		case "oldReconStats":
			return history.ParseJSON(value, &c.OldReconStats)
		}
		_, err := c.loadField(r, key, value)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// loadRaw keeps "null" as a nil message so a round trip is exact.
func loadRaw(value string, dst *json.RawMessage) error {
	if value == "null" {
		*dst = nil
		return nil
	}
	return history.ParseJSON(value, dst)
}
