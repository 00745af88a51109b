// Provides the engine combining every facet of a view.

package facets

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/maruel/facetdb/internal/browsing"
	"github.com/maruel/facetdb/internal/grid"
)

// EngineConfig is the serialized set of facets plus the filtering mode.
type EngineConfig struct {
	Facets []json.RawMessage `json:"facets,omitempty"`
	Mode   browsing.Mode     `json:"mode,omitempty" jsonschema:"enum=row-based,enum=record-based"`
}

// ParseEngineConfig decodes raw. An empty input is the all-rows engine.
func ParseEngineConfig(raw []byte) (EngineConfig, error) {
	var c EngineConfig
	if len(raw) == 0 || string(raw) == "null" {
		return c, nil
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("engine config: %w", err)
	}
	return c, nil
}

// Engine filters a grid through a set of facets.
type Engine struct {
	g      *grid.Grid
	facets []Facet
	mode   browsing.Mode
}

// NewEngine builds every facet of c against g.
func NewEngine(g *grid.Grid, c EngineConfig, opts Options) (*Engine, error) {
	mode := c.Mode
	if mode == "" {
		mode = browsing.RowBased
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("engine config: unknown mode %q", mode)
	}
	e := &Engine{g: g, mode: mode}
	for i, raw := range c.Facets {
		f, err := New(g, raw, opts)
		if err != nil {
			return nil, fmt.Errorf("facet %d: %w", i, err)
		}
		if msg := f.Error(); msg != "" {
			slog.Debug("Facet configuration error", "facet", i, "type", f.Type(), "err", msg)
		}
		e.facets = append(e.facets, f)
	}
	return e, nil
}

// Mode returns the filtering mode.
func (e *Engine) Mode() browsing.Mode { return e.mode }

// Facets returns the facets in configuration order.
func (e *Engine) Facets() []Facet { return e.facets }

// AllRows visits every row.
func (e *Engine) AllRows() browsing.FilteredRows {
	return &browsing.ConjunctiveFilteredRows{}
}

// AllFilteredRows visits the rows passing every facet. In record mode this
// is every row of every matching record.
func (e *Engine) AllFilteredRows() browsing.FilteredRows {
	if e.mode == browsing.RecordBased {
		return &browsing.RecordsAsRows{Records: e.AllFilteredRecords()}
	}
	return e.filteredRowsExcept(nil)
}

// AllFilteredRecords visits the records passing every facet.
func (e *Engine) AllFilteredRecords() browsing.FilteredRecords {
	return e.filteredRecordsExcept(nil)
}

func (e *Engine) filteredRowsExcept(except Facet) *browsing.ConjunctiveFilteredRows {
	c := &browsing.ConjunctiveFilteredRows{}
	for _, f := range e.facets {
		if f != except {
			c.Add(f.RowFilter())
		}
	}
	return c
}

func (e *Engine) filteredRecordsExcept(except Facet) *browsing.ConjunctiveFilteredRecords {
	c := &browsing.ConjunctiveFilteredRecords{}
	for _, f := range e.facets {
		if f != except {
			c.Add(f.RecordFilter())
		}
	}
	return c
}

// ComputeFacets computes each facet over the rows passing every other facet.
//
// Like the other passes it takes no lock; the caller holds the grid lock.
func (e *Engine) ComputeFacets() {
	for _, f := range e.facets {
		if e.mode == browsing.RecordBased {
			f.ComputeRecordChoices(e.g, e.filteredRecordsExcept(f))
		} else {
			f.ComputeChoices(e.g, e.filteredRowsExcept(f))
		}
	}
}

// FilteredRowIndices returns the indices of AllFilteredRows under the grid
// read lock.
func (e *Engine) FilteredRowIndices() []int {
	e.g.RLock()
	defer e.g.RUnlock()
	return browsing.RowIndices(e.g, e.AllFilteredRows())
}

// MarshalJSON reports every facet and the mode.
func (e *Engine) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Facets []Facet       `json:"facets"`
		Mode   browsing.Mode `json:"mode"`
	}{e.facets, e.mode})
}
