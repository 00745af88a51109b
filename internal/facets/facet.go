// Package facets implements live filters paired with aggregate statistics.
//
// A facet is built from a JSON configuration object. Configuration problems
// (unknown column, bad expression, bad regexp) do not fail construction: the
// facet records the message in its result, matches nothing, and computes no
// counts.
package facets

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/maruel/facetdb/internal/browsing"
	"github.com/maruel/facetdb/internal/browsing/binning"
	"github.com/maruel/facetdb/internal/eval"
	"github.com/maruel/facetdb/internal/grid"
)

// ErrUnknownFacetType is returned for a configuration whose "type" is not
// registered.
var ErrUnknownFacetType = errors.New("unknown facet type")

// Facet is the capability shared by every facet kind.
type Facet interface {
	// Type returns the "type" field of the configuration.
	Type() string
	// RowFilter returns nil when the facet selects nothing.
	RowFilter() browsing.RowFilter
	// RecordFilter returns nil when the facet selects nothing.
	RecordFilter() browsing.RecordFilter
	// ComputeChoices computes live counts over rows and base counts over the
	// whole grid.
	ComputeChoices(g *grid.Grid, rows browsing.FilteredRows)
	// ComputeRecordChoices is ComputeChoices in record mode.
	ComputeRecordChoices(g *grid.Grid, records browsing.FilteredRecords)
	// Error returns the configuration error, if any.
	Error() string
}

// Options tunes facet computation.
type Options struct {
	MaxBins int
}

// New builds a facet from its JSON configuration, bound to g.
//
// It only fails when the configuration is not a JSON object or names an
// unknown type.
func New(g *grid.Grid, raw json.RawMessage, opts Options) (Facet, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("facet: %w", err)
	}
	switch head.Type {
	case RangeType:
		c := DefaultRangeConfig()
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("range facet: %w", err)
		}
		return NewRangeFacet(g, c, opts), nil
	case TextType:
		var c TextConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("text facet: %w", err)
		}
		return NewTextSearchFacet(g, c), nil
	case ListType, "":
		var c ListConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("list facet: %w", err)
		}
		return NewListFacet(g, c), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownFacetType, head.Type)
}

// compiled holds what every expression facet resolves at construction.
type compiled struct {
	column *grid.Column
	eval   eval.RowEvaluable
	expr   string
	err    string
}

func compile(g *grid.Grid, columnName, expression string) compiled {
	var c compiled
	if columnName != "" {
		col, err := g.Columns().Resolve(columnName)
		if err != nil {
			c.err = err.Error()
			return c
		}
		c.column = col
	}
	if expression == "" {
		expression = "value"
	}
	ev, err := eval.Parse(expression)
	if err != nil {
		c.err = err.Error()
		return c
	}
	re, err := eval.NewRowEvaluable(g, columnName, ev)
	if err != nil {
		c.err = err.Error()
		return c
	}
	c.eval = re
	c.expr = expression
	return c
}

func liftRecord(f browsing.RowFilter) browsing.RecordFilter {
	switch f {
	case nil:
		return nil
	case browsing.RowFilter(browsing.MatchNothing):
		return browsing.MatchNothing
	}
	return &browsing.AnyRowRecordFilter{RowFilter: f}
}

func maxBins(o Options) int {
	if o.MaxBins > 0 {
		return o.MaxBins
	}
	return binning.DefaultMaxBins
}
