// Provides the numeric range facet.

package facets

import (
	"encoding/json"

	"github.com/maruel/facetdb/internal/browsing"
	"github.com/maruel/facetdb/internal/browsing/binning"
	"github.com/maruel/facetdb/internal/grid"
)

// RangeType is the "type" of a range facet configuration.
const RangeType = "range"

// errNoNumeric is reported when the base index saw no number.
const errNoNumeric = "No numeric value present."

// RangeConfig configures a RangeFacet.
type RangeConfig struct {
	Type             string   `json:"type" jsonschema:"enum=range"`
	Name             string   `json:"name" jsonschema:"description=Display name"`
	Expression       string   `json:"expression" jsonschema:"description=Expression evaluated per row"`
	ColumnName       string   `json:"columnName" jsonschema:"description=Column the expression is bound to"`
	From             *float64 `json:"from,omitempty" jsonschema:"description=Inclusive lower bound"`
	To               *float64 `json:"to,omitempty" jsonschema:"description=Exclusive upper bound"`
	SelectNumeric    bool     `json:"selectNumeric" jsonschema:"default=true"`
	SelectNonNumeric bool     `json:"selectNonNumeric" jsonschema:"default=true"`
	SelectBlank      bool     `json:"selectBlank" jsonschema:"default=true"`
	SelectError      bool     `json:"selectError" jsonschema:"default=true"`
}

// DefaultRangeConfig returns a configuration with every category selected.
func DefaultRangeConfig() RangeConfig {
	return RangeConfig{Type: RangeType, SelectNumeric: true, SelectNonNumeric: true, SelectBlank: true, SelectError: true}
}

// Selected reports whether the configuration restricts anything.
func (c *RangeConfig) Selected() bool {
	return c.From != nil || c.To != nil || !c.SelectNumeric || !c.SelectNonNumeric || !c.SelectBlank || !c.SelectError
}

// RangeFacet filters rows whose numeric value lies in [from, to).
type RangeFacet struct {
	Config RangeConfig
	opts   Options
	compiled

	computed bool
	index    *binning.NumericBinIndex
	binner   *binning.NumericValueBinner
}

// NewRangeFacet compiles c against g.
func NewRangeFacet(g *grid.Grid, c RangeConfig, opts Options) *RangeFacet {
	c.Type = RangeType
	return &RangeFacet{Config: c, opts: opts, compiled: compile(g, c.ColumnName, c.Expression)}
}

// Type implements Facet.
func (f *RangeFacet) Type() string { return RangeType }

// Error implements Facet.
func (f *RangeFacet) Error() string { return f.err }

// RowFilter implements Facet.
func (f *RangeFacet) RowFilter() browsing.RowFilter {
	if f.err != "" {
		return browsing.MatchNothing
	}
	if !f.Config.Selected() {
		return nil
	}
	from, to := f.Config.From, f.Config.To
	return &browsing.ExpressionNumberComparisonRowFilter{
		Evaluable:        f.eval,
		SelectNumeric:    f.Config.SelectNumeric,
		SelectNonNumeric: f.Config.SelectNonNumeric,
		SelectBlank:      f.Config.SelectBlank,
		SelectError:      f.Config.SelectError,
		Check: func(d float64) bool {
			return (from == nil || d >= *from) && (to == nil || d < *to)
		},
	}
}

// RecordFilter implements Facet.
func (f *RangeFacet) RecordFilter() browsing.RecordFilter {
	return liftRecord(f.RowFilter())
}

// ComputeChoices implements Facet.
func (f *RangeFacet) ComputeChoices(g *grid.Grid, rows browsing.FilteredRows) {
	if f.err != "" {
		return
	}
	f.index = binning.NumericIndex(g, f.column, browsing.RowBased, f.expr, f.eval, maxBins(f.opts))
	f.binner = &binning.NumericValueBinner{Evaluable: f.eval, Index: f.index}
	rows.Accept(g, f.binner)
	f.computed = true
}

// ComputeRecordChoices implements Facet.
func (f *RangeFacet) ComputeRecordChoices(g *grid.Grid, records browsing.FilteredRecords) {
	if f.err != "" {
		return
	}
	f.index = binning.NumericIndex(g, f.column, browsing.RecordBased, f.expr, f.eval, maxBins(f.opts))
	f.binner = &binning.NumericValueBinner{Evaluable: f.eval, Index: f.index}
	records.Accept(g, f.binner)
	f.computed = true
}

// Index returns the base index of the last computation.
func (f *RangeFacet) Index() *binning.NumericBinIndex { return f.index }

// Binner returns the live counts of the last computation.
func (f *RangeFacet) Binner() *binning.NumericValueBinner { return f.binner }

// rangeResult is the reported state of a RangeFacet.
type rangeResult struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	ColumnName string `json:"columnName"`
	Error      string `json:"error,omitempty"`

	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Step     *float64 `json:"step,omitempty"`
	Bins     []int    `json:"bins,omitempty"`
	BaseBins []int    `json:"baseBins,omitempty"`
	From     *float64 `json:"from,omitempty"`
	To       *float64 `json:"to,omitempty"`

	BaseNumericCount    int `json:"baseNumericCount"`
	BaseNonNumericCount int `json:"baseNonNumericCount"`
	BaseBlankCount      int `json:"baseBlankCount"`
	BaseErrorCount      int `json:"baseErrorCount"`
	NumericCount        int `json:"numericCount"`
	NonNumericCount     int `json:"nonNumericCount"`
	BlankCount          int `json:"blankCount"`
	ErrorCount          int `json:"errorCount"`
}

// MarshalJSON reports configuration and computed counts. Selection bounds
// are clamped to the base index range for display; the filter keeps using
// the configured bounds.
func (f *RangeFacet) MarshalJSON() ([]byte, error) {
	r := rangeResult{Name: f.Config.Name, Expression: f.Config.Expression, ColumnName: f.Config.ColumnName, Error: f.err}
	if f.err == "" && f.computed {
		idx := f.index
		r.BaseNumericCount = idx.NumericRowCount
		r.BaseNonNumericCount = idx.NonNumericRowCount
		r.BaseBlankCount = idx.BlankRowCount
		r.BaseErrorCount = idx.ErrorRowCount
		r.NumericCount = f.binner.NumericCount
		r.NonNumericCount = f.binner.NonNumericCount
		r.BlankCount = f.binner.BlankCount
		r.ErrorCount = f.binner.ErrorCount
		if !idx.IsNumeric() {
			r.Error = errNoNumeric
		} else {
			lo, hi, step := idx.Min, idx.Max, idx.Step
			r.Min, r.Max, r.Step = &lo, &hi, &step
			r.Bins = f.binner.Bins
			r.BaseBins = idx.Bins
			from, to := lo, hi
			if f.Config.From != nil {
				from = max(*f.Config.From, lo)
			}
			if f.Config.To != nil {
				to = min(*f.Config.To, hi)
			}
			r.From, r.To = &from, &to
		}
	}
	return json.Marshal(&r)
}
