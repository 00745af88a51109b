// Provides the nominal list facet.

package facets

import (
	"encoding/json"

	"github.com/maruel/facetdb/internal/browsing"
	"github.com/maruel/facetdb/internal/browsing/binning"
	"github.com/maruel/facetdb/internal/grid"
)

// ListType is the "type" of a list facet configuration.
const ListType = "list"

// ListConfig configures a ListFacet.
type ListConfig struct {
	Type        string   `json:"type" jsonschema:"enum=list"`
	Name        string   `json:"name"`
	Expression  string   `json:"expression"`
	ColumnName  string   `json:"columnName"`
	Selection   []string `json:"selection,omitempty" jsonschema:"description=Selected choice values"`
	SelectBlank bool     `json:"selectBlank,omitempty"`
	SelectError bool     `json:"selectError,omitempty"`
	Invert      bool     `json:"invert,omitempty"`
}

// ListFacet groups rows by the string form of an expression result and
// filters on selected choices.
type ListFacet struct {
	Config ListConfig
	compiled

	mode browsing.Mode
	live *binning.NominalValueGrouper
	base *binning.NominalValueGrouper
}

// NewListFacet compiles c against g.
func NewListFacet(g *grid.Grid, c ListConfig) *ListFacet {
	c.Type = ListType
	return &ListFacet{Config: c, compiled: compile(g, c.ColumnName, c.Expression)}
}

// Type implements Facet.
func (f *ListFacet) Type() string { return ListType }

// Error implements Facet.
func (f *ListFacet) Error() string { return f.err }

// RowFilter implements Facet. Nothing selected disables the facet.
func (f *ListFacet) RowFilter() browsing.RowFilter {
	if f.err != "" {
		return browsing.MatchNothing
	}
	if len(f.Config.Selection) == 0 && !f.Config.SelectBlank && !f.Config.SelectError {
		return nil
	}
	m := make(map[string]struct{}, len(f.Config.Selection))
	for _, s := range f.Config.Selection {
		m[s] = struct{}{}
	}
	return &browsing.ExpressionEqualRowFilter{
		Evaluable:   f.eval,
		Matches:     m,
		SelectBlank: f.Config.SelectBlank,
		SelectError: f.Config.SelectError,
		Invert:      f.Config.Invert,
	}
}

// RecordFilter implements Facet.
func (f *ListFacet) RecordFilter() browsing.RecordFilter {
	return liftRecord(f.RowFilter())
}

// ComputeChoices implements Facet.
func (f *ListFacet) ComputeChoices(g *grid.Grid, rows browsing.FilteredRows) {
	if f.err != "" {
		return
	}
	f.mode = browsing.RowBased
	f.live = &binning.NominalValueGrouper{Evaluable: f.eval}
	rows.Accept(g, f.live)
	f.base = binning.NominalGroups(g, f.column, f.mode, f.expr, f.eval)
}

// ComputeRecordChoices implements Facet.
func (f *ListFacet) ComputeRecordChoices(g *grid.Grid, records browsing.FilteredRecords) {
	if f.err != "" {
		return
	}
	f.mode = browsing.RecordBased
	f.live = &binning.NominalValueGrouper{Evaluable: f.eval}
	records.Accept(g, f.live)
	f.base = binning.NominalGroups(g, f.column, f.mode, f.expr, f.eval)
}

// ListChoice is one reported choice.
type ListChoice struct {
	Value     string `json:"v"`
	Count     int    `json:"c"`
	BaseCount int    `json:"bc"`
	Selected  bool   `json:"s"`
}

// Choices returns the live choices, followed by selected choices no longer
// present in the live rows.
func (f *ListFacet) Choices() []ListChoice {
	if f.live == nil {
		return nil
	}
	selected := make(map[string]bool, len(f.Config.Selection))
	for _, s := range f.Config.Selection {
		selected[s] = true
	}
	out := make([]ListChoice, 0, len(f.live.Choices))
	for _, c := range f.live.Choices {
		out = append(out, ListChoice{Value: c.Value, Count: c.Count, BaseCount: f.base.Count(c.Value), Selected: selected[c.Value]})
		delete(selected, c.Value)
	}
	for _, s := range f.Config.Selection {
		if selected[s] {
			out = append(out, ListChoice{Value: s, BaseCount: f.base.Count(s), Selected: true})
		}
	}
	return out
}

// MarshalJSON reports configuration and computed counts.
func (f *ListFacet) MarshalJSON() ([]byte, error) {
	r := struct {
		Name        string       `json:"name"`
		Expression  string       `json:"expression"`
		ColumnName  string       `json:"columnName"`
		Invert      bool         `json:"invert"`
		Error       string       `json:"error,omitempty"`
		Choices     []ListChoice `json:"choices,omitempty"`
		BlankChoice *ListChoice  `json:"blankChoice,omitempty"`
		ErrorChoice *ListChoice  `json:"errorChoice,omitempty"`
	}{Name: f.Config.Name, Expression: f.Config.Expression, ColumnName: f.Config.ColumnName, Invert: f.Config.Invert, Error: f.err}
	if f.err == "" && f.live != nil {
		r.Choices = f.Choices()
		if f.live.BlankCount > 0 || f.Config.SelectBlank {
			r.BlankChoice = &ListChoice{Value: "(blank)", Count: f.live.BlankCount, BaseCount: f.base.BlankCount, Selected: f.Config.SelectBlank}
		}
		if f.live.ErrorCount > 0 || f.Config.SelectError {
			r.ErrorChoice = &ListChoice{Value: "(error)", Count: f.live.ErrorCount, BaseCount: f.base.ErrorCount, Selected: f.Config.SelectError}
		}
	}
	return json.Marshal(&r)
}
