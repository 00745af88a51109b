// Provides the text search facet.

package facets

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/maruel/facetdb/internal/browsing"
	"github.com/maruel/facetdb/internal/grid"
)

// TextType is the "type" of a text facet configuration.
const TextType = "text"

// Text search modes. "contains" is accepted as an alias of "text".
const (
	TextModeText     = "text"
	TextModeContains = "contains"
	TextModeRegex    = "regex"
)

// TextConfig configures a TextSearchFacet.
type TextConfig struct {
	Type          string `json:"type" jsonschema:"enum=text"`
	Name          string `json:"name"`
	ColumnName    string `json:"columnName"`
	Query         string `json:"query"`
	Mode          string `json:"mode,omitempty" jsonschema:"enum=text,enum=contains,enum=regex"`
	CaseSensitive bool   `json:"caseSensitive,omitempty"`
	Invert        bool   `json:"invert,omitempty"`
}

// TextSearchFacet matches rows whose cell contains a substring or a regular
// expression match.
type TextSearchFacet struct {
	Config TextConfig
	compiled
	pattern *regexp.Regexp
	query   string
}

// NewTextSearchFacet compiles c against g.
func NewTextSearchFacet(g *grid.Grid, c TextConfig) *TextSearchFacet {
	c.Type = TextType
	f := &TextSearchFacet{Config: c, compiled: compile(g, c.ColumnName, "value")}
	if f.err != "" || c.Query == "" {
		return f
	}
	switch c.Mode {
	case TextModeRegex:
		src := c.Query
		if !c.CaseSensitive {
			src = "(?i)" + src
		}
		re, err := regexp.Compile(src)
		if err != nil {
			f.err = err.Error()
			return f
		}
		f.pattern = re
	case TextModeText, TextModeContains, "":
		f.query = c.Query
		if !c.CaseSensitive {
			f.query = strings.ToLower(c.Query)
		}
	default:
		f.err = "unknown text search mode " + c.Mode
	}
	return f
}

// Type implements Facet.
func (f *TextSearchFacet) Type() string { return TextType }

// Error implements Facet.
func (f *TextSearchFacet) Error() string { return f.err }

// RowFilter implements Facet. An empty query disables the facet.
func (f *TextSearchFacet) RowFilter() browsing.RowFilter {
	if f.err != "" {
		return browsing.MatchNothing
	}
	if f.Config.Query == "" {
		return nil
	}
	check := f.checkSubstring
	if f.pattern != nil {
		check = f.pattern.MatchString
	}
	return &browsing.ExpressionStringComparisonRowFilter{Evaluable: f.eval, Invert: f.Config.Invert, Check: check}
}

func (f *TextSearchFacet) checkSubstring(s string) bool {
	if !f.Config.CaseSensitive {
		s = strings.ToLower(s)
	}
	return strings.Contains(s, f.query)
}

// RecordFilter implements Facet.
func (f *TextSearchFacet) RecordFilter() browsing.RecordFilter {
	return liftRecord(f.RowFilter())
}

// ComputeChoices implements Facet. A text facet has no choices.
func (f *TextSearchFacet) ComputeChoices(*grid.Grid, browsing.FilteredRows) {}

// ComputeRecordChoices implements Facet.
func (f *TextSearchFacet) ComputeRecordChoices(*grid.Grid, browsing.FilteredRecords) {}

// MarshalJSON reports the configuration and any error.
func (f *TextSearchFacet) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name          string `json:"name"`
		ColumnName    string `json:"columnName"`
		Query         string `json:"query"`
		Mode          string `json:"mode"`
		CaseSensitive bool   `json:"caseSensitive"`
		Invert        bool   `json:"invert"`
		Error         string `json:"error,omitempty"`
	}{f.Config.Name, f.Config.ColumnName, f.Config.Query, f.Config.Mode, f.Config.CaseSensitive, f.Config.Invert, f.err})
}
