// Provides the column precompute cache lookups.

package binning

import (
	"encoding/hex"
	"log/slog"

	"github.com/maruel/facetdb/internal/browsing"
	"github.com/maruel/facetdb/internal/eval"
	"github.com/maruel/facetdb/internal/grid"
	"golang.org/x/crypto/blake2b"
)

// Cache key kinds.
const (
	NumericBin = "numeric-bin"
	NominalBin = "nominal-bin"
)

// CacheKey returns the precompute key for an aggregate of expression.
//
// The expression is hashed so arbitrarily long sources yield bounded keys.
func CacheKey(kind string, mode browsing.Mode, expression string) string {
	h := blake2b.Sum256([]byte(expression))
	return kind + ":" + string(mode) + ":" + hex.EncodeToString(h[:16])
}

// NumericIndex returns the cached index of e over col, building and
// publishing it when absent. A nil col disables caching.
func NumericIndex(g *grid.Grid, col *grid.Column, mode browsing.Mode, expression string, e eval.RowEvaluable, maxBins int) *NumericBinIndex {
	key := CacheKey(NumericBin, mode, expression)
	if col != nil {
		if idx, ok := col.Precompute(key).(*NumericBinIndex); ok {
			return idx
		}
	}
	var idx *NumericBinIndex
	if mode == browsing.RecordBased {
		idx = NewRecordNumericBinIndex(g, e, maxBins)
	} else {
		idx = NewRowNumericBinIndex(g, e, maxBins)
	}
	if col != nil {
		slog.Debug("Built numeric bin index", "column", col.Name, "mode", mode, "bins", len(idx.Bins))
		col.SetPrecompute(key, idx)
	}
	return idx
}

// NominalGroups returns the cached grouping of e over every row or record of
// col, building and publishing it when absent. A nil col disables caching.
func NominalGroups(g *grid.Grid, col *grid.Column, mode browsing.Mode, expression string, e eval.RowEvaluable) *NominalValueGrouper {
	key := CacheKey(NominalBin, mode, expression)
	if col != nil {
		if grp, ok := col.Precompute(key).(*NominalValueGrouper); ok {
			return grp
		}
	}
	grp := &NominalValueGrouper{Evaluable: e}
	if mode == browsing.RecordBased {
		(&browsing.ConjunctiveFilteredRecords{}).Accept(g, grp)
	} else {
		(&browsing.ConjunctiveFilteredRows{}).Accept(g, grp)
	}
	if col != nil {
		slog.Debug("Built nominal groups", "column", col.Name, "mode", mode, "choices", len(grp.Choices))
		col.SetPrecompute(key, grp)
	}
	return grp
}

// FacetCount returns how many rows of the whole grid have choice as the
// result of expression evaluated on columnName.
func FacetCount(g *grid.Grid, choice any, expression, columnName string) (int, error) {
	col, err := g.Columns().Resolve(columnName)
	if err != nil {
		return 0, err
	}
	ev, err := eval.Parse(expression)
	if err != nil {
		return 0, err
	}
	e, err := eval.NewRowEvaluable(g, columnName, ev)
	if err != nil {
		return 0, err
	}
	grp := NominalGroups(g, col, browsing.RowBased, expression, e)
	return grp.Count(eval.ToString(choice)), nil
}

func init() {
	eval.RegisterFunction("facetCount", 3, func(b eval.Bindings, args []any) any {
		g, ok := b["grid"].(*grid.Grid)
		if !ok {
			return grid.NewEvalError("facetCount needs a grid")
		}
		expr, ok1 := args[1].(string)
		column, ok2 := args[2].(string)
		if !ok1 || !ok2 {
			return grid.NewEvalError("facetCount expects (value, expression, columnName)")
		}
		n, err := FacetCount(g, args[0], expr, column)
		if err != nil {
			return grid.NewEvalError("%s", err)
		}
		return int64(n)
	})
}
