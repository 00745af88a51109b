package binning

import (
	"math"
	"testing"

	"github.com/maruel/facetdb/internal/browsing"
	"github.com/maruel/facetdb/internal/eval"
	"github.com/maruel/facetdb/internal/grid"
)

func numbersGrid(t *testing.T, values ...any) (*grid.Grid, eval.RowEvaluable) {
	t.Helper()
	rows := make([]*grid.Row, len(values))
	for i, v := range values {
		rows[i] = grid.NewRow(v)
	}
	g, err := grid.New([]string{"v"}, rows)
	if err != nil {
		t.Fatal(err)
	}
	e, err := eval.NewRowEvaluable(g, "v", eval.MustParse("value"))
	if err != nil {
		t.Fatal(err)
	}
	return g, e
}

func sum(bins []int) int {
	n := 0
	for _, b := range bins {
		n += b
	}
	return n
}

func TestNumericBinIndex(t *testing.T) {
	tests := []struct {
		name   string
		values []any
		min    float64
		max    float64
		step   float64
	}{
		{"spread", []any{5, 15, 25}, 5, 26, 1},
		{"large", []any{0, 1000, 12345}, 0, 13000, 1000},
		{"small", []any{0.1, 0.15, 0.5}, math.NaN(), math.NaN(), math.NaN()},
		{"single", []any{7, 7}, 7, 8, 1},
		{"huge", []any{-1e308, 0.0, 1e308}, math.NaN(), math.NaN(), math.NaN()},
		{"huge_single", []any{1e308}, math.NaN(), math.NaN(), math.NaN()},
		{"subnormal", []any{0.0, math.SmallestNonzeroFloat64}, math.NaN(), math.NaN(), math.NaN()},
		{"subnormal_spread", []any{1e-310, 2e-310, 3e-310}, math.NaN(), math.NaN(), math.NaN()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, e := numbersGrid(t, tc.values...)
			idx := NewRowNumericBinIndex(g, e, DefaultMaxBins)
			if len(idx.Bins) > DefaultMaxBins {
				t.Fatalf("%d bins", len(idx.Bins))
			}
			if sum(idx.Bins) != idx.NumericRowCount || idx.NumericRowCount != len(tc.values) {
				t.Fatalf("sum %d, numeric %d", sum(idx.Bins), idx.NumericRowCount)
			}
			if !math.IsNaN(tc.min) && (math.Abs(idx.Min-tc.min) > 1e-9 || math.Abs(idx.Max-tc.max) > 1e-9 || math.Abs(idx.Step-tc.step) > 1e-9) {
				t.Fatalf("min %g max %g step %g", idx.Min, idx.Max, idx.Step)
			}
			if idx.Min > idx.Max {
				t.Fatal("min > max")
			}
			if math.IsInf(idx.Min, 0) || math.IsInf(idx.Max, 0) || math.IsNaN(idx.Step) || math.IsInf(idx.Step, 0) || idx.Step <= 0 {
				t.Fatalf("min %g max %g step %g", idx.Min, idx.Max, idx.Step)
			}
			for _, v := range tc.values {
				d, _ := eval.AsNumber(v)
				if d < idx.Min || d >= idx.Max {
					t.Fatalf("%g outside [%g, %g)", d, idx.Min, idx.Max)
				}
			}
		})
	}
}

func TestNumericBinIndexCategories(t *testing.T) {
	g, e := numbersGrid(t, 1, "x", nil, "", grid.NewEvalError("bad"), math.Inf(1), 3)
	idx := NewRowNumericBinIndex(g, e, DefaultMaxBins)
	if idx.NumericRowCount != 2 || idx.NonNumericRowCount != 1 || idx.BlankRowCount != 2 || idx.ErrorRowCount != 2 {
		t.Fatalf("%+v", idx)
	}
	if total := idx.NumericRowCount + idx.NonNumericRowCount + idx.BlankRowCount + idx.ErrorRowCount; total != g.RowCount() {
		t.Fatal(total)
	}
	if sum(idx.Bins) != 2 {
		t.Fatal(idx.Bins)
	}
}

func TestNumericBinIndexNoNumbers(t *testing.T) {
	g, e := numbersGrid(t, "a", nil)
	idx := NewRowNumericBinIndex(g, e, DefaultMaxBins)
	if idx.IsNumeric() {
		t.Fatal("expected no numeric values")
	}
	if !math.IsInf(idx.Min, 1) || !math.IsInf(idx.Max, -1) {
		t.Fatalf("min %g max %g", idx.Min, idx.Max)
	}
}

func TestMaxBins(t *testing.T) {
	values := make([]any, 0, 1000)
	for i := range 1000 {
		values = append(values, i)
	}
	g, e := numbersGrid(t, values...)
	idx := NewRowNumericBinIndex(g, e, 10)
	if len(idx.Bins) > 10 || sum(idx.Bins) != 1000 {
		t.Fatalf("%d bins, sum %d", len(idx.Bins), sum(idx.Bins))
	}
}

func TestLiveBinnerReusesBoundaries(t *testing.T) {
	g, e := numbersGrid(t, 5, 15, 25, "x")
	idx := NewRowNumericBinIndex(g, e, DefaultMaxBins)
	c := &browsing.ConjunctiveFilteredRows{}
	c.Add(browsing.RowFilterFunc(func(_ *grid.Grid, i int, _ *grid.Row) bool { return i != 0 }))
	nb := &NumericValueBinner{Evaluable: e, Index: idx}
	c.Accept(g, nb)
	if len(nb.Bins) != len(idx.Bins) || sum(nb.Bins) != 2 || nb.NumericCount != 2 || nb.NonNumericCount != 1 {
		t.Fatalf("%+v", nb)
	}
	if nb.Bins[idx.Bin(15)] != 1 || nb.Bins[idx.Bin(5)] != 0 {
		t.Fatal(nb.Bins)
	}
}

func TestRecordIndex(t *testing.T) {
	rows := []*grid.Row{
		grid.NewRow("a", 1),
		grid.NewRow(nil, 2),
		grid.NewRow("b", "x"),
		grid.NewRow(nil, nil),
	}
	g, err := grid.New([]string{"key", "v"}, rows)
	if err != nil {
		t.Fatal(err)
	}
	e, err := eval.NewRowEvaluable(g, "v", eval.MustParse("value"))
	if err != nil {
		t.Fatal(err)
	}
	idx := NewRecordNumericBinIndex(g, e, DefaultMaxBins)
	if idx.NumericRowCount != 1 || idx.NonNumericRowCount != 1 || idx.BlankRowCount != 1 || idx.NumericValueCount != 2 {
		t.Fatalf("%+v", idx)
	}
}

func TestCache(t *testing.T) {
	g, e := numbersGrid(t, 1, 2, 3)
	col := g.Columns().ByName("v")
	a := NumericIndex(g, col, browsing.RowBased, "value", e, DefaultMaxBins)
	if b := NumericIndex(g, col, browsing.RowBased, "value", e, DefaultMaxBins); a != b {
		t.Fatal("expected cached index")
	}
	if b := NumericIndex(g, col, browsing.RecordBased, "value", e, DefaultMaxBins); a == b {
		t.Fatal("modes must not share a key")
	}
	if CacheKey(NumericBin, browsing.RowBased, "value") == CacheKey(NumericBin, browsing.RowBased, "value ") {
		t.Fatal("distinct expressions share a key")
	}
	col.ClearPrecomputes()
	if col.Precompute(CacheKey(NumericBin, browsing.RowBased, "value")) != nil {
		t.Fatal("expected cleared cache")
	}
}

func TestFacetCount(t *testing.T) {
	g, _ := numbersGrid(t, "a", "b", "a", nil, "A")
	n, err := FacetCount(g, "a", "value", "v")
	if err != nil || n != 2 {
		t.Fatal(n, err)
	}
	n, err = FacetCount(g, "a", "toLowercase(value)", "v")
	if err != nil || n != 3 {
		t.Fatal(n, err)
	}
	if _, err := FacetCount(g, "a", "value", "nope"); err == nil {
		t.Fatal("expected error")
	}
	e, err := eval.NewRowEvaluable(g, "v", eval.MustParse("facetCount(value, 'value', 'v')"))
	if err != nil {
		t.Fatal(err)
	}
	if v := e.Eval(g, 0, g.Row(0), eval.CreateBindings(g)); v != int64(2) {
		t.Fatalf("%#v", v)
	}
}

func TestNominalGrouper(t *testing.T) {
	g, e := numbersGrid(t, "a", "b", "a", nil, grid.NewEvalError("x"), 3)
	grp := &NominalValueGrouper{Evaluable: e}
	(&browsing.ConjunctiveFilteredRows{}).Accept(g, grp)
	want := []Choice{{"a", 2}, {"b", 1}, {"3", 1}}
	if len(grp.Choices) != len(want) {
		t.Fatal(grp.Choices)
	}
	for i := range want {
		if grp.Choices[i] != want[i] {
			t.Fatal(grp.Choices)
		}
	}
	if grp.BlankCount != 1 || grp.ErrorCount != 1 {
		t.Fatalf("%+v", grp)
	}
}
