package browsing

import (
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/maruel/facetdb/internal/eval"
	"github.com/maruel/facetdb/internal/grid"
)

func newGrid(t *testing.T, columns []string, rows ...*grid.Row) *grid.Grid {
	t.Helper()
	g, err := grid.New(columns, rows)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func valueOf(t *testing.T, g *grid.Grid, column string) eval.RowEvaluable {
	t.Helper()
	e, err := eval.NewRowEvaluable(g, column, eval.MustParse("value"))
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestNumberComparison(t *testing.T) {
	g := newGrid(t, []string{"v"},
		grid.NewRow(5),
		grid.NewRow(15),
		grid.NewRow(25),
		grid.NewRow("abc"),
		grid.NewRow(nil),
		grid.NewRow(grid.NewEvalError("bad")),
		grid.NewRow(math.NaN()),
	)
	inRange := func(d float64) bool { return d >= 10 && d < 20 }
	tests := []struct {
		name                  string
		num, nonNum, blk, err bool
		want                  []int
	}{
		{"numeric only", true, false, false, false, []int{1}},
		{"non numeric", false, true, false, false, []int{3}},
		{"blank", false, false, true, false, []int{4}},
		{"error", false, false, false, true, []int{5, 6}},
		{"all", true, true, true, true, []int{1, 3, 4, 5, 6}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := &ConjunctiveFilteredRows{}
			c.Add(&ExpressionNumberComparisonRowFilter{
				Evaluable:        valueOf(t, g, "v"),
				SelectNumeric:    tc.num,
				SelectNonNumeric: tc.nonNum,
				SelectBlank:      tc.blk,
				SelectError:      tc.err,
				Check:            inRange,
			})
			if got := RowIndices(g, c); !slices.Equal(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNumberComparisonArray(t *testing.T) {
	g := newGrid(t, []string{"v"}, grid.NewRow("1,12"), grid.NewRow("1,2"))
	e, err := eval.NewRowEvaluable(g, "v", eval.EvaluableFunc(func(b eval.Bindings) any {
		var out []any
		for _, p := range strings.Split(b["value"].(string), ",") {
			out = append(out, eval.MustParse("toNumber(value)").Evaluate(eval.Bindings{"value": p}))
		}
		return out
	}))
	if err != nil {
		t.Fatal(err)
	}
	c := &ConjunctiveFilteredRows{}
	c.Add(&ExpressionNumberComparisonRowFilter{Evaluable: e, SelectNumeric: true, Check: func(d float64) bool { return d >= 10 }})
	if got := RowIndices(g, c); !slices.Equal(got, []int{0}) {
		t.Fatal(got)
	}
}

func TestConjunctiveNeverGrows(t *testing.T) {
	g := newGrid(t, []string{"a", "b"},
		grid.NewRow("x", "1"),
		grid.NewRow("y", "2"),
		grid.NewRow("x", "3"),
	)
	c := &ConjunctiveFilteredRows{}
	prev := CountRows(g, c)
	if prev != 3 {
		t.Fatal(prev)
	}
	c.Add(nil)
	filters := []RowFilter{
		&ExpressionStringComparisonRowFilter{Evaluable: valueOf(t, g, "a"), Check: func(s string) bool { return s == "x" }},
		&ExpressionStringComparisonRowFilter{Evaluable: valueOf(t, g, "b"), Check: func(s string) bool { return s != "1" }},
		MatchNothing,
	}
	for _, f := range filters {
		c.Add(f)
		n := CountRows(g, c)
		if n > prev {
			t.Fatalf("%d > %d", n, prev)
		}
		prev = n
	}
	if prev != 0 {
		t.Fatal(prev)
	}
}

type recordingVisitor struct {
	events []string
	stopAt int
}

func (r *recordingVisitor) Start(*grid.Grid) { r.events = append(r.events, "start") }

func (r *recordingVisitor) End(*grid.Grid) { r.events = append(r.events, "end") }

func (r *recordingVisitor) Visit(_ *grid.Grid, i int, _ *grid.Row) bool {
	r.events = append(r.events, string(rune('0'+i)))
	return i == r.stopAt
}

func TestVisitorLifecycle(t *testing.T) {
	g := newGrid(t, []string{"a"}, grid.NewRow("x"), grid.NewRow("y"), grid.NewRow("z"))
	v := &recordingVisitor{stopAt: 1}
	(&ConjunctiveFilteredRows{}).Accept(g, v)
	if want := []string{"start", "0", "1", "end"}; !slices.Equal(v.events, want) {
		t.Fatal(v.events)
	}
}

func TestRecords(t *testing.T) {
	// Two records: rows 0-1 (key "a") and rows 2-4 (key "b").
	g := newGrid(t, []string{"key", "v"},
		grid.NewRow("a", "red"),
		grid.NewRow(nil, "blue"),
		grid.NewRow("b", "green"),
		grid.NewRow("", "blue"),
		grid.NewRow(nil, "red"),
	)
	if n := len(g.Records()); n != 2 {
		t.Fatal(n)
	}
	isGreen := &ExpressionStringComparisonRowFilter{Evaluable: valueOf(t, g, "v"), Check: func(s string) bool { return s == "green" }}
	recs := &ConjunctiveFilteredRecords{}
	recs.Add(&AnyRowRecordFilter{RowFilter: isGreen})
	if got := RowIndices(g, &RecordsAsRows{Records: recs}); !slices.Equal(got, []int{2, 3, 4}) {
		t.Fatal(got)
	}
	isBlue := &ExpressionStringComparisonRowFilter{Evaluable: valueOf(t, g, "v"), Check: func(s string) bool { return s == "blue" }}
	recs = &ConjunctiveFilteredRecords{}
	recs.Add(&AnyRowRecordFilter{RowFilter: isBlue})
	if got := RowIndices(g, &RecordsAsRows{Records: recs}); !slices.Equal(got, []int{0, 1, 2, 3, 4}) {
		t.Fatal(got)
	}
}

func TestEqualFilter(t *testing.T) {
	g := newGrid(t, []string{"v"},
		grid.NewRow("a"),
		grid.NewRow("b"),
		grid.NewRow(""),
		grid.NewRow(grid.NewEvalError("x")),
		grid.NewRow(3),
	)
	tests := []struct {
		name string
		f    ExpressionEqualRowFilter
		want []int
	}{
		{"choice", ExpressionEqualRowFilter{Matches: map[string]struct{}{"a": {}, "3": {}}}, []int{0, 4}},
		{"blank", ExpressionEqualRowFilter{SelectBlank: true}, []int{2}},
		{"error", ExpressionEqualRowFilter{SelectError: true}, []int{3}},
		{"invert", ExpressionEqualRowFilter{Matches: map[string]struct{}{"a": {}}, Invert: true}, []int{1, 2, 3, 4}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := tc.f
			f.Evaluable = valueOf(t, g, "v")
			c := &ConjunctiveFilteredRows{}
			c.Add(&f)
			if got := RowIndices(g, c); !slices.Equal(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}
