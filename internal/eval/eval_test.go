package eval

import (
	"errors"
	"testing"

	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/ksid"
)

func TestParse(t *testing.T) {
	rec := grid.NewRecon(ksid.NewID(), "dict")
	rec.Judgment = grid.JudgmentMatched
	rec.Candidates = []grid.ReconCandidate{{ID: "q1", Name: "One", Score: 90}, {ID: "q2", Name: "Two", Score: 40}}
	rec.Match = &rec.Candidates[0]
	row := grid.NewRow("Paris", "12")
	row.Flagged = true
	row.Cells[0].Recon = rec
	g, err := grid.New([]string{"city", "pop"}, []*grid.Row{row})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		expr   string
		column string
		want   any
	}{
		{"value", "city", "Paris"},
		{"grel:value", "city", "Paris"},
		{"cell.value", "pop", "12"},
		{"toNumber(value)", "pop", int64(12)},
		{"toLowercase(value)", "city", "paris"},
		{"toUppercase(trim(' a '))", "", "A"},
		{"length(value)", "city", int64(5)},
		{"length(split('a,b,c', ','))", "", int64(3)},
		{"cell.recon.judgment", "city", "matched"},
		{"cell.recon.best.score", "city", 90.0},
		{"cell.recon.match.name", "city", "One"},
		{"cell.recon.judgment", "pop", nil},
		{"row.flagged", "", true},
		{"row.starred", "", false},
		{"rowIndex", "", 0},
		{"isBlank(value)", "", true},
		{"3.5", "", 3.5},
		{"\"q\"", "", "q"},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			e, err := Parse(tc.expr)
			if err != nil {
				t.Fatal(err)
			}
			re, err := NewRowEvaluable(g, tc.column, e)
			if err != nil {
				t.Fatal(err)
			}
			got := re.Eval(g, 0, row, CreateBindings(g))
			if got != tc.want {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{"", "value.x", "foo", "toNumber()", "nope(value)", "'abc", "value )", "cell.recon"} {
		t.Run(src, func(t *testing.T) {
			if _, err := Parse(src); !errors.Is(err, ErrSyntax) {
				t.Fatalf("got %v", err)
			}
		})
	}
}

func TestToNumberError(t *testing.T) {
	e := MustParse("toNumber(value)")
	b := Bindings{"value": "abc"}
	if v := e.Evaluate(b); !IsError(v) {
		t.Fatalf("got %#v", v)
	}
	b["value"] = ""
	if v := e.Evaluate(b); v != nil {
		t.Fatalf("got %#v", v)
	}
	b["value"] = "1.5"
	if v := e.Evaluate(b); v != 1.5 {
		t.Fatalf("got %#v", v)
	}
}

func TestPanicIsError(t *testing.T) {
	g, err := grid.New([]string{"a"}, []*grid.Row{grid.NewRow("x")})
	if err != nil {
		t.Fatal(err)
	}
	re, err := NewRowEvaluable(g, "a", EvaluableFunc(func(Bindings) any { panic("boom") }))
	if err != nil {
		t.Fatal(err)
	}
	v := re.Eval(g, 0, g.Row(0), CreateBindings(g))
	if ee, ok := v.(*grid.EvalError); !ok || ee.Message != "boom" {
		t.Fatalf("got %#v", v)
	}
}

func TestClassify(t *testing.T) {
	if IsNonBlankData(nil) || IsNonBlankData("") || IsNonBlankData(grid.NewEvalError("x")) {
		t.Fatal("expected blank")
	}
	if !IsNonBlankData("a") || !IsNonBlankData(0.0) {
		t.Fatal("expected data")
	}
	if s := ToString(3.0); s != "3" {
		t.Fatal(s)
	}
	if s := ToString(3.25); s != "3.25" {
		t.Fatal(s)
	}
}
